package dto

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	HTTPCode  int               `json:"httpStatus"`
	Parameter map[string]string `json:"parameters,omitempty"`
}

// PaginationEntity describes the position of a page in a listing.
type PaginationEntity struct {
	Page           int `json:"page"`
	PerPage        int `json:"perPage"`
	PageCount      int `json:"pageCount"`
	PageItemsCount int `json:"pageItemsCount"`
	TotalCount     int `json:"totalCount"`
}

// Page is a paginated listing.
type Page[T any] struct {
	Data       []T              `json:"data"`
	Pagination PaginationEntity `json:"pagination"`
}

// NewPage builds a page from its items and the listing bounds.
func NewPage[T any](items []T, page, perPage, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pageCount := 0
	if perPage > 0 {
		pageCount = (total + perPage - 1) / perPage
	}
	return Page[T]{
		Data: items,
		Pagination: PaginationEntity{
			Page:           page,
			PerPage:        perPage,
			PageCount:      pageCount,
			PageItemsCount: len(items),
			TotalCount:     total,
		},
	}
}
