package mapper

import (
	"net/url"
	"strconv"

	"github.com/apimplane/apim/internal/mapper/portal"
)

// NewPage wraps items with pagination metadata and links. requestURL is the
// URL of the current request; its query string is preserved in the links.
func NewPage[T any](items []T, requestURL *url.URL, page, size, total int) portal.Page[T] {
	if items == nil {
		items = []T{}
	}
	return portal.Page[T]{
		Data: items,
		Metadata: portal.Metadata{Pagination: &portal.Pagination{
			CurrentPage: page,
			First:       firstIndex(page, size, len(items)),
			Last:        lastIndex(page, size, len(items)),
			Size:        len(items),
			Total:       total,
			TotalPages:  totalPages(size, total),
		}},
		Links: PaginationLinks(requestURL, page, size, total),
	}
}

// PaginationLinks computes first, prev, self, next and last links. prev and
// next are omitted at the edges of the listing.
func PaginationLinks(requestURL *url.URL, page, size, total int) *portal.Links {
	if requestURL == nil {
		return nil
	}
	if page < 1 {
		page = 1
	}
	last := totalPages(size, total)
	if last < 1 {
		last = 1
	}

	links := &portal.Links{
		Self:  pageURL(requestURL, page, size),
		First: pageURL(requestURL, 1, size),
		Last:  pageURL(requestURL, last, size),
	}
	if page > 1 {
		links.Prev = pageURL(requestURL, min(page-1, last), size)
	}
	if page < last {
		links.Next = pageURL(requestURL, page+1, size)
	}
	return links
}

func pageURL(base *url.URL, page, size int) string {
	u := *base
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	u.RawQuery = q.Encode()
	return u.String()
}

func totalPages(size, total int) int {
	if size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

func firstIndex(page, size, count int) int {
	if count == 0 {
		return 0
	}
	return (page-1)*size + 1
}

func lastIndex(page, size, count int) int {
	if count == 0 {
		return 0
	}
	return (page-1)*size + count
}
