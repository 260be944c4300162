// Package portal holds the REST models of the developer portal API.
package portal

import "time"

// Api is an API as shown to portal consumers.
type Api struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	Labels      []string  `json:"labels"`
	Categories  []string  `json:"categories"`
	Entrypoints []string  `json:"entrypoints"`
	Running     bool      `json:"running"`
	Owner       *Owner    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Links       *ApiLinks `json:"_links,omitempty"`
}

// ApiLinks are the hypermedia links of an Api.
type ApiLinks struct {
	Self    string `json:"self"`
	Picture string `json:"picture"`
	Plans   string `json:"plans"`
}

// Owner is the primary owner of an API.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// Plan is a plan a consumer can subscribe to.
type Plan struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	Security          string   `json:"security"`
	Validation        string   `json:"validation"`
	Mode              string   `json:"mode"`
	Order             int      `json:"order"`
	Characteristics   []string `json:"characteristics"`
	CommentRequired   bool     `json:"comment_required"`
	CommentQuestion   string   `json:"comment_question,omitempty"`
	GeneralConditions string   `json:"general_conditions,omitempty"`
}

// Subscription is a subscription of one of the consumer's applications.
type Subscription struct {
	ID          string     `json:"id"`
	Api         string     `json:"api"`
	Plan        string     `json:"plan"`
	Application string     `json:"application"`
	Status      string     `json:"status"`
	Request     string     `json:"request,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	EndAt       *time.Time `json:"end_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Links are the pagination links of a listing. Absent links are omitted.
type Links struct {
	Self  string `json:"self"`
	First string `json:"first,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
	Last  string `json:"last,omitempty"`
}

// Pagination describes the page returned.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	First       int `json:"first"`
	Last        int `json:"last"`
	Size        int `json:"size"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
}

// Metadata wraps the pagination of a page.
type Metadata struct {
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Page is a portal listing.
type Page[T any] struct {
	Data     []T      `json:"data"`
	Metadata Metadata `json:"metadata"`
	Links    *Links   `json:"links,omitempty"`
}
