package dto

import (
	"cmp"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// DefaultLimit is the window size used when a request names none.
const DefaultLimit = 20

// MaxLimit is the largest window a request may ask for.
const MaxLimit = 100

// PageRequest is the window and sort part of a list query string. Page and
// PageSize take precedence over Offset and Limit.
type PageRequest struct {
	// Sort is a comma separated field list; "-name" sorts descending.
	Sort     string `form:"sort"`
	Page     int    `form:"page"      validate:"omitempty,gte=1"`
	PageSize int    `form:"page_size" validate:"omitempty,gte=1,lte=100"`
	Offset   int    `form:"offset"    validate:"omitempty,gte=0"`
	Limit    int    `form:"limit"     validate:"omitempty,gte=1,lte=100"`
}

// Window resolves the requested window, applying DefaultLimit.
func (p PageRequest) Window() ports.Page {
	if p.Page > 0 || p.PageSize > 0 {
		return ports.PageNumber(max(p.Page, 1), min(cmp.Or(p.PageSize, DefaultLimit), MaxLimit))
	}

	return ports.Offset(p.Offset, min(cmp.Or(p.Limit, DefaultLimit), MaxLimit))
}

// Apply adds the sort keys and the window to q. Sort fields are not checked
// here; the repository rejects fields its schema does not know.
func (p PageRequest) Apply(q ports.Query) ports.Query {
	return q.OrderBy(ports.ParseSort(p.Sort)...).Window(p.Window())
}

// PageResponse is one window of a list.
type PageResponse[T any] struct {
	Items  []T `json:"items"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// NewPageResponse wraps items with the window they were read from. A nil
// slice is reported as an empty list.
func NewPageResponse[T any](items []T, page *ports.Page) *PageResponse[T] {
	if items == nil {
		items = []T{}
	}

	resp := &PageResponse[T]{Items: items}
	if page != nil {
		resp.Offset, resp.Limit = page.Offset, page.Limit
	}

	return resp
}
