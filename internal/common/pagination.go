package common

import (
	"net/http"
	"strconv"
)

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination reads page and limit (or per_page) from the query string.
// Invalid or non-positive values fall back to page 1 and defaultPerPage.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	q := r.URL.Query()
	page = 1
	perPage = defaultPerPage
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	limit := q.Get("limit")
	if limit == "" {
		limit = q.Get("per_page")
	}
	if l, err := strconv.Atoi(limit); err == nil && l > 0 {
		perPage = l
	}
	return page, perPage
}
