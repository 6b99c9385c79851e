package shared

import "math"

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// NewPagination computes pagination metadata. perPage is clamped to (0, 500].
func NewPagination(page, perPage, total int) Pagination {
	perPage = ClampPerPage(perPage)
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages, HasNext: page < totalPages}
}

// ClampPerPage applies the listing default and upper bound.
func ClampPerPage(perPage int) int {
	if perPage <= 0 || perPage > maxPerPage {
		return defaultPerPage
	}
	return perPage
}

// Offset is the number of rows skipped before the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
