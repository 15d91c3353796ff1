// Package pagination provides page/per-page and sorting utilities.
package pagination

import "strings"

// Pagination holds page parameters after defaults are applied.
type Pagination struct {
	Page    int
	PerPage int
}

// New clamps page parameters into a valid range.
func New(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return Pagination{Page: page, PerPage: perPage}
}

// Offset returns the SQL offset for this page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Limit returns the SQL limit for this page.
func (p Pagination) Limit() int {
	return p.PerPage
}

// Result is a page of data plus totals.
type Result[T any] struct {
	Data       []T
	Total      int64
	Page       int
	PerPage    int
	TotalPages int
}

// NewResult assembles a Result from a data slice and total count.
func NewResult[T any](data []T, total int64, p Pagination) Result[T] {
	totalPages := 0
	if p.PerPage > 0 {
		totalPages = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return Result[T]{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages,
	}
}

// SortOrder is the sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Sort is one parsed sort specification.
type Sort struct {
	Field string
	Order SortOrder
}

// SortOption parses and validates user-supplied sort strings against an
// allow-list mapping request field names to database columns.
type SortOption struct {
	sorts         []Sort
	allowedFields map[string]string
}

// NewSortOption creates a SortOption with the given allowed fields.
func NewSortOption(allowedFields map[string]string) *SortOption {
	return &SortOption{allowedFields: allowedFields}
}

// Parse parses "-last_seen,display_name" style sort strings. A leading "-"
// means descending. Unknown fields are dropped.
func (s *SortOption) Parse(sortStr string) *SortOption {
	for _, part := range strings.Split(sortStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		order := SortAsc
		field := part
		if strings.HasPrefix(part, "-") {
			order = SortDesc
			field = part[1:]
		} else if strings.HasPrefix(part, "+") {
			field = part[1:]
		}

		if column, ok := s.allowedFields[field]; ok {
			s.sorts = append(s.sorts, Sort{Field: column, Order: order})
		}
	}
	return s
}

// IsEmpty reports whether any sorts were parsed.
func (s *SortOption) IsEmpty() bool {
	return len(s.sorts) == 0
}

// SQL renders the ORDER BY clause body, e.g. "last_seen DESC, name ASC".
func (s *SortOption) SQL() string {
	if len(s.sorts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.sorts))
	for _, srt := range s.sorts {
		parts = append(parts, srt.Field+" "+string(srt.Order))
	}
	return strings.Join(parts, ", ")
}

// SQLWithDefault renders the ORDER BY clause body, falling back to
// defaultSort when nothing was parsed.
func (s *SortOption) SQLWithDefault(defaultSort string) string {
	if sql := s.SQL(); sql != "" {
		return sql
	}
	return defaultSort
}
