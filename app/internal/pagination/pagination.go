package pagination

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// Params selects a page. Zero values mean the first page with the default size.
type Params struct {
	Page    int
	PerPage int
}

// Normalize clamps the params into valid ranges
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset returns the number of items to skip
func (p Params) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PerPage
}

// Page is one page of results
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPage builds a page from already-sliced items and the overall total
func NewPage[T any](items []T, p Params, total int) Page[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	pages := 0
	if total > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Page[T]{
		Items:      items,
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: pages,
	}
}

// Slice pages through an in-memory slice
func Slice[T any](items []T, p Params) Page[T] {
	p = p.Normalize()
	start := p.Offset()
	if start > len(items) {
		start = len(items)
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return NewPage(out, p, len(items))
}
