package task

const (
	// DefaultPageSize is used when a request does not specify a page size.
	DefaultPageSize = 10
	// MaxPageSize caps the page size a caller may request.
	MaxPageSize = 100
	// MaxOffset caps the number of rows a page may skip.
	MaxOffset = 1<<31 - 1
)

// Pageable selects a zero-based page of results.
type Pageable struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Normalize clamps page and size into valid bounds.
func (p Pageable) Normalize() Pageable {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if p.Page > MaxOffset/p.Size {
		p.Page = MaxOffset / p.Size
	}
	return p
}

// Offset returns the number of rows to skip, never more than MaxOffset.
func (p Pageable) Offset() int {
	p = p.Normalize()
	return p.Page * p.Size
}

// Page is one page of tasks plus the total number of matching tasks.
type Page struct {
	Content       []*Task `json:"content"`
	TotalElements int64   `json:"totalElements"`
	Number        int     `json:"number"`
	Size          int     `json:"size"`
}

// NewPage builds a page for the given request.
func NewPage(content []*Task, total int64, p Pageable) *Page {
	if content == nil {
		content = []*Task{}
	}
	return &Page{
		Content:       content,
		TotalElements: total,
		Number:        p.Page,
		Size:          p.Size,
	}
}
