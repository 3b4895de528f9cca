package project

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Filter narrows a project listing. Empty fields match everything.
type Filter struct {
	Name   string
	Status Status
}

// Page selects a 1-based page of results.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page into the supported range.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// PageResult is one page of projects plus the unpaged total.
type PageResult struct {
	Items  []*Project `json:"items"`
	Total  int        `json:"total"`
	Number int        `json:"page"`
	Size   int        `json:"size"`
}
