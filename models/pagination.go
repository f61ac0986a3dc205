package models

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects a 1-based page of a list.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps the request to valid bounds.
func (r PageRequest) Normalize() PageRequest {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	return r
}

// Page is the single list envelope returned by every list operation.
type Page[T any] struct {
	Results    []T `json:"results"`
	Count      int `json:"count"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// Paginate slices items according to req. Results is never nil.
func Paginate[T any](items []T, req PageRequest) Page[T] {
	req = req.Normalize()
	total := len(items)

	// compare before multiplying so a huge page number cannot overflow
	start := total
	if req.Page-1 < (total+req.PageSize-1)/req.PageSize {
		start = (req.Page - 1) * req.PageSize
	}
	end := start + req.PageSize
	if end > total {
		end = total
	}

	results := make([]T, 0, end-start)
	results = append(results, items[start:end]...)

	totalPages := (total + req.PageSize - 1) / req.PageSize
	return Page[T]{
		Results:    results,
		Count:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	}
}

// Remap carries p's paging metadata over to a page of different results.
func Remap[T, U any](p Page[T], results []U) Page[U] {
	if results == nil {
		results = []U{}
	}
	return Page[U]{
		Results:    results,
		Count:      p.Count,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
}
