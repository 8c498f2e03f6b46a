package store

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Data         []T
	CurrPage     int
	NextPage     *int
	PrevPage     *int
	TotalPages   int
	TotalRecords int
}

// NormalizePage clamps page and limit to usable values.
func NormalizePage(limit, page, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = 10
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	if page <= 0 {
		page = 1
	}
	return limit, page
}

// Offset is the number of records skipped before the given page.
func Offset(limit, page int) int {
	return (page - 1) * limit
}

// NewPage fills in navigation fields for a page of data.
func NewPage[T any](data []T, limit, page, total int) Page[T] {
	p := Page[T]{
		Data:         data,
		CurrPage:     page,
		TotalRecords: total,
	}
	if limit > 0 {
		p.TotalPages = (total + limit - 1) / limit
	}
	if page*limit < total {
		next := page + 1
		p.NextPage = &next
	}
	if page > 1 {
		prev := page - 1
		p.PrevPage = &prev
	}
	if p.Data == nil {
		p.Data = []T{}
	}
	return p
}
