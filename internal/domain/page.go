package domain

// PageDescriptor is the result of slicing an ordered sequence into
// fixed-size pages.
type PageDescriptor struct {
	// Start and End are the half-open item range of the selected page.
	Start int
	End   int

	// Page is the selected page after clamping, 1-based.
	Page int

	// PageCount is the total number of pages, at least 1.
	PageCount int
}

// Paginate computes the page boundaries for a sequence of the given
// length. The requested page is clamped into [1, PageCount]; an empty
// sequence yields exactly one empty page. pageSize must be positive,
// which the service constructor guarantees.
func Paginate(length, pageSize, requested int) PageDescriptor {
	pageCount := (length + pageSize - 1) / pageSize
	if pageCount < 1 {
		pageCount = 1
	}

	page := requested
	if page < 1 {
		page = 1
	}
	if page > pageCount {
		page = pageCount
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > length {
		end = length
	}
	if start > length {
		start = length
	}

	return PageDescriptor{
		Start:     start,
		End:       end,
		Page:      page,
		PageCount: pageCount,
	}
}
