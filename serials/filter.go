package serials

import (
	"net/url"
	"strconv"
	"strings"
)

// Approval filter values
const (
	ApprovalAll        = "all"
	ApprovalApproved   = "approved"
	ApprovalUnapproved = "unapproved"
	AllocationAll      = "all"
)

// PageSizes are the rows-per-page choices offered on the listing
var PageSizes = []int{5, 10, 25, 50, 100}

const defaultPageSize = 10

// Filter narrows and pages the serial list
type Filter struct {
	Search     string
	Approval   string
	Allocation string
	Page       int
	PerPage    int
}

// ParseFilter reads a filter from query parameters, replacing unknown values with defaults
func ParseFilter(q url.Values) Filter {
	f := Filter{
		Search:     strings.TrimSpace(q.Get("search")),
		Approval:   q.Get("approval"),
		Allocation: q.Get("allocation"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	return f.normalised()
}

func (f Filter) normalised() Filter {
	switch f.Approval {
	case ApprovalApproved, ApprovalUnapproved:
	default:
		f.Approval = ApprovalAll
	}
	if f.Allocation != AllocationAll {
		if n, err := strconv.Atoi(f.Allocation); err != nil || n < int(Unallocated) || n > int(Deactivated) {
			f.Allocation = AllocationAll
		}
	}
	valid := false
	for _, size := range PageSizes {
		valid = valid || size == f.PerPage
	}
	if !valid {
		f.PerPage = defaultPageSize
	}
	if f.Page < 1 {
		f.Page = 1
	}
	return f
}

// Active reports whether any narrowing filter is set
func (f Filter) Active() bool {
	return f.Search != "" || f.Approval != ApprovalAll || f.Allocation != AllocationAll
}

// Query encodes the filter for links, with page replaced
func (f Filter) Query(page int) string {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Approval != ApprovalAll {
		q.Set("approval", f.Approval)
	}
	if f.Allocation != AllocationAll {
		q.Set("allocation", f.Allocation)
	}
	q.Set("per_page", strconv.Itoa(f.PerPage))
	q.Set("page", strconv.Itoa(page))
	return q.Encode()
}

func (f Filter) matches(s Serial) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(s.SerialNumber), strings.ToLower(f.Search)) {
		return false
	}
	switch f.Approval {
	case ApprovalApproved:
		if !s.Approved {
			return false
		}
	case ApprovalUnapproved:
		if s.Approved {
			return false
		}
	}
	if f.Allocation != AllocationAll {
		n, _ := strconv.Atoi(f.Allocation)
		if s.Allocation != AllocationState(n) {
			return false
		}
	}
	return true
}

// Page is one page of a filtered list. Total counts rows after filtering.
// First and Last are the 1-based positions of the page's rows, 0 when empty.
type Page struct {
	Items      []Serial
	Total      int
	Page       int
	PerPage    int
	TotalPages int
	First      int
	Last       int
}

func (p Page) HasPrev() bool { return p.Page > 1 }
func (p Page) HasNext() bool { return p.Page < p.TotalPages }

// Apply filters list and cuts out the requested page. The page is clamped to the available range.
func (f Filter) Apply(list []Serial) Page {
	f = f.normalised()

	filtered := make([]Serial, 0, len(list))
	for _, s := range list {
		if f.matches(s) {
			filtered = append(filtered, s)
		}
	}

	totalPages := (len(filtered) + f.PerPage - 1) / f.PerPage
	page := f.Page
	if page > totalPages {
		page = max(totalPages, 1)
	}

	start := min((page-1)*f.PerPage, len(filtered))
	end := min(start+f.PerPage, len(filtered))

	p := Page{
		Items:      filtered[start:end],
		Total:      len(filtered),
		Page:       page,
		PerPage:    f.PerPage,
		TotalPages: totalPages,
	}
	if end > start {
		p.First = start + 1
		p.Last = end
	}
	return p
}
