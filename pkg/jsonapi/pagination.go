package jsonapi

import (
	"net/url"
	"strconv"
)

// MaxPageSize caps page[size].
const MaxPageSize = 100

// Pagination describes one page of a collection.
type Pagination struct {
	Total   int    // items in the whole collection
	Page    int    // 1-based
	PerPage int    // items per page
	BaseURL string // collection URL used for links; empty disables links
}

// NewPagination creates a Pagination, clamping page and size.
func NewPagination(total, page, perPage int, baseURL string) *Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	return &Pagination{Total: total, Page: page, PerPage: perPage, BaseURL: baseURL}
}

// TotalPages returns the page count, at least 1.
func (p *Pagination) TotalPages() int {
	if p.Total <= 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// Bounds returns the [start, end) slice indices of the page.
func (p *Pagination) Bounds() (start, end int) {
	start = min((p.Page-1)*p.PerPage, p.Total)
	end = min(start+p.PerPage, p.Total)
	return start, end
}

// Meta returns the page metadata.
func (p *Pagination) Meta() Meta {
	return Meta{
		"total":    p.Total,
		"page":     p.Page,
		"per_page": p.PerPage,
		"pages":    p.TotalPages(),
	}
}

// Links returns navigation links, or nil without a BaseURL.
func (p *Pagination) Links() *Links {
	if p.BaseURL == "" {
		return nil
	}
	last := p.TotalPages()
	links := &Links{
		Self:  p.url(p.Page),
		First: p.url(1),
		Last:  p.url(last),
	}
	if p.Page > 1 {
		links.Prev = p.url(p.Page - 1)
	}
	if p.Page < last {
		links.Next = p.url(p.Page + 1)
	}
	return links
}

func (p *Pagination) url(page int) string {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return p.BaseURL
	}
	q := u.Query()
	q.Set("page[number]", strconv.Itoa(page))
	q.Set("page[size]", strconv.Itoa(p.PerPage))
	u.RawQuery = q.Encode()
	return u.String()
}

// ParsePage reads page[number] and page[size] from a query.
// Invalid values fall back to page 1 and defaultSize.
func ParsePage(query url.Values, defaultSize int) (page, size int) {
	page, size = 1, defaultSize
	if n, err := strconv.Atoi(query.Get("page[number]")); err == nil && n > 0 {
		page = n
	}
	if n, err := strconv.Atoi(query.Get("page[size]")); err == nil && n > 0 {
		size = n
	}
	return page, min(size, MaxPageSize)
}
