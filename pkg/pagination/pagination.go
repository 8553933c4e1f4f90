package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context. An
// explicit offset wins over a 1-based page number.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset <= 0 {
		if page, _ := strconv.Atoi(c.QueryParam("page")); page > 1 {
			offset = (page - 1) * limit
		}
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response wraps a paginated API response.
type Response struct {
	Data           interface{} `json:"data"`
	Total          int         `json:"total"`
	Limit          int         `json:"limit"`
	Offset         int         `json:"offset"`
	HasMore        bool        `json:"has_more"`
	NextOffset     *int        `json:"next_offset,omitempty"`
	PreviousOffset *int        `json:"previous_offset,omitempty"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	r := &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
	if r.HasMore {
		next := p.NextOffset()
		r.NextOffset = &next
	}
	if p.HasPrevious() {
		prev := p.PreviousOffset()
		r.PreviousOffset = &prev
	}
	return r
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}
