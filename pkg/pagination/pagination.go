package pagination

import (
	"fmt"
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

// FromContext reads ?limit= and ?offset=. Missing or unparsable values fall
// back to the defaults and limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response wraps one page of results in the API envelope.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    []T    `json:"data"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"has_more"`
	Next    string `json:"next,omitempty"`
}

// NewResponse builds the page envelope. basePath, when set, is used to build
// the link to the next page; extra query parameters are preserved.
func NewResponse[T any](data []T, total int, p Params, basePath, extraQuery string) *Response[T] {
	if data == nil {
		data = []T{}
	}
	r := &Response[T]{
		Success: true,
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
	if r.HasMore && basePath != "" {
		r.Next = fmt.Sprintf("%s?limit=%d&offset=%d", basePath, p.Limit, p.NextOffset())
		if extraQuery != "" {
			r.Next += "&" + extraQuery
		}
	}
	return r
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}
