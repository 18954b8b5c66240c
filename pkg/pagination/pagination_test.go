package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "/")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor(t, "/?limit=50&offset=10")
	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_Bounds(t *testing.T) {
	tests := []struct {
		target string
		limit  int
		offset int
	}{
		{"/?limit=500", MaxLimit, 0},
		{"/?limit=-3", DefaultLimit, 0},
		{"/?limit=abc&offset=xyz", DefaultLimit, 0},
		{"/?offset=-10", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(t, tt.target)
		if p.Limit != tt.limit || p.Offset != tt.offset {
			t.Errorf("%s: got limit=%d offset=%d, want %d/%d", tt.target, p.Limit, p.Offset, tt.limit, tt.offset)
		}
	}
}

func TestHasNext(t *testing.T) {
	tests := []struct {
		offset, limit, total int
		want                 bool
	}{
		{0, 20, 100, true},
		{80, 20, 100, false},
		{0, 20, 20, false},
		{0, 20, 0, false},
	}
	for _, tt := range tests {
		p := Params{Limit: tt.limit, Offset: tt.offset}
		if got := p.HasNext(tt.total); got != tt.want {
			t.Errorf("HasNext(offset=%d, limit=%d, total=%d) = %v, want %v", tt.offset, tt.limit, tt.total, got, tt.want)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 0}, "/api/v1/manage/predictions", "kind=triage")

	if !r.Success {
		t.Error("expected success")
	}
	if !r.HasMore {
		t.Error("expected has_more")
	}
	want := "/api/v1/manage/predictions?limit=2&offset=2&kind=triage"
	if r.Next != want {
		t.Errorf("expected next %q, got %q", want, r.Next)
	}
}

func TestNewResponse_LastPage(t *testing.T) {
	r := NewResponse[int](nil, 3, Params{Limit: 5, Offset: 0}, "/x", "")
	if r.HasMore || r.Next != "" {
		t.Errorf("expected no next page, got %+v", r)
	}
	if r.Data == nil || len(r.Data) != 0 {
		t.Error("expected empty, non-nil data")
	}
}
