package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runWithRoles(t *testing.T, roles []string, required ...string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if roles != nil {
		req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequireRole(required...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return rec, h(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	rec, err := runWithRoles(t, []string{RoleNurse}, RolePhysician, RoleNurse)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_AdminAlwaysAllowed(t *testing.T) {
	if _, err := runWithRoles(t, []string{RoleAdmin}, RoleOperations); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
	}{
		{"wrong role", []string{RoleFrontDesk}},
		{"no roles", []string{}},
		{"no identity", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runWithRoles(t, tt.roles, RoleOperations)
			if err == nil {
				t.Fatal("expected error")
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d", httpErr.Code)
			}
		})
	}
}

func TestHasAnyRole(t *testing.T) {
	tests := []struct {
		held   []string
		wanted []string
		want   bool
	}{
		{[]string{"nurse"}, []string{"nurse"}, true},
		{[]string{"nurse", "front_desk"}, []string{"physician", "front_desk"}, true},
		{[]string{"admin"}, []string{"operations"}, true},
		{[]string{"nurse"}, []string{"operations"}, false},
		{nil, []string{"nurse"}, false},
		{[]string{"nurse"}, nil, false},
	}
	for _, tt := range tests {
		if got := HasAnyRole(tt.held, tt.wanted...); got != tt.want {
			t.Errorf("HasAnyRole(%v, %v) = %v, want %v", tt.held, tt.wanted, got, tt.want)
		}
	}
}
