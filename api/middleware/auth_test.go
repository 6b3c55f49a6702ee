package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/bijouxtrade/bijoux-backend/pkg/auth"
	"github.com/bijouxtrade/bijoux-backend/pkg/config"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "bijoux-test", ExpirationMinutes: 5}
}

func TestAuthSeedsContextFromClaims(t *testing.T) {
	cfg := testJWTConfig()
	employeeID := uuid.New()
	companyID := uuid.New()
	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{
		EmployeeID: employeeID,
		CompanyID:  companyID,
		Role:       enums.EmployeeRoleManager,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	var seen bool
	handler := Auth(cfg, logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = true
		if got := EmployeeIDFromContext(r.Context()); got != employeeID {
			t.Fatalf("unexpected employee %s", got)
		}
		if got := CompanyIDFromContext(r.Context()); got != companyID {
			t.Fatalf("unexpected company %s", got)
		}
		if got := RoleFromContext(r.Context()); got != enums.EmployeeRoleManager {
			t.Fatalf("unexpected role %s", got)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/spending/budget", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if !seen {
		t.Fatal("handler never ran")
	}
}

func TestAuthRejectsMissingAndGarbageTokens(t *testing.T) {
	cfg := testJWTConfig()
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Bearer ", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/spending/budget", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: unexpected status %d", header, resp.Code)
		}
	}
}

func TestRequireRoleAllowsAnyListedRole(t *testing.T) {
	handler := RequireRole(nil, enums.EmployeeRoleFinance, enums.EmployeeRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	run := func(role enums.EmployeeRole) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/limits", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := run(enums.EmployeeRoleFinance); code != http.StatusNoContent {
		t.Fatalf("finance blocked with %d", code)
	}
	if code := run(enums.EmployeeRoleAdmin); code != http.StatusNoContent {
		t.Fatalf("admin blocked with %d", code)
	}
	if code := run(enums.EmployeeRoleEmployee); code != http.StatusForbidden {
		t.Fatalf("employee allowed with %d", code)
	}
}
