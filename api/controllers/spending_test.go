package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/api/middleware"
	"github.com/bijouxtrade/bijoux-backend/internal/authorizer"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

type testAuthorizerService struct {
	checkFn  func(ctx context.Context, employeeID uuid.UUID, amount decimal.Decimal, categoryID string) (*authorizer.SpendingCheckResult, error)
	commitFn func(ctx context.Context, input authorizer.CommitPurchaseInput) (*models.SpendingTransaction, error)
	budgetFn func(ctx context.Context, employeeID uuid.UUID) ([]authorizer.BudgetRemaining, error)
}

func (s *testAuthorizerService) CheckPurchase(ctx context.Context, employeeID uuid.UUID, amount decimal.Decimal, categoryID string) (*authorizer.SpendingCheckResult, error) {
	if s.checkFn != nil {
		return s.checkFn(ctx, employeeID, amount, categoryID)
	}
	return &authorizer.SpendingCheckResult{Allowed: true}, nil
}

func (s *testAuthorizerService) CheckEntity(ctx context.Context, employeeID uuid.UUID, entityType enums.WorkflowEntityType, entityID uuid.UUID) (*authorizer.SpendingCheckResult, error) {
	return &authorizer.SpendingCheckResult{Allowed: true}, nil
}

func (s *testAuthorizerService) GetRemainingBudget(ctx context.Context, employeeID uuid.UUID) ([]authorizer.BudgetRemaining, error) {
	if s.budgetFn != nil {
		return s.budgetFn(ctx, employeeID)
	}
	return nil, nil
}

func (s *testAuthorizerService) Commit(ctx context.Context, input authorizer.CommitPurchaseInput) (*models.SpendingTransaction, error) {
	if s.commitFn != nil {
		return s.commitFn(ctx, input)
	}
	return &models.SpendingTransaction{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func authedRequest(method, target, body string, role enums.EmployeeRole, employeeID, companyID uuid.UUID) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := middleware.WithEmployeeID(req.Context(), employeeID)
	ctx = middleware.WithCompanyID(ctx, companyID)
	ctx = middleware.WithRole(ctx, role)
	return req.WithContext(ctx)
}

func TestSpendingCheckForwardsActorAndAmount(t *testing.T) {
	employeeID := uuid.New()
	var gotEmployee uuid.UUID
	var gotAmount decimal.Decimal
	svc := &testAuthorizerService{
		checkFn: func(ctx context.Context, eid uuid.UUID, amount decimal.Decimal, categoryID string) (*authorizer.SpendingCheckResult, error) {
			gotEmployee = eid
			gotAmount = amount
			if categoryID != "loose-diamonds" {
				t.Fatalf("unexpected category %q", categoryID)
			}
			return &authorizer.SpendingCheckResult{Allowed: false, Reason: "limit exceeded"}, nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/spending/check", `{"amount":"1500.00","categoryId":"loose-diamonds"}`, enums.EmployeeRoleEmployee, employeeID, uuid.New())
	resp := httptest.NewRecorder()
	SpendingCheck(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotEmployee != employeeID {
		t.Fatalf("expected actor %s, got %s", employeeID, gotEmployee)
	}
	if !gotAmount.Equal(decimal.RequireFromString("1500.00")) {
		t.Fatalf("unexpected amount %s", gotAmount)
	}

	var envelope struct {
		Data authorizer.SpendingCheckResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Allowed {
		t.Fatal("expected denial to pass through")
	}
	if envelope.Data.Reason != "limit exceeded" {
		t.Fatalf("unexpected reason %q", envelope.Data.Reason)
	}
}

func TestSpendingCheckRejectsMalformedBody(t *testing.T) {
	req := authedRequest(http.MethodPost, "/api/v1/spending/check", `{"amount":`, enums.EmployeeRoleEmployee, uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	SpendingCheck(&testAuthorizerService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestSpendingCommitApprovedFlagNeedsFinance(t *testing.T) {
	called := false
	svc := &testAuthorizerService{
		commitFn: func(ctx context.Context, input authorizer.CommitPurchaseInput) (*models.SpendingTransaction, error) {
			called = true
			return &models.SpendingTransaction{}, nil
		},
	}

	body := `{"amount":"900.00","type":"order","approved":true}`
	req := authedRequest(http.MethodPost, "/api/v1/spending/commit", body, enums.EmployeeRoleEmployee, uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	SpendingCommit(svc, testLogger())(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if called {
		t.Fatal("commit must not reach the service")
	}

	req = authedRequest(http.MethodPost, "/api/v1/spending/commit", body, enums.EmployeeRoleFinance, uuid.New(), uuid.New())
	resp = httptest.NewRecorder()
	SpendingCommit(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if !called {
		t.Fatal("expected commit to reach the service")
	}
}

func TestSpendingBudgetBlocksPeerLookup(t *testing.T) {
	actor := uuid.New()
	other := uuid.New()
	svc := &testAuthorizerService{
		budgetFn: func(ctx context.Context, employeeID uuid.UUID) ([]authorizer.BudgetRemaining, error) {
			t.Fatalf("budget lookup should not run, got %s", employeeID)
			return nil, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/spending/budget?employeeId="+other.String(), "", enums.EmployeeRoleEmployee, actor, uuid.New())
	resp := httptest.NewRecorder()
	SpendingBudget(svc, testLogger())(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestSpendingBudgetManagerCanLookUpReport(t *testing.T) {
	actor := uuid.New()
	target := uuid.New()
	var got uuid.UUID
	svc := &testAuthorizerService{
		budgetFn: func(ctx context.Context, employeeID uuid.UUID) ([]authorizer.BudgetRemaining, error) {
			got = employeeID
			return []authorizer.BudgetRemaining{}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/spending/budget?employeeId="+target.String(), "", enums.EmployeeRoleManager, actor, uuid.New())
	resp := httptest.NewRecorder()
	SpendingBudget(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got != target {
		t.Fatalf("expected lookup for %s, got %s", target, got)
	}
}

func TestSpendingDismissAlertParsesPath(t *testing.T) {
	companyID := uuid.New()
	alertID := uuid.New()
	svc := &testAlertsService{
		dismissFn: func(ctx context.Context, cid, aid uuid.UUID) error {
			if cid != companyID {
				t.Fatalf("unexpected company %s", cid)
			}
			if aid != alertID {
				t.Fatalf("unexpected alert %s", aid)
			}
			return nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/spending/alerts/"+alertID.String()+"/dismiss", "", enums.EmployeeRoleAdmin, uuid.New(), companyID)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("alertId", alertID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	resp := httptest.NewRecorder()
	SpendingDismissAlert(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

type testAlertsService struct {
	dismissFn func(ctx context.Context, companyID, alertID uuid.UUID) error
	listFn    func(ctx context.Context, companyID uuid.UUID) ([]models.SpendingAlert, error)
}

func (s *testAlertsService) EvaluateLimit(ctx context.Context, tx *gorm.DB, limit models.SpendingLimit) error {
	return nil
}

func (s *testAlertsService) GetAlerts(ctx context.Context, companyID uuid.UUID) ([]models.SpendingAlert, error) {
	if s.listFn != nil {
		return s.listFn(ctx, companyID)
	}
	return nil, nil
}

func (s *testAlertsService) DismissAlert(ctx context.Context, companyID, alertID uuid.UUID) error {
	if s.dismissFn != nil {
		return s.dismissFn(ctx, companyID, alertID)
	}
	return nil
}
