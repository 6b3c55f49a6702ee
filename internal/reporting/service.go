package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

const (
	defaultReportDays = 30
	topEmployeeRows   = 10
)

type limitReader interface {
	GetLimit(ctx context.Context, id uuid.UUID) (*models.SpendingLimit, error)
	GetApplicableLimits(ctx context.Context, employee *models.Employee) ([]models.SpendingLimit, error)
	RecomputeSpending(ctx context.Context, limit *models.SpendingLimit) (decimal.Decimal, error)
}

type directoryReader interface {
	FindEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error)
}

// BudgetSummary is one limit's budget position. Exact reports whether Spent
// was recomputed from the ledger or read from the cached counter.
type BudgetSummary struct {
	Limit          models.SpendingLimit `json:"limit"`
	Spent          decimal.Decimal      `json:"spent"`
	Remaining      decimal.Decimal      `json:"remaining"`
	UtilizationPct float64              `json:"utilizationPct"`
	Exact          bool                 `json:"exact"`
}

// ReportInput bounds a spending report. A zero window defaults to the
// trailing thirty days.
type ReportInput struct {
	CompanyID  uuid.UUID                `json:"companyId"`
	EntityType enums.SpendingEntityType `json:"entityType,omitempty"`
	EntityID   uuid.UUID                `json:"entityId,omitempty"`
	From       time.Time                `json:"from"`
	To         time.Time                `json:"to"`
}

// SpendingReport is the structured aggregation payload. Rendering to an
// export format is the consumer's problem.
type SpendingReport struct {
	CompanyID        uuid.UUID       `json:"companyId"`
	From             time.Time       `json:"from"`
	To               time.Time       `json:"to"`
	TotalSpent       decimal.Decimal `json:"totalSpent"`
	TransactionCount int64           `json:"transactionCount"`
	AverageAmount    decimal.Decimal `json:"averageAmount"`
	ByCategory       []CategoryTotal `json:"byCategory"`
	ByType           []TypeTotal     `json:"byType"`
	TopEmployees     []EmployeeTotal `json:"topEmployees"`
	Daily            []DayTotal      `json:"daily"`
}

// Service is the read-side aggregation layer. It never mutates engine state:
// dashboards read cached counters, correctness views recompute from the
// ledger on demand.
type Service interface {
	GetBudgetSummary(ctx context.Context, limitID uuid.UUID, exact bool) (*BudgetSummary, error)
	GetBudgetSummaries(ctx context.Context, employeeID uuid.UUID) ([]BudgetSummary, error)
	GetReport(ctx context.Context, input ReportInput) (*SpendingReport, error)
}

type service struct {
	repo      Repository
	limits    limitReader
	directory directoryReader
	logg      *logger.Logger
}

// ServiceParams wire the reporting collaborators.
type ServiceParams struct {
	Repo      Repository
	Limits    limitReader
	Directory directoryReader
	Logger    *logger.Logger
}

// NewService builds the reporting service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reporting repository required")
	}
	if params.Limits == nil {
		return nil, fmt.Errorf("limit reader required")
	}
	if params.Directory == nil {
		return nil, fmt.Errorf("directory reader required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		limits:    params.Limits,
		directory: params.Directory,
		logg:      params.Logger,
	}, nil
}

func (s *service) GetBudgetSummary(ctx context.Context, limitID uuid.UUID, exact bool) (*BudgetSummary, error) {
	limit, err := s.limits.GetLimit(ctx, limitID)
	if err != nil {
		return nil, err
	}
	summary := s.summarize(ctx, *limit, exact)
	return &summary, nil
}

// GetBudgetSummaries is the dashboard view over every limit applicable to
// the employee. Cached counters are good enough here.
func (s *service) GetBudgetSummaries(ctx context.Context, employeeID uuid.UUID) ([]BudgetSummary, error) {
	if employeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id is required")
	}
	employee, err := s.directory.FindEmployee(ctx, employeeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load employee")
	}
	if employee == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "employee not found")
	}
	limits, err := s.limits.GetApplicableLimits(ctx, employee)
	if err != nil {
		return nil, err
	}
	summaries := make([]BudgetSummary, 0, len(limits))
	for _, limit := range limits {
		summaries = append(summaries, s.summarize(ctx, limit, false))
	}
	return summaries, nil
}

// summarize builds one budget line. When an exact recomputation fails the
// cached counter is served instead, with Exact left false.
func (s *service) summarize(ctx context.Context, limit models.SpendingLimit, exact bool) BudgetSummary {
	spent := limit.CurrentSpending
	if exact {
		recomputed, err := s.limits.RecomputeSpending(ctx, &limit)
		if err != nil {
			logCtx := s.logg.WithField(ctx, "limit_id", limit.ID.String())
			s.logg.Warn(logCtx, "recompute failed, serving cached spending")
			exact = false
		} else {
			spent = recomputed
		}
	}
	summary := BudgetSummary{
		Limit:     limit,
		Spent:     spent,
		Remaining: limit.LimitAmount.Sub(spent),
		Exact:     exact,
	}
	if limit.LimitAmount.IsPositive() {
		utilization, _ := spent.Div(limit.LimitAmount).Mul(decimal.NewFromInt(100)).Float64()
		summary.UtilizationPct = utilization
	}
	return summary
}

func (s *service) GetReport(ctx context.Context, input ReportInput) (*SpendingReport, error) {
	if input.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	if input.To.IsZero() {
		input.To = time.Now().UTC()
	}
	if input.From.IsZero() {
		input.From = input.To.AddDate(0, 0, -defaultReportDays)
	}
	if !input.To.After(input.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report window must end after it starts")
	}
	if input.EntityType != "" && !input.EntityType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type")
	}

	window := Window{
		CompanyID:  input.CompanyID,
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		From:       input.From,
		To:         input.To,
	}
	totals, err := s.repo.Totals(ctx, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate totals")
	}
	byCategory, err := s.repo.ByCategory(ctx, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate by category")
	}
	byType, err := s.repo.ByType(ctx, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate by type")
	}
	topEmployees, err := s.repo.TopEmployees(ctx, window, topEmployeeRows)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate top employees")
	}
	daily, err := s.repo.DailySeries(ctx, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate daily series")
	}

	report := &SpendingReport{
		CompanyID:        input.CompanyID,
		From:             input.From,
		To:               input.To,
		TransactionCount: totals.Count,
		ByCategory:       byCategory,
		ByType:           byType,
		TopEmployees:     topEmployees,
		Daily:            daily,
	}
	if totals.Total.Valid {
		report.TotalSpent = totals.Total.Decimal
	}
	if totals.Count > 0 {
		report.AverageAmount = report.TotalSpent.Div(decimal.NewFromInt(totals.Count)).Round(2)
	}
	return report, nil
}
