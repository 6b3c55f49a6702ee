package rules

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

type fakeRepository struct {
	rules    []models.SpendingRule
	findFn   func(ctx context.Context, id uuid.UUID) (*models.SpendingRule, error)
	createFn func(ctx context.Context, rule *models.SpendingRule) error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.SpendingRule, error) {
	if f.findFn != nil {
		return f.findFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeRepository) ListActive(ctx context.Context, companyID uuid.UUID) ([]models.SpendingRule, error) {
	return f.rules, nil
}

func (f *fakeRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.SpendingRule, error) {
	return f.rules, nil
}

func (f *fakeRepository) Create(ctx context.Context, rule *models.SpendingRule) error {
	if f.createFn != nil {
		return f.createFn(ctx, rule)
	}
	return nil
}

func (f *fakeRepository) Save(ctx context.Context, rule *models.SpendingRule) error { return nil }
func (f *fakeRepository) Delete(ctx context.Context, id uuid.UUID) error            { return nil }

type fakeActivity struct {
	count int64
	total decimal.Decimal
}

func (f *fakeActivity) TrailingActivity(ctx context.Context, employeeID uuid.UUID, window time.Duration) (int64, decimal.Decimal, error) {
	return f.count, f.total, nil
}

func newTestEngine(t *testing.T, repo Repository, activity ledgerActivity) Engine {
	t.Helper()
	eng, err := NewEngine(repo, activity, logger.New(logger.Options{ServiceName: "rules-test"}))
	if err != nil {
		t.Fatalf("unexpected engine error: %v", err)
	}
	return eng
}

func rule(trigger enums.RuleTriggerType, params string, action enums.RuleAction, priority int) models.SpendingRule {
	return models.SpendingRule{
		ID:            uuid.New(),
		CompanyID:     uuid.New(),
		Name:          string(trigger),
		TriggerType:   trigger,
		TriggerParams: json.RawMessage(params),
		Action:        action,
		Priority:      priority,
		IsActive:      true,
	}
}

func TestEngine_EvaluateAmountExceeds(t *testing.T) {
	repo := &fakeRepository{rules: []models.SpendingRule{
		rule(enums.RuleTriggerAmountExceeds, `{"threshold":"1000"}`, enums.RuleActionRequireApproval, 10),
	}}
	eng := newTestEngine(t, repo, &fakeActivity{})

	triggered, err := eng.Evaluate(context.Background(), uuid.New(), Purchase{
		Amount: decimal.NewFromInt(1500), EmployeeID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(triggered) != 1 {
		t.Fatalf("triggered = %d, want 1", len(triggered))
	}

	triggered, err = eng.Evaluate(context.Background(), uuid.New(), Purchase{
		Amount: decimal.NewFromInt(1000), EmployeeID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(triggered) != 0 {
		t.Fatal("amount equal to threshold must not trigger")
	}
}

func TestEngine_EvaluateRestrictedCategoryBlocks(t *testing.T) {
	// Ample budget, tiny amount: the rule alone must carry the block.
	repo := &fakeRepository{rules: []models.SpendingRule{
		rule(enums.RuleTriggerCategoryRestricted, `{"categories":["cat_gems"]}`, enums.RuleActionBlock, 10),
	}}
	eng := newTestEngine(t, repo, &fakeActivity{})

	triggered, err := eng.Evaluate(context.Background(), uuid.New(), Purchase{
		Amount:     decimal.NewFromInt(50),
		CategoryID: "cat_gems",
		EmployeeID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(triggered) != 1 {
		t.Fatalf("triggered = %d, want 1", len(triggered))
	}
	action, ok := NetAction(triggered)
	if !ok || action != enums.RuleActionBlock {
		t.Fatalf("net action = %s, want block", action)
	}
}

func TestEngine_EvaluateTimeWindowWrapsMidnight(t *testing.T) {
	repo := &fakeRepository{rules: []models.SpendingRule{
		rule(enums.RuleTriggerTimeWindow, `{"startHour":20,"endHour":6}`, enums.RuleActionWarn, 10),
	}}
	eng := newTestEngine(t, repo, &fakeActivity{})

	night := time.Date(2026, time.March, 18, 23, 15, 0, 0, time.UTC)
	triggered, err := eng.Evaluate(context.Background(), uuid.New(), Purchase{
		Amount: decimal.NewFromInt(10), EmployeeID: uuid.New(), Timestamp: night,
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(triggered) != 1 {
		t.Fatal("23:15 should fall inside the 20-06 window")
	}

	noon := time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC)
	triggered, _ = eng.Evaluate(context.Background(), uuid.New(), Purchase{
		Amount: decimal.NewFromInt(10), EmployeeID: uuid.New(), Timestamp: noon,
	})
	if len(triggered) != 0 {
		t.Fatal("noon should fall outside the 20-06 window")
	}
}

func TestEngine_EvaluateVelocityCaps(t *testing.T) {
	repo := &fakeRepository{rules: []models.SpendingRule{
		rule(enums.RuleTriggerVelocity, `{"windowMinutes":60,"maxCount":3}`, enums.RuleActionRequireApproval, 10),
	}}
	activity := &fakeActivity{count: 3, total: decimal.NewFromInt(400)}
	eng := newTestEngine(t, repo, activity)

	triggered, err := eng.Evaluate(context.Background(), uuid.New(), Purchase{
		Amount: decimal.NewFromInt(100), EmployeeID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(triggered) != 1 {
		t.Fatal("count at the cap should trigger")
	}

	activity.count = 2
	triggered, _ = eng.Evaluate(context.Background(), uuid.New(), Purchase{
		Amount: decimal.NewFromInt(100), EmployeeID: uuid.New(),
	})
	if len(triggered) != 0 {
		t.Fatal("count under the cap should not trigger")
	}
}

func TestEngine_EvaluateSkipsMalformedRules(t *testing.T) {
	repo := &fakeRepository{rules: []models.SpendingRule{
		rule(enums.RuleTriggerAmountExceeds, `{broken`, enums.RuleActionBlock, 1),
		rule(enums.RuleTriggerAmountExceeds, `{"threshold":"100"}`, enums.RuleActionWarn, 2),
	}}
	eng := newTestEngine(t, repo, &fakeActivity{})

	triggered, err := eng.Evaluate(context.Background(), uuid.New(), Purchase{
		Amount: decimal.NewFromInt(200), EmployeeID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("malformed rule must not fail the evaluation: %v", err)
	}
	if len(triggered) != 1 || triggered[0].Rule.Action != enums.RuleActionWarn {
		t.Fatalf("only the well-formed rule should trigger, got %d", len(triggered))
	}
}

func TestNetActionDominance(t *testing.T) {
	warn := TriggeredRule{Rule: models.SpendingRule{Action: enums.RuleActionWarn}}
	approval := TriggeredRule{Rule: models.SpendingRule{Action: enums.RuleActionRequireApproval}}
	block := TriggeredRule{Rule: models.SpendingRule{Action: enums.RuleActionBlock}}

	if _, ok := NetAction(nil); ok {
		t.Fatal("no matches should yield no action")
	}
	if action, _ := NetAction([]TriggeredRule{warn, approval}); action != enums.RuleActionRequireApproval {
		t.Fatalf("net = %s, want require_approval", action)
	}
	if action, _ := NetAction([]TriggeredRule{warn, block, approval}); action != enums.RuleActionBlock {
		t.Fatalf("net = %s, want block", action)
	}
}

func TestEngine_CreateRuleValidatesParams(t *testing.T) {
	repo := &fakeRepository{}
	eng := newTestEngine(t, repo, &fakeActivity{})

	_, err := eng.CreateRule(context.Background(), CreateRuleInput{
		CompanyID:     uuid.New(),
		Name:          "no caps",
		TriggerType:   enums.RuleTriggerVelocity,
		TriggerParams: json.RawMessage(`{"windowMinutes":60}`),
		Action:        enums.RuleActionWarn,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidConfig) {
		t.Fatalf("expected invalid configuration error, got %v", err)
	}

	created, err := eng.CreateRule(context.Background(), CreateRuleInput{
		CompanyID:     uuid.New(),
		Name:          "hourly cap",
		TriggerType:   enums.RuleTriggerVelocity,
		TriggerParams: json.RawMessage(`{"windowMinutes":60,"maxCount":5}`),
		Action:        enums.RuleActionWarn,
	})
	if err != nil {
		t.Fatalf("CreateRule error: %v", err)
	}
	if created.Priority != 100 {
		t.Fatalf("default priority = %d, want 100", created.Priority)
	}
}
