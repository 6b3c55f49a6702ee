package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

type ledgerActivity interface {
	TrailingActivity(ctx context.Context, employeeID uuid.UUID, window time.Duration) (int64, decimal.Decimal, error)
}

// Purchase is the prospective purchase context a rule evaluates against.
type Purchase struct {
	Amount     decimal.Decimal
	CategoryID string
	EmployeeID uuid.UUID
	Timestamp  time.Time
}

// TriggeredRule pairs a matched rule with a human-readable reason.
type TriggeredRule struct {
	Rule   models.SpendingRule
	Reason string
}

// Engine evaluates company spending rules and manages their configuration.
type Engine interface {
	Evaluate(ctx context.Context, companyID uuid.UUID, purchase Purchase) ([]TriggeredRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (*models.SpendingRule, error)
	ListRules(ctx context.Context, companyID uuid.UUID) ([]models.SpendingRule, error)
	CreateRule(ctx context.Context, input CreateRuleInput) (*models.SpendingRule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, input UpdateRuleInput) (*models.SpendingRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

type engine struct {
	repo   Repository
	ledger ledgerActivity
	logg   *logger.Logger
}

// CreateRuleInput captures the admin-configured fields of a new rule.
type CreateRuleInput struct {
	CompanyID     uuid.UUID
	Name          string
	TriggerType   enums.RuleTriggerType
	TriggerParams json.RawMessage
	Action        enums.RuleAction
	Priority      int
}

// UpdateRuleInput captures the mutable fields of an existing rule.
type UpdateRuleInput struct {
	Name          *string
	TriggerParams json.RawMessage
	Action        *enums.RuleAction
	Priority      *int
	IsActive      *bool
}

// NewEngine wires a rule engine.
func NewEngine(repo Repository, ledgerActivity ledgerActivity, logg *logger.Logger) (Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("rules repository required")
	}
	if ledgerActivity == nil {
		return nil, fmt.Errorf("ledger activity reader required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &engine{repo: repo, ledger: ledgerActivity, logg: logg}, nil
}

// Evaluate runs every active rule in priority order and returns all matches,
// so the caller can surface every reason at once. A rule with malformed
// trigger params is skipped and logged; a misconfigured rule must never take
// down purchasing for the whole company.
func (e *engine) Evaluate(ctx context.Context, companyID uuid.UUID, purchase Purchase) ([]TriggeredRule, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	if purchase.Timestamp.IsZero() {
		purchase.Timestamp = time.Now().UTC()
	}

	rules, err := e.repo.ListActive(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active rules")
	}

	var triggered []TriggeredRule
	for _, rule := range rules {
		params, err := ParseTriggerParams(rule)
		if err != nil {
			logCtx := e.logg.WithField(ctx, "rule_id", rule.ID.String())
			e.logg.Warn(logCtx, fmt.Sprintf("skipping misconfigured spending rule: %v", err))
			continue
		}
		match, reason, err := e.match(ctx, purchase, params)
		if err != nil {
			return nil, err
		}
		if match {
			triggered = append(triggered, TriggeredRule{Rule: rule, Reason: reason})
		}
	}
	return triggered, nil
}

func (e *engine) match(ctx context.Context, purchase Purchase, params any) (bool, string, error) {
	switch p := params.(type) {
	case AmountExceedsParams:
		if purchase.Amount.GreaterThan(p.Threshold) {
			return true, fmt.Sprintf("amount %s exceeds threshold %s", purchase.Amount, p.Threshold), nil
		}
	case CategoryRestrictedParams:
		for _, category := range p.Categories {
			if category == purchase.CategoryID {
				return true, fmt.Sprintf("category %s is restricted", purchase.CategoryID), nil
			}
		}
	case TimeWindowParams:
		if insideWindow(purchase.Timestamp.UTC().Hour(), p) {
			return true, fmt.Sprintf("purchase at %02d:00 UTC falls in restricted hours", purchase.Timestamp.UTC().Hour()), nil
		}
	case VelocityParams:
		window := time.Duration(p.WindowMinutes) * time.Minute
		count, total, err := e.ledger.TrailingActivity(ctx, purchase.EmployeeID, window)
		if err != nil {
			return false, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "velocity lookup")
		}
		if p.MaxCount != nil && count >= *p.MaxCount {
			return true, fmt.Sprintf("%d purchases in the last %d minutes", count, p.WindowMinutes), nil
		}
		if p.MaxAmount != nil && total.Add(purchase.Amount).GreaterThan(*p.MaxAmount) {
			return true, fmt.Sprintf("%s spent in the last %d minutes", total, p.WindowMinutes), nil
		}
	}
	return false, "", nil
}

// NetAction reduces triggered rules to the single dominant action:
// block over require_approval over warn. The second return is false when
// nothing triggered.
func NetAction(triggered []TriggeredRule) (enums.RuleAction, bool) {
	var net enums.RuleAction
	for _, match := range triggered {
		if match.Rule.Action.Severity() > net.Severity() {
			net = match.Rule.Action
		}
	}
	return net, net != ""
}

func (e *engine) GetRule(ctx context.Context, id uuid.UUID) (*models.SpendingRule, error) {
	rule, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rule")
	}
	if rule == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rule not found")
	}
	return rule, nil
}

func (e *engine) ListRules(ctx context.Context, companyID uuid.UUID) ([]models.SpendingRule, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	rules, err := e.repo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rules")
	}
	return rules, nil
}

func (e *engine) CreateRule(ctx context.Context, input CreateRuleInput) (*models.SpendingRule, error) {
	if input.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rule name is required")
	}
	if !input.TriggerType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid trigger type %q", input.TriggerType))
	}
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid action %q", input.Action))
	}

	rule := &models.SpendingRule{
		CompanyID:     input.CompanyID,
		Name:          input.Name,
		TriggerType:   input.TriggerType,
		TriggerParams: input.TriggerParams,
		Action:        input.Action,
		Priority:      input.Priority,
		IsActive:      true,
	}
	if rule.Priority == 0 {
		rule.Priority = 100
	}
	if _, err := ParseTriggerParams(*rule); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidConfig, err, "invalid trigger params")
	}
	if err := e.repo.Create(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rule")
	}
	return rule, nil
}

func (e *engine) UpdateRule(ctx context.Context, id uuid.UUID, input UpdateRuleInput) (*models.SpendingRule, error) {
	rule, err := e.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		if *input.Name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "rule name cannot be empty")
		}
		rule.Name = *input.Name
	}
	if input.TriggerParams != nil {
		rule.TriggerParams = input.TriggerParams
	}
	if input.Action != nil {
		if !input.Action.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid action %q", *input.Action))
		}
		rule.Action = *input.Action
	}
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}
	if _, err := ParseTriggerParams(*rule); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidConfig, err, "invalid trigger params")
	}
	if err := e.repo.Save(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update rule")
	}
	return rule, nil
}

func (e *engine) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if _, err := e.GetRule(ctx, id); err != nil {
		return err
	}
	if err := e.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete rule")
	}
	return nil
}
