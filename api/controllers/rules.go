package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bijouxtrade/bijoux-backend/api/middleware"
	"github.com/bijouxtrade/bijoux-backend/api/responses"
	"github.com/bijouxtrade/bijoux-backend/api/validators"
	"github.com/bijouxtrade/bijoux-backend/internal/rules"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

// ListRules returns the company's spending rules.
func ListRules(svc rules.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rule engine unavailable"))
			return
		}

		items, err := svc.ListRules(r.Context(), middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// GetRule returns one spending rule.
func GetRule(svc rules.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rule engine unavailable"))
			return
		}

		ruleID, err := validators.ParsePathUUID(chi.URLParam(r, "ruleId"), "ruleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rule, err := svc.GetRule(r.Context(), ruleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rule.CompanyID != middleware.CompanyIDFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "rule not found"))
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

type createRuleRequest struct {
	Name          string          `json:"name" validate:"required,max=120"`
	TriggerType   string          `json:"triggerType" validate:"required"`
	TriggerParams json.RawMessage `json:"triggerParams" validate:"required"`
	Action        string          `json:"action" validate:"required"`
	Priority      int             `json:"priority" validate:"omitempty,min=0,max=1000"`
}

// CreateRule registers a new spending rule.
func CreateRule(svc rules.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rule engine unavailable"))
			return
		}

		var body createRuleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		triggerType, err := enums.ParseRuleTriggerType(body.TriggerType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid trigger type"))
			return
		}
		action, err := enums.ParseRuleAction(body.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		rule, err := svc.CreateRule(r.Context(), rules.CreateRuleInput{
			CompanyID:     middleware.CompanyIDFromContext(r.Context()),
			Name:          body.Name,
			TriggerType:   triggerType,
			TriggerParams: body.TriggerParams,
			Action:        action,
			Priority:      body.Priority,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rule)
	}
}

type updateRuleRequest struct {
	Name          *string         `json:"name,omitempty" validate:"omitempty,max=120"`
	TriggerParams json.RawMessage `json:"triggerParams,omitempty"`
	Action        *string         `json:"action,omitempty"`
	Priority      *int            `json:"priority,omitempty" validate:"omitempty,min=0,max=1000"`
	IsActive      *bool           `json:"isActive,omitempty"`
}

// UpdateRule adjusts the mutable fields of a spending rule.
func UpdateRule(svc rules.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rule engine unavailable"))
			return
		}

		ruleID, err := validators.ParsePathUUID(chi.URLParam(r, "ruleId"), "ruleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateRuleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := rules.UpdateRuleInput{
			Name:          body.Name,
			TriggerParams: body.TriggerParams,
			Priority:      body.Priority,
			IsActive:      body.IsActive,
		}
		if body.Action != nil {
			action, parseErr := enums.ParseRuleAction(*body.Action)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid action"))
				return
			}
			input.Action = &action
		}

		rule, err := svc.UpdateRule(r.Context(), ruleID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

// DeleteRule retires a spending rule.
func DeleteRule(svc rules.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rule engine unavailable"))
			return
		}

		ruleID, err := validators.ParsePathUUID(chi.URLParam(r, "ruleId"), "ruleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteRule(r.Context(), ruleID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
