package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/api/middleware"
	"github.com/bijouxtrade/bijoux-backend/api/responses"
	"github.com/bijouxtrade/bijoux-backend/api/validators"
	"github.com/bijouxtrade/bijoux-backend/internal/limits"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

// ListLimits returns the company's spending limits.
func ListLimits(svc limits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "limits service unavailable"))
			return
		}

		items, err := svc.ListLimits(r.Context(), middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// GetLimit returns one spending limit.
func GetLimit(svc limits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "limits service unavailable"))
			return
		}

		limitID, err := validators.ParsePathUUID(chi.URLParam(r, "limitId"), "limitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := svc.GetLimit(r.Context(), limitID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if limit.CompanyID != middleware.CompanyIDFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "limit not found"))
			return
		}
		responses.WriteSuccess(w, limit)
	}
}

type createLimitRequest struct {
	Name                string          `json:"name" validate:"required,max=120"`
	EntityType          string          `json:"entityType" validate:"required"`
	EntityID            string          `json:"entityId" validate:"required,uuid"`
	Period              string          `json:"period" validate:"required"`
	LimitAmount         decimal.Decimal `json:"limitAmount" validate:"required"`
	Currency            string          `json:"currency" validate:"required"`
	WarningThresholdPct int             `json:"warningThresholdPct" validate:"omitempty,min=1,max=100"`
}

// CreateLimit registers a new spending limit.
func CreateLimit(svc limits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "limits service unavailable"))
			return
		}

		var body createLimitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entityType, err := enums.ParseSpendingEntityType(body.EntityType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity type"))
			return
		}
		entityID, err := validators.ParsePathUUID(body.EntityID, "entityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := enums.ParseLimitPeriod(body.Period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period"))
			return
		}
		currency, err := enums.ParseCurrency(body.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		limit, err := svc.CreateLimit(r.Context(), limits.CreateLimitInput{
			CompanyID:           middleware.CompanyIDFromContext(r.Context()),
			Name:                body.Name,
			EntityType:          entityType,
			EntityID:            entityID,
			Period:              period,
			LimitAmount:         body.LimitAmount,
			Currency:            currency,
			WarningThresholdPct: body.WarningThresholdPct,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, limit)
	}
}

type updateLimitRequest struct {
	Name                *string          `json:"name,omitempty" validate:"omitempty,max=120"`
	LimitAmount         *decimal.Decimal `json:"limitAmount,omitempty"`
	WarningThresholdPct *int             `json:"warningThresholdPct,omitempty" validate:"omitempty,min=1,max=100"`
	IsActive            *bool            `json:"isActive,omitempty"`
}

// UpdateLimit adjusts the mutable fields of a spending limit.
func UpdateLimit(svc limits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "limits service unavailable"))
			return
		}

		limitID, err := validators.ParsePathUUID(chi.URLParam(r, "limitId"), "limitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateLimitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := svc.UpdateLimit(r.Context(), limitID, limits.UpdateLimitInput{
			Name:                body.Name,
			LimitAmount:         body.LimitAmount,
			WarningThresholdPct: body.WarningThresholdPct,
			IsActive:            body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, limit)
	}
}

// DeleteLimit retires a spending limit.
func DeleteLimit(svc limits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "limits service unavailable"))
			return
		}

		limitID, err := validators.ParsePathUUID(chi.URLParam(r, "limitId"), "limitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteLimit(r.Context(), limitID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

type resetLimitRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ResetLimit zeroes a limit's period counter with an audited reason.
func ResetLimit(svc limits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "limits service unavailable"))
			return
		}

		limitID, err := validators.ParsePathUUID(chi.URLParam(r, "limitId"), "limitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body resetLimitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := svc.ResetLimit(r.Context(), limitID, middleware.EmployeeIDFromContext(r.Context()), body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, limit)
	}
}
