package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/api/middleware"
	"github.com/bijouxtrade/bijoux-backend/api/responses"
	"github.com/bijouxtrade/bijoux-backend/api/validators"
	"github.com/bijouxtrade/bijoux-backend/internal/approvals"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

type delegationRequest struct {
	DelegatorID string           `json:"delegatorId" validate:"required,uuid"`
	DelegateeID string           `json:"delegateeId" validate:"required,uuid"`
	StartDate   time.Time        `json:"startDate" validate:"required"`
	EndDate     time.Time        `json:"endDate" validate:"required"`
	EntityTypes []string         `json:"entityTypes,omitempty"`
	MaxAmount   *decimal.Decimal `json:"maxAmount,omitempty"`
}

func (req delegationRequest) toInput(companyID uuid.UUID) (approvals.DelegationInput, error) {
	delegatorID, err := validators.ParsePathUUID(req.DelegatorID, "delegatorId")
	if err != nil {
		return approvals.DelegationInput{}, err
	}
	delegateeID, err := validators.ParsePathUUID(req.DelegateeID, "delegateeId")
	if err != nil {
		return approvals.DelegationInput{}, err
	}
	return approvals.DelegationInput{
		CompanyID:   companyID,
		DelegatorID: delegatorID,
		DelegateeID: delegateeID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		EntityTypes: req.EntityTypes,
		MaxAmount:   req.MaxAmount,
	}, nil
}

// ListDelegations returns the company's delegation windows.
func ListDelegations(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		delegations, err := svc.ListDelegations(r.Context(), middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delegations)
	}
}

// CreateDelegation registers a standing out-of-office delegation.
func CreateDelegation(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		var body delegationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput(middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delegation, err := svc.CreateDelegation(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, delegation)
	}
}

// UpdateDelegation rewrites an existing delegation window.
func UpdateDelegation(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		delegationID, err := validators.ParsePathUUID(chi.URLParam(r, "delegationId"), "delegationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body delegationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput(middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delegation, err := svc.UpdateDelegation(r.Context(), delegationID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delegation)
	}
}

// DeleteDelegation retires a delegation window.
func DeleteDelegation(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		delegationID, err := validators.ParsePathUUID(chi.URLParam(r, "delegationId"), "delegationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteDelegation(r.Context(), delegationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}
