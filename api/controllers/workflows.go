package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/api/middleware"
	"github.com/bijouxtrade/bijoux-backend/api/responses"
	"github.com/bijouxtrade/bijoux-backend/api/validators"
	"github.com/bijouxtrade/bijoux-backend/internal/approvals"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

type workflowRequest struct {
	Name                string                   `json:"name" validate:"required,max=120"`
	EntityType          string                   `json:"entityType" validate:"required"`
	Triggers            []models.WorkflowTrigger `json:"triggers" validate:"required,min=1"`
	Levels              []models.WorkflowLevel   `json:"levels" validate:"required,min=1"`
	FallbackApproverIDs []string                 `json:"fallbackApproverIds" validate:"omitempty,dive,uuid"`
}

func (req workflowRequest) toInput(companyID uuid.UUID) (approvals.WorkflowInput, error) {
	entityType, err := enums.ParseWorkflowEntityType(req.EntityType)
	if err != nil {
		return approvals.WorkflowInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity type")
	}
	fallback := make([]uuid.UUID, 0, len(req.FallbackApproverIDs))
	for _, raw := range req.FallbackApproverIDs {
		id, parseErr := validators.ParsePathUUID(raw, "fallbackApproverIds")
		if parseErr != nil {
			return approvals.WorkflowInput{}, parseErr
		}
		fallback = append(fallback, id)
	}
	return approvals.WorkflowInput{
		CompanyID:           companyID,
		Name:                req.Name,
		EntityType:          entityType,
		Triggers:            req.Triggers,
		Levels:              req.Levels,
		FallbackApproverIDs: fallback,
	}, nil
}

// ListWorkflows returns the company's workflow definitions.
func ListWorkflows(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		workflows, err := svc.ListWorkflows(r.Context(), middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, workflows)
	}
}

// GetWorkflow returns one workflow definition.
func GetWorkflow(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		workflowID, err := validators.ParsePathUUID(chi.URLParam(r, "workflowId"), "workflowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		workflow, err := svc.GetWorkflow(r.Context(), workflowID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if workflow.CompanyID != middleware.CompanyIDFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "workflow not found"))
			return
		}
		responses.WriteSuccess(w, workflow)
	}
}

// CreateWorkflow registers a new workflow definition.
func CreateWorkflow(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		var body workflowRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput(middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		workflow, err := svc.CreateWorkflow(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, workflow)
	}
}

// UpdateWorkflow replaces a workflow definition with a new version.
func UpdateWorkflow(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		workflowID, err := validators.ParsePathUUID(chi.URLParam(r, "workflowId"), "workflowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body workflowRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput(middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		workflow, err := svc.UpdateWorkflow(r.Context(), workflowID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, workflow)
	}
}

// DeleteWorkflow deactivates a workflow; open requests keep their frozen levels.
func DeleteWorkflow(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		workflowID, err := validators.ParsePathUUID(chi.URLParam(r, "workflowId"), "workflowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteWorkflow(r.Context(), workflowID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}
