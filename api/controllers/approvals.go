package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/api/middleware"
	"github.com/bijouxtrade/bijoux-backend/api/responses"
	"github.com/bijouxtrade/bijoux-backend/api/validators"
	"github.com/bijouxtrade/bijoux-backend/internal/approvals"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

type createApprovalRequest struct {
	EntityType string          `json:"entityType" validate:"required"`
	EntityID   string          `json:"entityId" validate:"required,uuid"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Currency   string          `json:"currency" validate:"required"`
	CategoryID string          `json:"categoryId"`
	Reason     string          `json:"reason"`
	WorkflowID string          `json:"workflowId,omitempty" validate:"omitempty,uuid"`
}

// CreateApproval opens a new approval request for the acting employee.
func CreateApproval(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		var body createApprovalRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entityType, err := enums.ParseWorkflowEntityType(body.EntityType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity type"))
			return
		}
		entityID, err := validators.ParsePathUUID(body.EntityID, "entityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency, err := enums.ParseCurrency(body.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		input := approvals.CreateRequestInput{
			CompanyID:   middleware.CompanyIDFromContext(r.Context()),
			RequesterID: middleware.EmployeeIDFromContext(r.Context()),
			EntityType:  entityType,
			EntityID:    entityID,
			Amount:      body.Amount,
			Currency:    currency,
			CategoryID:  body.CategoryID,
			Reason:      body.Reason,
		}
		if body.WorkflowID != "" {
			workflowID, parseErr := validators.ParsePathUUID(body.WorkflowID, "workflowId")
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, parseErr)
				return
			}
			input.WorkflowID = &workflowID
		}

		request, err := svc.CreateRequest(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

// ListApprovals returns the company's requests filtered by status, requester,
// or entity type.
func ListApprovals(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		filter := approvals.RequestFilter{CompanyID: middleware.CompanyIDFromContext(r.Context())}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseApprovalStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = status
		}
		requesterID, err := validators.ParseQueryUUID(r, "requesterId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.RequesterID = requesterID
		if raw := strings.TrimSpace(r.URL.Query().Get("entityType")); raw != "" {
			entityType, err := enums.ParseWorkflowEntityType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity type"))
				return
			}
			filter.EntityType = entityType
		}

		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requests, next, err := svc.List(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"requests": requests, "nextCursor": next})
	}
}

// GetApproval returns one request with its full action trail.
func GetApproval(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		requestID, err := validators.ParsePathUUID(chi.URLParam(r, "requestId"), "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if detail.Request.CompanyID != middleware.CompanyIDFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "approval request not found"))
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// MyPendingApprovals lists the open requests waiting on the actor.
func MyPendingApprovals(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		requests, err := svc.GetMyPending(r.Context(), middleware.EmployeeIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, requests)
	}
}

// MySubmittedApprovals lists the requests the actor has opened.
func MySubmittedApprovals(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requests, next, err := svc.GetMySubmitted(r.Context(), middleware.EmployeeIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"requests": requests, "nextCursor": next})
	}
}

// ApprovalStats returns the per-status breakdown and average resolution time.
func ApprovalStats(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		stats, err := svc.GetStats(r.Context(), middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

type approvalActionRequest struct {
	Action       string `json:"action" validate:"required"`
	Comment      string `json:"comment"`
	DelegateToID string `json:"delegateToId,omitempty" validate:"omitempty,uuid"`
}

// ApprovalAction dispatches any approval verb through one endpoint.
func ApprovalAction(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		requestID, err := validators.ParsePathUUID(chi.URLParam(r, "requestId"), "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body approvalActionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		action, err := enums.ParseApprovalActionType(body.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		input := approvals.ActionInput{Action: action, Comment: body.Comment}
		if body.DelegateToID != "" {
			delegateToID, parseErr := validators.ParsePathUUID(body.DelegateToID, "delegateToId")
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, parseErr)
				return
			}
			input.DelegateToID = &delegateToID
		}

		result, err := svc.TakeAction(r.Context(), middleware.EmployeeIDFromContext(r.Context()), requestID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type approvalCommentRequest struct {
	Comment string `json:"comment"`
}

type approvalVerb func(svc approvals.Service, r *http.Request, requestID uuid.UUID, comment string) (*approvals.ActionResult, error)

func approvalVerbHandler(svc approvals.Service, logg *logger.Logger, verb approvalVerb) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		requestID, err := validators.ParsePathUUID(chi.URLParam(r, "requestId"), "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body approvalCommentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := verb(svc, r, requestID, body.Comment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ApproveRequest(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return approvalVerbHandler(svc, logg, func(svc approvals.Service, r *http.Request, requestID uuid.UUID, comment string) (*approvals.ActionResult, error) {
		return svc.Approve(r.Context(), middleware.EmployeeIDFromContext(r.Context()), requestID, comment)
	})
}

func RejectRequest(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return approvalVerbHandler(svc, logg, func(svc approvals.Service, r *http.Request, requestID uuid.UUID, comment string) (*approvals.ActionResult, error) {
		return svc.Reject(r.Context(), middleware.EmployeeIDFromContext(r.Context()), requestID, comment)
	})
}

func EscalateRequest(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return approvalVerbHandler(svc, logg, func(svc approvals.Service, r *http.Request, requestID uuid.UUID, comment string) (*approvals.ActionResult, error) {
		return svc.Escalate(r.Context(), middleware.EmployeeIDFromContext(r.Context()), requestID, comment)
	})
}

func RequestInfo(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return approvalVerbHandler(svc, logg, func(svc approvals.Service, r *http.Request, requestID uuid.UUID, comment string) (*approvals.ActionResult, error) {
		return svc.RequestInfo(r.Context(), middleware.EmployeeIDFromContext(r.Context()), requestID, comment)
	})
}

func RespondToRequest(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return approvalVerbHandler(svc, logg, func(svc approvals.Service, r *http.Request, requestID uuid.UUID, comment string) (*approvals.ActionResult, error) {
		return svc.Respond(r.Context(), middleware.EmployeeIDFromContext(r.Context()), requestID, comment)
	})
}

func CommentOnRequest(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return approvalVerbHandler(svc, logg, func(svc approvals.Service, r *http.Request, requestID uuid.UUID, comment string) (*approvals.ActionResult, error) {
		return svc.AddComment(r.Context(), middleware.EmployeeIDFromContext(r.Context()), requestID, comment)
	})
}

type delegateRequest struct {
	DelegateToID string `json:"delegateToId" validate:"required,uuid"`
	Comment      string `json:"comment"`
}

// DelegateRequest hands the actor's approval seat to another employee.
func DelegateRequest(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		requestID, err := validators.ParsePathUUID(chi.URLParam(r, "requestId"), "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body delegateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		delegateToID, err := validators.ParsePathUUID(body.DelegateToID, "delegateToId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Delegate(r.Context(), middleware.EmployeeIDFromContext(r.Context()), requestID, delegateToID, body.Comment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type bulkActionRequest struct {
	RequestIDs []string `json:"requestIds" validate:"required,min=1,max=50,dive,uuid"`
	Comment    string   `json:"comment"`
}

func bulkHandler(svc approvals.Service, logg *logger.Logger, run func(svc approvals.Service, r *http.Request, ids []uuid.UUID, comment string) []approvals.BulkResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approvals service unavailable"))
			return
		}

		var body bulkActionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ids := make([]uuid.UUID, 0, len(body.RequestIDs))
		for _, raw := range body.RequestIDs {
			id, err := validators.ParsePathUUID(raw, "requestIds")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ids = append(ids, id)
		}

		results := run(svc, r, ids, body.Comment)

		payload := make([]map[string]any, 0, len(results))
		failed := 0
		for _, result := range results {
			entry := map[string]any{"requestId": result.RequestID, "ok": result.Err == nil}
			if result.Err != nil {
				failed++
				if typed := pkgerrors.As(result.Err); typed != nil {
					entry["error"] = map[string]string{"code": string(typed.Code()), "message": typed.Message()}
				} else {
					entry["error"] = map[string]string{"code": string(pkgerrors.CodeInternal), "message": "action failed"}
				}
			}
			payload = append(payload, entry)
		}

		responses.WriteSuccess(w, map[string]any{
			"results":   payload,
			"succeeded": len(results) - failed,
			"failed":    failed,
		})
	}
}

func BulkApprove(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return bulkHandler(svc, logg, func(svc approvals.Service, r *http.Request, ids []uuid.UUID, comment string) []approvals.BulkResult {
		return svc.ApproveMany(r.Context(), middleware.EmployeeIDFromContext(r.Context()), ids, comment)
	})
}

func BulkReject(svc approvals.Service, logg *logger.Logger) http.HandlerFunc {
	return bulkHandler(svc, logg, func(svc approvals.Service, r *http.Request, ids []uuid.UUID, comment string) []approvals.BulkResult {
		return svc.RejectMany(r.Context(), middleware.EmployeeIDFromContext(r.Context()), ids, comment)
	})
}
