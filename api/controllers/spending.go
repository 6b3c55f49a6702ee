package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijouxtrade/bijoux-backend/api/middleware"
	"github.com/bijouxtrade/bijoux-backend/api/responses"
	"github.com/bijouxtrade/bijoux-backend/api/validators"
	"github.com/bijouxtrade/bijoux-backend/internal/alerts"
	"github.com/bijouxtrade/bijoux-backend/internal/authorizer"
	"github.com/bijouxtrade/bijoux-backend/internal/ledger"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/pagination"
)

type spendingCheckRequest struct {
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	CategoryID string          `json:"categoryId"`
}

// SpendingCheck runs a dry-run authorization for the acting employee.
func SpendingCheck(svc authorizer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "authorizer service unavailable"))
			return
		}

		var body spendingCheckRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckPurchase(r.Context(), middleware.EmployeeIDFromContext(r.Context()), body.Amount, body.CategoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type spendingCommitRequest struct {
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Type       string          `json:"type" validate:"required"`
	CategoryID string          `json:"categoryId"`
	Reference  string          `json:"reference"`
	Approved   bool            `json:"approved"`
}

// SpendingCommit records an authorized purchase against the ledger. The
// approved flag marks purchases that already cleared an approval workflow
// and is reserved for finance and admin actors.
func SpendingCommit(svc authorizer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "authorizer service unavailable"))
			return
		}

		var body spendingCommitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txType, err := enums.ParseTransactionType(body.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type"))
			return
		}

		if body.Approved {
			role := middleware.RoleFromContext(r.Context())
			if role != enums.EmployeeRoleFinance && role != enums.EmployeeRoleAdmin {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "approved commits require a finance or admin actor"))
				return
			}
		}

		transaction, err := svc.Commit(r.Context(), authorizer.CommitPurchaseInput{
			EmployeeID: middleware.EmployeeIDFromContext(r.Context()),
			Amount:     body.Amount,
			Type:       txType,
			CategoryID: body.CategoryID,
			Reference:  body.Reference,
			Approved:   body.Approved,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transaction)
	}
}

// SpendingBudget reports the live headroom on every limit covering an employee.
func SpendingBudget(svc authorizer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "authorizer service unavailable"))
			return
		}

		employeeID := middleware.EmployeeIDFromContext(r.Context())
		target, err := validators.ParseQueryUUID(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if target != uuid.Nil && target != employeeID {
			if middleware.RoleFromContext(r.Context()) == enums.EmployeeRoleEmployee {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot inspect another employee's budget"))
				return
			}
			employeeID = target
		}

		budgets, err := svc.GetRemainingBudget(r.Context(), employeeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, budgets)
	}
}

// SpendingTransactions lists ledger entries for the actor's company.
func SpendingTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		filter := ledger.ListFilter{CompanyID: middleware.CompanyIDFromContext(r.Context())}

		if raw := strings.TrimSpace(r.URL.Query().Get("entityType")); raw != "" {
			entityType, err := enums.ParseSpendingEntityType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity type"))
				return
			}
			filter.EntityType = entityType
		}
		entityID, err := validators.ParseQueryUUID(r, "entityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.EntityID = entityID
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			txType, err := enums.ParseTransactionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type"))
				return
			}
			filter.Type = txType
		}
		if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transactions, next, err := svc.ListTransactions(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"transactions": transactions, "nextCursor": next})
	}
}

type spendingAdjustmentRequest struct {
	EntityType string          `json:"entityType" validate:"required"`
	EntityID   string          `json:"entityId" validate:"required,uuid"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Currency   string          `json:"currency" validate:"required"`
	CategoryID string          `json:"categoryId"`
	Reference  string          `json:"reference" validate:"required"`
}

// SpendingAdjustment records a manual correction against the ledger.
func SpendingAdjustment(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var body spendingAdjustmentRequest
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
		currency, err := enums.ParseCurrency(body.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		transaction, err := svc.RecordAdjustment(r.Context(), ledger.RecordTransactionInput{
			CompanyID:       middleware.CompanyIDFromContext(r.Context()),
			EntityType:      entityType,
			EntityID:        entityID,
			Type:            enums.TransactionTypeAdjustment,
			Amount:          body.Amount,
			Currency:        currency,
			CategoryID:      body.CategoryID,
			Reference:       body.Reference,
			ActorEmployeeID: middleware.EmployeeIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transaction)
	}
}

// SpendingAlerts lists undismissed alerts for the actor's company.
func SpendingAlerts(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "alerts service unavailable"))
			return
		}

		items, err := svc.GetAlerts(r.Context(), middleware.CompanyIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// SpendingDismissAlert marks one alert as handled.
func SpendingDismissAlert(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "alerts service unavailable"))
			return
		}

		alertID, err := validators.ParsePathUUID(chi.URLParam(r, "alertId"), "alertId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DismissAlert(r.Context(), middleware.CompanyIDFromContext(r.Context()), alertID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "dismissed"})
	}
}

func paginationParams(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer")
		}
		params.Limit = value
	}
	return params, nil
}
