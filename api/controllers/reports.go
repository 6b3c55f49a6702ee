package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/api/middleware"
	"github.com/bijouxtrade/bijoux-backend/api/responses"
	"github.com/bijouxtrade/bijoux-backend/api/validators"
	"github.com/bijouxtrade/bijoux-backend/internal/reporting"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
)

// SpendingReport aggregates ledger activity over a window.
func SpendingReport(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reporting service unavailable"))
			return
		}

		input := reporting.ReportInput{CompanyID: middleware.CompanyIDFromContext(r.Context())}

		if raw := strings.TrimSpace(r.URL.Query().Get("entityType")); raw != "" {
			entityType, err := enums.ParseSpendingEntityType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entity type"))
				return
			}
			input.EntityType = entityType
		}
		entityID, err := validators.ParseQueryUUID(r, "entityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.EntityID = entityID

		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if from != nil {
			input.From = *from
		}
		if to != nil {
			input.To = *to
		}

		report, err := svc.GetReport(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// BudgetSummaries returns the dashboard view of every limit covering an employee.
func BudgetSummaries(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reporting service unavailable"))
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

		summaries, err := svc.GetBudgetSummaries(r.Context(), employeeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summaries)
	}
}

// BudgetSummary returns one limit's utilization, recomputed from the ledger
// when exact=true.
func BudgetSummary(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reporting service unavailable"))
			return
		}

		limitID, err := validators.ParsePathUUID(chi.URLParam(r, "limitId"), "limitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		exact := false
		if raw := strings.TrimSpace(r.URL.Query().Get("exact")); raw != "" {
			value, parseErr := strconv.ParseBool(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "exact must be a boolean"))
				return
			}
			exact = value
		}

		summary, err := svc.GetBudgetSummary(r.Context(), limitID, exact)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
