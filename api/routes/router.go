package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bijouxtrade/bijoux-backend/api/controllers"
	"github.com/bijouxtrade/bijoux-backend/api/middleware"
	"github.com/bijouxtrade/bijoux-backend/internal/alerts"
	"github.com/bijouxtrade/bijoux-backend/internal/approvals"
	"github.com/bijouxtrade/bijoux-backend/internal/authorizer"
	"github.com/bijouxtrade/bijoux-backend/internal/ledger"
	"github.com/bijouxtrade/bijoux-backend/internal/limits"
	"github.com/bijouxtrade/bijoux-backend/internal/notifications"
	"github.com/bijouxtrade/bijoux-backend/internal/reporting"
	"github.com/bijouxtrade/bijoux-backend/internal/rules"
	"github.com/bijouxtrade/bijoux-backend/pkg/config"
	"github.com/bijouxtrade/bijoux-backend/pkg/db"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/redis"
)

// Services collects everything the router wires into controllers.
type Services struct {
	Authorizer    authorizer.Service
	Ledger        ledger.Service
	Limits        limits.Service
	Rules         rules.Engine
	Alerts        alerts.Service
	Approvals     approvals.Service
	Reporting     reporting.Service
	Notifications notifications.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	services Services,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	adminOnly := middleware.RequireRole(logg, enums.EmployeeRoleAdmin)
	financeOrAdmin := middleware.RequireRole(logg, enums.EmployeeRoleFinance, enums.EmployeeRoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/spending", func(r chi.Router) {
			r.Post("/check", controllers.SpendingCheck(services.Authorizer, logg))
			r.Post("/commit", controllers.SpendingCommit(services.Authorizer, logg))
			r.Get("/budget", controllers.SpendingBudget(services.Authorizer, logg))
			r.Get("/transactions", controllers.SpendingTransactions(services.Ledger, logg))
			r.With(financeOrAdmin).Post("/adjustments", controllers.SpendingAdjustment(services.Ledger, logg))
			r.Get("/report", controllers.SpendingReport(services.Reporting, logg))
			r.Get("/summaries", controllers.BudgetSummaries(services.Reporting, logg))
			r.Get("/summaries/{limitId}", controllers.BudgetSummary(services.Reporting, logg))
			r.Get("/alerts", controllers.SpendingAlerts(services.Alerts, logg))
			r.With(financeOrAdmin).Post("/alerts/{alertId}/dismiss", controllers.SpendingDismissAlert(services.Alerts, logg))
		})

		r.Route("/approvals", func(r chi.Router) {
			r.Post("/", controllers.CreateApproval(services.Approvals, logg))
			r.Get("/", controllers.ListApprovals(services.Approvals, logg))
			r.Get("/stats", controllers.ApprovalStats(services.Approvals, logg))
			r.Get("/mine/pending", controllers.MyPendingApprovals(services.Approvals, logg))
			r.Get("/mine/submitted", controllers.MySubmittedApprovals(services.Approvals, logg))
			r.Post("/bulk/approve", controllers.BulkApprove(services.Approvals, logg))
			r.Post("/bulk/reject", controllers.BulkReject(services.Approvals, logg))

			r.Route("/{requestId}", func(r chi.Router) {
				r.Get("/", controllers.GetApproval(services.Approvals, logg))
				r.Post("/action", controllers.ApprovalAction(services.Approvals, logg))
				r.Post("/approve", controllers.ApproveRequest(services.Approvals, logg))
				r.Post("/reject", controllers.RejectRequest(services.Approvals, logg))
				r.Post("/delegate", controllers.DelegateRequest(services.Approvals, logg))
				r.Post("/escalate", controllers.EscalateRequest(services.Approvals, logg))
				r.Post("/request-info", controllers.RequestInfo(services.Approvals, logg))
				r.Post("/respond", controllers.RespondToRequest(services.Approvals, logg))
				r.Post("/comments", controllers.CommentOnRequest(services.Approvals, logg))
			})
		})

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", controllers.ListWorkflows(services.Approvals, logg))
			r.Get("/{workflowId}", controllers.GetWorkflow(services.Approvals, logg))
			r.With(adminOnly).Post("/", controllers.CreateWorkflow(services.Approvals, logg))
			r.With(adminOnly).Put("/{workflowId}", controllers.UpdateWorkflow(services.Approvals, logg))
			r.With(adminOnly).Delete("/{workflowId}", controllers.DeleteWorkflow(services.Approvals, logg))
		})

		r.Route("/delegations", func(r chi.Router) {
			r.Get("/", controllers.ListDelegations(services.Approvals, logg))
			r.Post("/", controllers.CreateDelegation(services.Approvals, logg))
			r.Put("/{delegationId}", controllers.UpdateDelegation(services.Approvals, logg))
			r.Delete("/{delegationId}", controllers.DeleteDelegation(services.Approvals, logg))
		})

		r.Route("/limits", func(r chi.Router) {
			r.Get("/", controllers.ListLimits(services.Limits, logg))
			r.Get("/{limitId}", controllers.GetLimit(services.Limits, logg))
			r.With(adminOnly).Post("/", controllers.CreateLimit(services.Limits, logg))
			r.With(adminOnly).Put("/{limitId}", controllers.UpdateLimit(services.Limits, logg))
			r.With(adminOnly).Delete("/{limitId}", controllers.DeleteLimit(services.Limits, logg))
			r.With(financeOrAdmin).Post("/{limitId}/reset", controllers.ResetLimit(services.Limits, logg))
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", controllers.ListRules(services.Rules, logg))
			r.Get("/{ruleId}", controllers.GetRule(services.Rules, logg))
			r.With(adminOnly).Post("/", controllers.CreateRule(services.Rules, logg))
			r.With(adminOnly).Put("/{ruleId}", controllers.UpdateRule(services.Rules, logg))
			r.With(adminOnly).Delete("/{ruleId}", controllers.DeleteRule(services.Rules, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(services.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(services.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(services.Notifications, logg))
		})
	})

	return r
}
