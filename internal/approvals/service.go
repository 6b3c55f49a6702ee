package approvals

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/internal/notifications"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/outbox"
	"github.com/bijouxtrade/bijoux-backend/pkg/pagination"
)

type directoryReader interface {
	FindEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	ListEmployeesByRole(ctx context.Context, companyID uuid.UUID, role enums.EmployeeRole) ([]models.Employee, error)
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput)
}

// RequestDetail is one request with its full action log.
type RequestDetail struct {
	Request models.ApprovalRequest  `json:"request"`
	Actions []models.ApprovalAction `json:"actions"`
}

// Stats summarizes a company's approval traffic.
type Stats struct {
	Total              int64                           `json:"total"`
	ByStatus           map[enums.ApprovalStatus]int64  `json:"byStatus"`
	AvgResolutionHours float64                         `json:"avgResolutionHours"`
}

// ActionResult reports the request state after one action.
type ActionResult struct {
	Request *models.ApprovalRequest `json:"request"`
	Action  *models.ApprovalAction  `json:"action,omitempty"`
}

// BulkResult is the per-request outcome of a bulk approve or reject.
type BulkResult struct {
	RequestID uuid.UUID `json:"requestId"`
	Err       error     `json:"-"`
}

// Service runs the approval workflow engine: request creation, the level
// state machine, delegation, escalation, and workflow configuration.
type Service interface {
	CreateRequest(ctx context.Context, input CreateRequestInput) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter RequestFilter, params pagination.Params) ([]models.ApprovalRequest, string, error)
	Get(ctx context.Context, id uuid.UUID) (*RequestDetail, error)
	GetMyPending(ctx context.Context, employeeID uuid.UUID) ([]models.ApprovalRequest, error)
	GetMySubmitted(ctx context.Context, employeeID uuid.UUID, params pagination.Params) ([]models.ApprovalRequest, string, error)
	GetStats(ctx context.Context, companyID uuid.UUID) (*Stats, error)

	TakeAction(ctx context.Context, actorID, requestID uuid.UUID, input ActionInput) (*ActionResult, error)
	Approve(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error)
	Reject(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error)
	Delegate(ctx context.Context, actorID, requestID, delegateToID uuid.UUID, comment string) (*ActionResult, error)
	Escalate(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error)
	EscalateDue(ctx context.Context, requestID uuid.UUID) (*ActionResult, error)
	RequestInfo(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error)
	Respond(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error)
	AddComment(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error)
	ApproveMany(ctx context.Context, actorID uuid.UUID, requestIDs []uuid.UUID, comment string) []BulkResult
	RejectMany(ctx context.Context, actorID uuid.UUID, requestIDs []uuid.UUID, comment string) []BulkResult

	ResolveWorkflow(ctx context.Context, companyID uuid.UUID, entityType enums.WorkflowEntityType, amount decimal.Decimal, categoryID string) (*models.ApprovalWorkflow, error)
	GetWorkflow(ctx context.Context, id uuid.UUID) (*models.ApprovalWorkflow, error)
	ListWorkflows(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalWorkflow, error)
	CreateWorkflow(ctx context.Context, input WorkflowInput) (*models.ApprovalWorkflow, error)
	UpdateWorkflow(ctx context.Context, id uuid.UUID, input WorkflowInput) (*models.ApprovalWorkflow, error)
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error

	ListDelegations(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalDelegation, error)
	CreateDelegation(ctx context.Context, input DelegationInput) (*models.ApprovalDelegation, error)
	UpdateDelegation(ctx context.Context, id uuid.UUID, input DelegationInput) (*models.ApprovalDelegation, error)
	DeleteDelegation(ctx context.Context, id uuid.UUID) error

	ListEscalationCandidates(ctx context.Context, batch int) ([]models.ApprovalRequest, error)
}

type service struct {
	db        *gorm.DB
	repo      Repository
	directory directoryReader
	notifier  notifier
	outbox    *outbox.Service
	logg      *logger.Logger
}

// ServiceParams wire the approval engine's collaborators.
type ServiceParams struct {
	DB        *gorm.DB
	Repo      Repository
	Directory directoryReader
	Notifier  notifier
	Outbox    *outbox.Service
	Logger    *logger.Logger
}

// NewService builds the approval workflow engine.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("approvals repository required")
	}
	if params.Directory == nil {
		return nil, fmt.Errorf("directory reader required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:        params.DB,
		repo:      params.Repo,
		directory: params.Directory,
		notifier:  params.Notifier,
		outbox:    params.Outbox,
		logg:      params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, filter RequestFilter, params pagination.Params) ([]models.ApprovalRequest, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	requests, err := s.repo.ListRequests(ctx, filter, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list requests")
	}
	next := ""
	if len(requests) > limit {
		requests = requests[:limit]
		tail := requests[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: tail.CreatedAt, ID: tail.ID})
	}
	return requests, next, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*RequestDetail, error) {
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	actions, err := s.repo.ListActionsByRequest(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list actions")
	}
	return &RequestDetail{Request: *request, Actions: actions}, nil
}

func (s *service) GetMyPending(ctx context.Context, employeeID uuid.UUID) ([]models.ApprovalRequest, error) {
	if employeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id is required")
	}
	requests, err := s.repo.ListPendingForApprover(ctx, employeeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending approvals")
	}
	return requests, nil
}

func (s *service) GetMySubmitted(ctx context.Context, employeeID uuid.UUID, params pagination.Params) ([]models.ApprovalRequest, string, error) {
	if employeeID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "employee id is required")
	}
	return s.List(ctx, RequestFilter{RequesterID: employeeID}, params)
}

func (s *service) GetStats(ctx context.Context, companyID uuid.UUID) (*Stats, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id is required")
	}
	counts, err := s.repo.CountByStatus(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count requests")
	}
	stats := &Stats{ByStatus: make(map[enums.ApprovalStatus]int64, len(counts))}
	for _, row := range counts {
		stats.ByStatus[row.Status] = row.Count
		stats.Total += row.Count
	}
	seconds, err := s.repo.AvgResolutionSeconds(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "average resolution")
	}
	stats.AvgResolutionHours = seconds / 3600
	return stats, nil
}

func (s *service) ListEscalationCandidates(ctx context.Context, batch int) ([]models.ApprovalRequest, error) {
	return s.repo.ListEscalationCandidates(ctx, batch)
}

func (s *service) loadRequest(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	request, err := s.repo.FindRequestByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load request")
	}
	if request == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "approval request not found")
	}
	return request, nil
}

func (s *service) loadEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id is required")
	}
	employee, err := s.directory.FindEmployee(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load employee")
	}
	if employee == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "employee not found")
	}
	return employee, nil
}
