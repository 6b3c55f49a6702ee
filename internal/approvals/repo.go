package approvals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	"github.com/bijouxtrade/bijoux-backend/pkg/pagination"
)

// openStatuses are the non-terminal request states.
var openStatuses = []enums.ApprovalStatus{
	enums.ApprovalStatusPending,
	enums.ApprovalStatusInReview,
	enums.ApprovalStatusEscalated,
	enums.ApprovalStatusInfoRequested,
}

// RequestFilter narrows a request listing.
type RequestFilter struct {
	CompanyID   uuid.UUID
	Status      enums.ApprovalStatus
	RequesterID uuid.UUID
	EntityType  enums.WorkflowEntityType
}

// StatusCount is one row of the per-status request breakdown.
type StatusCount struct {
	Status enums.ApprovalStatus
	Count  int64
}

// Repository manages persistence for workflows, requests, actions, and
// delegations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindWorkflowByID(ctx context.Context, id uuid.UUID) (*models.ApprovalWorkflow, error)
	ListWorkflows(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalWorkflow, error)
	ListActiveWorkflows(ctx context.Context, companyID uuid.UUID, entityType enums.WorkflowEntityType) ([]models.ApprovalWorkflow, error)
	CreateWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) error
	SaveWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) error

	FindRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)
	FindOpenRequestForEntity(ctx context.Context, entityType enums.WorkflowEntityType, entityID uuid.UUID) (*models.ApprovalRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter, cursor *pagination.Cursor, limit int) ([]models.ApprovalRequest, error)
	ListPendingForApprover(ctx context.Context, employeeID uuid.UUID) ([]models.ApprovalRequest, error)
	ListSubmittedBy(ctx context.Context, employeeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.ApprovalRequest, error)
	ListEscalationCandidates(ctx context.Context, batch int) ([]models.ApprovalRequest, error)
	CreateRequest(ctx context.Context, request *models.ApprovalRequest) error
	CompareAndSwapRequest(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	CountByStatus(ctx context.Context, companyID uuid.UUID) ([]StatusCount, error)
	AvgResolutionSeconds(ctx context.Context, companyID uuid.UUID) (float64, error)

	CreateAction(ctx context.Context, action *models.ApprovalAction) error
	ListActionsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.ApprovalAction, error)

	FindDelegationByID(ctx context.Context, id uuid.UUID) (*models.ApprovalDelegation, error)
	ListDelegationsByCompany(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalDelegation, error)
	ListActiveDelegationsForDelegators(ctx context.Context, delegatorIDs []uuid.UUID, at time.Time) ([]models.ApprovalDelegation, error)
	CreateDelegation(ctx context.Context, delegation *models.ApprovalDelegation) error
	SaveDelegation(ctx context.Context, delegation *models.ApprovalDelegation) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an approvals repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindWorkflowByID(ctx context.Context, id uuid.UUID) (*models.ApprovalWorkflow, error) {
	var workflow models.ApprovalWorkflow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&workflow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (r *repository) ListWorkflows(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalWorkflow, error) {
	var workflows []models.ApprovalWorkflow
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND is_active", companyID).
		Order("created_at ASC").
		Find(&workflows).Error; err != nil {
		return nil, err
	}
	return workflows, nil
}

func (r *repository) ListActiveWorkflows(ctx context.Context, companyID uuid.UUID, entityType enums.WorkflowEntityType) ([]models.ApprovalWorkflow, error) {
	var workflows []models.ApprovalWorkflow
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND entity_type = ? AND is_active", companyID, entityType).
		Order("created_at ASC").
		Find(&workflows).Error; err != nil {
		return nil, err
	}
	return workflows, nil
}

func (r *repository) CreateWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) error {
	return r.db.WithContext(ctx).Create(workflow).Error
}

func (r *repository) SaveWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) error {
	return r.db.WithContext(ctx).Save(workflow).Error
}

func (r *repository) FindRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindOpenRequestForEntity(ctx context.Context, entityType enums.WorkflowEntityType, entityID uuid.UUID) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND status IN ?", entityType, entityID, openStatuses).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListRequests(ctx context.Context, filter RequestFilter, cursor *pagination.Cursor, limit int) ([]models.ApprovalRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.ApprovalRequest{})
	if filter.CompanyID != uuid.Nil {
		query = query.Where("company_id = ?", filter.CompanyID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.RequesterID != uuid.Nil {
		query = query.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var requests []models.ApprovalRequest
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) ListPendingForApprover(ctx context.Context, employeeID uuid.UUID) ([]models.ApprovalRequest, error) {
	var requests []models.ApprovalRequest
	if err := r.db.WithContext(ctx).
		Where("status IN ?", openStatuses).
		Where("levels -> current_level -> 'approverIds' @> ?", fmt.Sprintf("%q", employeeID.String())).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) ListSubmittedBy(ctx context.Context, employeeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.ApprovalRequest, error) {
	return r.ListRequests(ctx, RequestFilter{RequesterID: employeeID}, cursor, limit)
}

// ListEscalationCandidates returns open requests whose active level has an
// escalation deadline that already passed, time paused in info_requested
// excluded. Requests already escalated at their current level are skipped.
func (r *repository) ListEscalationCandidates(ctx context.Context, batch int) ([]models.ApprovalRequest, error) {
	var requests []models.ApprovalRequest
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.ApprovalStatus{enums.ApprovalStatusPending, enums.ApprovalStatusInReview}).
		Where("COALESCE((levels -> current_level ->> 'escalationHours')::int, 0) > 0").
		Where("COALESCE((levels -> current_level ->> 'escalated')::boolean, false) = false").
		Where(`(levels -> current_level ->> 'activatedAt')::timestamptz
			+ make_interval(hours => (levels -> current_level ->> 'escalationHours')::int)
			+ make_interval(secs => paused_secs) <= now()`).
		Order("created_at ASC").
		Limit(batch).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) CreateRequest(ctx context.Context, request *models.ApprovalRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// CompareAndSwapRequest applies updates only when the stored version still
// matches; the version column is bumped in the same statement.
func (r *repository) CompareAndSwapRequest(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	updates["version"] = gorm.Expr("version + 1")
	result := r.db.WithContext(ctx).
		Model(&models.ApprovalRequest{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) CountByStatus(ctx context.Context, companyID uuid.UUID) ([]StatusCount, error) {
	var counts []StatusCount
	if err := r.db.WithContext(ctx).
		Model(&models.ApprovalRequest{}).
		Select("status, COUNT(*) AS count").
		Where("company_id = ?", companyID).
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *repository) AvgResolutionSeconds(ctx context.Context, companyID uuid.UUID) (float64, error) {
	var avg *float64
	if err := r.db.WithContext(ctx).
		Model(&models.ApprovalRequest{}).
		Select("AVG(EXTRACT(EPOCH FROM completed_at - created_at))").
		Where("company_id = ? AND completed_at IS NOT NULL", companyID).
		Scan(&avg).Error; err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

func (r *repository) CreateAction(ctx context.Context, action *models.ApprovalAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

func (r *repository) ListActionsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.ApprovalAction, error) {
	var actions []models.ApprovalAction
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *repository) FindDelegationByID(ctx context.Context, id uuid.UUID) (*models.ApprovalDelegation, error) {
	var delegation models.ApprovalDelegation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&delegation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &delegation, nil
}

func (r *repository) ListDelegationsByCompany(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalDelegation, error) {
	var delegations []models.ApprovalDelegation
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND is_active", companyID).
		Order("created_at ASC").
		Find(&delegations).Error; err != nil {
		return nil, err
	}
	return delegations, nil
}

func (r *repository) ListActiveDelegationsForDelegators(ctx context.Context, delegatorIDs []uuid.UUID, at time.Time) ([]models.ApprovalDelegation, error) {
	if len(delegatorIDs) == 0 {
		return nil, nil
	}
	var delegations []models.ApprovalDelegation
	if err := r.db.WithContext(ctx).
		Where("delegator_id IN ? AND is_active", delegatorIDs).
		Where("start_date <= ? AND end_date >= ?", at, at).
		Find(&delegations).Error; err != nil {
		return nil, err
	}
	return delegations, nil
}

func (r *repository) CreateDelegation(ctx context.Context, delegation *models.ApprovalDelegation) error {
	return r.db.WithContext(ctx).Create(delegation).Error
}

func (r *repository) SaveDelegation(ctx context.Context, delegation *models.ApprovalDelegation) error {
	return r.db.WithContext(ctx).Save(delegation).Error
}
