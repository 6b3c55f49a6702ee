package approvals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/internal/notifications"
	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/logger"
	"github.com/bijouxtrade/bijoux-backend/pkg/pagination"
)

type fakeRepo struct {
	request      *models.ApprovalRequest
	openRequest  *models.ApprovalRequest
	workflows    []models.ApprovalWorkflow
	delegations  []models.ApprovalDelegation
	actions      []models.ApprovalAction
	statusCounts []StatusCount
	avgSeconds   float64

	swapAttempts int
	failSwaps    int
	createdReqs  []*models.ApprovalRequest
	savedWfs     []*models.ApprovalWorkflow
	createdWfs   []*models.ApprovalWorkflow
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) FindWorkflowByID(ctx context.Context, id uuid.UUID) (*models.ApprovalWorkflow, error) {
	for i := range f.workflows {
		if f.workflows[i].ID == id {
			copied := f.workflows[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListWorkflows(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalWorkflow, error) {
	return f.workflows, nil
}

func (f *fakeRepo) ListActiveWorkflows(ctx context.Context, companyID uuid.UUID, entityType enums.WorkflowEntityType) ([]models.ApprovalWorkflow, error) {
	var active []models.ApprovalWorkflow
	for _, workflow := range f.workflows {
		if workflow.IsActive && workflow.EntityType == entityType {
			active = append(active, workflow)
		}
	}
	return active, nil
}

func (f *fakeRepo) CreateWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) error {
	if workflow.ID == uuid.Nil {
		workflow.ID = uuid.New()
	}
	f.createdWfs = append(f.createdWfs, workflow)
	f.workflows = append(f.workflows, *workflow)
	return nil
}

func (f *fakeRepo) SaveWorkflow(ctx context.Context, workflow *models.ApprovalWorkflow) error {
	f.savedWfs = append(f.savedWfs, workflow)
	for i := range f.workflows {
		if f.workflows[i].ID == workflow.ID {
			f.workflows[i] = *workflow
		}
	}
	return nil
}

func (f *fakeRepo) FindRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	if f.request == nil || f.request.ID != id {
		return nil, nil
	}
	copied := *f.request
	copied.Levels = append(models.RequestLevels(nil), f.request.Levels...)
	return &copied, nil
}

func (f *fakeRepo) FindOpenRequestForEntity(ctx context.Context, entityType enums.WorkflowEntityType, entityID uuid.UUID) (*models.ApprovalRequest, error) {
	return f.openRequest, nil
}

func (f *fakeRepo) ListRequests(ctx context.Context, filter RequestFilter, cursor *pagination.Cursor, limit int) ([]models.ApprovalRequest, error) {
	if f.request == nil {
		return nil, nil
	}
	return []models.ApprovalRequest{*f.request}, nil
}

func (f *fakeRepo) ListPendingForApprover(ctx context.Context, employeeID uuid.UUID) ([]models.ApprovalRequest, error) {
	return nil, nil
}

func (f *fakeRepo) ListSubmittedBy(ctx context.Context, employeeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.ApprovalRequest, error) {
	return nil, nil
}

func (f *fakeRepo) ListEscalationCandidates(ctx context.Context, batch int) ([]models.ApprovalRequest, error) {
	return nil, nil
}

func (f *fakeRepo) CreateRequest(ctx context.Context, request *models.ApprovalRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	request.CreatedAt = time.Now().UTC()
	f.createdReqs = append(f.createdReqs, request)
	f.request = request
	return nil
}

func (f *fakeRepo) CompareAndSwapRequest(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	f.swapAttempts++
	if f.failSwaps > 0 {
		f.failSwaps--
		return false, nil
	}
	if f.request == nil || f.request.ID != id || f.request.Version != version {
		return false, nil
	}
	if v, ok := updates["status"]; ok {
		f.request.Status = v.(enums.ApprovalStatus)
	}
	if v, ok := updates["levels"]; ok {
		f.request.Levels = v.(models.RequestLevels)
	}
	if v, ok := updates["current_level"]; ok {
		f.request.CurrentLevel = v.(int)
	}
	if v, ok := updates["completed_at"]; ok {
		f.request.CompletedAt = v.(*time.Time)
	}
	if v, ok := updates["prior_status"]; ok {
		if v == nil {
			f.request.PriorStatus = nil
		} else {
			f.request.PriorStatus = v.(*enums.ApprovalStatus)
		}
	}
	if v, ok := updates["paused_at"]; ok {
		if v == nil {
			f.request.PausedAt = nil
		} else {
			f.request.PausedAt = v.(*time.Time)
		}
	}
	if v, ok := updates["paused_secs"]; ok {
		f.request.PausedSecs = v.(int64)
	}
	f.request.Version++
	return true, nil
}

func (f *fakeRepo) CountByStatus(ctx context.Context, companyID uuid.UUID) ([]StatusCount, error) {
	return f.statusCounts, nil
}

func (f *fakeRepo) AvgResolutionSeconds(ctx context.Context, companyID uuid.UUID) (float64, error) {
	return f.avgSeconds, nil
}

func (f *fakeRepo) CreateAction(ctx context.Context, action *models.ApprovalAction) error {
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	f.actions = append(f.actions, *action)
	return nil
}

func (f *fakeRepo) ListActionsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.ApprovalAction, error) {
	return f.actions, nil
}

func (f *fakeRepo) FindDelegationByID(ctx context.Context, id uuid.UUID) (*models.ApprovalDelegation, error) {
	for i := range f.delegations {
		if f.delegations[i].ID == id {
			copied := f.delegations[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListDelegationsByCompany(ctx context.Context, companyID uuid.UUID) ([]models.ApprovalDelegation, error) {
	return f.delegations, nil
}

func (f *fakeRepo) ListActiveDelegationsForDelegators(ctx context.Context, delegatorIDs []uuid.UUID, at time.Time) ([]models.ApprovalDelegation, error) {
	var matched []models.ApprovalDelegation
	for _, delegation := range f.delegations {
		for _, id := range delegatorIDs {
			if delegation.DelegatorID == id && delegation.CoversAt(at) {
				matched = append(matched, delegation)
			}
		}
	}
	return matched, nil
}

func (f *fakeRepo) CreateDelegation(ctx context.Context, delegation *models.ApprovalDelegation) error {
	if delegation.ID == uuid.Nil {
		delegation.ID = uuid.New()
	}
	f.delegations = append(f.delegations, *delegation)
	return nil
}

func (f *fakeRepo) SaveDelegation(ctx context.Context, delegation *models.ApprovalDelegation) error {
	for i := range f.delegations {
		if f.delegations[i].ID == delegation.ID {
			f.delegations[i] = *delegation
		}
	}
	return nil
}

type fakeEmployees struct {
	employees map[uuid.UUID]*models.Employee
	byRole    map[enums.EmployeeRole][]models.Employee
}

func (f *fakeEmployees) FindEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	return f.employees[id], nil
}

func (f *fakeEmployees) ListEmployeesByRole(ctx context.Context, companyID uuid.UUID, role enums.EmployeeRole) ([]models.Employee, error) {
	return f.byRole[role], nil
}

type recordingNotifier struct {
	sent []notifications.NotifyInput
}

func (r *recordingNotifier) Notify(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) {
	r.sent = append(r.sent, input)
}

type fixture struct {
	service   Service
	repo      *fakeRepo
	directory *fakeEmployees
	notifier  *recordingNotifier
	companyID uuid.UUID
}

func newFixture(t *testing.T, repo *fakeRepo, directory *fakeEmployees) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	notified := &recordingNotifier{}
	svc, err := NewService(ServiceParams{
		DB:        db,
		Repo:      repo,
		Directory: directory,
		Notifier:  notified,
		Logger:    logger.New(logger.Options{ServiceName: "approvals-test"}),
	})
	require.NoError(t, err)
	return &fixture{service: svc, repo: repo, directory: directory, notifier: notified}
}

func employee(companyID uuid.UUID, role enums.EmployeeRole, name string) *models.Employee {
	return &models.Employee{
		ID:        uuid.New(),
		CompanyID: companyID,
		Role:      role,
		FullName:  name,
		IsActive:  true,
	}
}

func openRequest(companyID uuid.UUID, requesterID uuid.UUID, levels models.RequestLevels) *models.ApprovalRequest {
	now := time.Now().UTC()
	if len(levels) > 0 && levels[0].ActivatedAt == nil {
		levels[0].ActivatedAt = &now
	}
	return &models.ApprovalRequest{
		ID:          uuid.New(),
		CompanyID:   companyID,
		EntityType:  enums.WorkflowEntityTypeOrder,
		EntityID:    uuid.New(),
		RequesterID: requesterID,
		Amount:      decimal.NewFromInt(2500),
		Currency:    enums.CurrencyEUR,
		Status:      enums.ApprovalStatusPending,
		Levels:      levels,
		CreatedAt:   now,
	}
}

func TestCreateRequestFreezesFirstLevel(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	managerA := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")
	managerB := employee(companyID, enums.EmployeeRoleManager, "Tariq Haddad")
	standIn := employee(companyID, enums.EmployeeRoleManager, "Lea Fontaine")

	threshold := decimal.NewFromInt(1000)
	financeRole := enums.EmployeeRoleFinance
	managerRole := enums.EmployeeRoleManager
	workflow := models.ApprovalWorkflow{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Name:       "High value orders",
		EntityType: enums.WorkflowEntityTypeOrder,
		Triggers:   models.WorkflowTriggers{{Type: enums.RuleTriggerAmountExceeds, Threshold: &threshold}},
		Levels: models.WorkflowLevels{
			{Name: "Manager", ApproverRole: &managerRole, RequiredApprovals: 1, EscalationHours: 24},
			{Name: "Finance", ApproverRole: &financeRole, RequiredApprovals: 1},
		},
		Version:  1,
		IsActive: true,
	}

	now := time.Now().UTC()
	repo := &fakeRepo{
		workflows: []models.ApprovalWorkflow{workflow},
		delegations: []models.ApprovalDelegation{{
			ID:          uuid.New(),
			CompanyID:   companyID,
			DelegatorID: managerB.ID,
			DelegateeID: standIn.ID,
			StartDate:   now.Add(-time.Hour),
			EndDate:     now.Add(time.Hour),
			IsActive:    true,
		}},
	}
	directory := &fakeEmployees{
		employees: map[uuid.UUID]*models.Employee{requester.ID: requester},
		byRole: map[enums.EmployeeRole][]models.Employee{
			enums.EmployeeRoleManager: {*managerA, *managerB},
		},
	}
	f := newFixture(t, repo, directory)

	request, err := f.service.CreateRequest(context.Background(), CreateRequestInput{
		CompanyID:   companyID,
		RequesterID: requester.ID,
		EntityType:  enums.WorkflowEntityTypeOrder,
		EntityID:    uuid.New(),
		Amount:      decimal.NewFromInt(2500),
		Currency:    enums.CurrencyEUR,
	})
	require.NoError(t, err)
	require.NotNil(t, request.WorkflowID)
	assert.Equal(t, workflow.ID, *request.WorkflowID)
	assert.Equal(t, enums.ApprovalStatusPending, request.Status)
	require.Len(t, request.Levels, 2)

	first := request.Levels[0]
	require.NotNil(t, first.ActivatedAt)
	assert.ElementsMatch(t, []uuid.UUID{managerA.ID, standIn.ID}, first.ApproverIDs)

	// the finance level stays unresolved until it activates
	assert.Nil(t, request.Levels[1].ActivatedAt)
	assert.Empty(t, request.Levels[1].ApproverIDs)

	assert.Len(t, f.notifier.sent, 2)
}

func TestCreateRequestRejectsDuplicateOpenRequest(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	repo := &fakeRepo{openRequest: openRequest(companyID, requester.ID, models.RequestLevels{{RequiredApprovals: 1}})}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{requester.ID: requester}}
	f := newFixture(t, repo, directory)

	_, err := f.service.CreateRequest(context.Background(), CreateRequestInput{
		CompanyID:   companyID,
		RequesterID: requester.ID,
		EntityType:  enums.WorkflowEntityTypeOrder,
		EntityID:    uuid.New(),
		Amount:      decimal.NewFromInt(100),
		Currency:    enums.CurrencyEUR,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestCreateRequestFallsBackToCompanyAdmins(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	admin := employee(companyID, enums.EmployeeRoleAdmin, "Sofia Lindqvist")

	repo := &fakeRepo{}
	directory := &fakeEmployees{
		employees: map[uuid.UUID]*models.Employee{requester.ID: requester},
		byRole:    map[enums.EmployeeRole][]models.Employee{enums.EmployeeRoleAdmin: {*admin}},
	}
	f := newFixture(t, repo, directory)

	request, err := f.service.CreateRequest(context.Background(), CreateRequestInput{
		CompanyID:   companyID,
		RequesterID: requester.ID,
		EntityType:  enums.WorkflowEntityTypeOrder,
		EntityID:    uuid.New(),
		Amount:      decimal.NewFromInt(100),
		Currency:    enums.CurrencyEUR,
	})
	require.NoError(t, err)
	assert.Nil(t, request.WorkflowID)
	require.Len(t, request.Levels, 1)
	assert.Equal(t, []uuid.UUID{admin.ID}, request.Levels[0].ApproverIDs)
}

func TestCreateRequestFailsWithoutAnyApprovers(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	repo := &fakeRepo{}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{requester.ID: requester}}
	f := newFixture(t, repo, directory)

	_, err := f.service.CreateRequest(context.Background(), CreateRequestInput{
		CompanyID:   companyID,
		RequesterID: requester.ID,
		EntityType:  enums.WorkflowEntityTypeOrder,
		EntityID:    uuid.New(),
		Amount:      decimal.NewFromInt(100),
		Currency:    enums.CurrencyEUR,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidConfig))
}

func TestApproveAdvancesThenRejectTerminates(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	manager := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")
	finance := employee(companyID, enums.EmployeeRoleFinance, "Tariq Haddad")

	financeRole := enums.EmployeeRoleFinance
	request := openRequest(companyID, requester.ID, models.RequestLevels{
		{Name: "Manager", ApproverIDs: []uuid.UUID{manager.ID}, RequiredApprovals: 1},
		{Name: "Finance", ApproverRole: &financeRole, RequiredApprovals: 1},
	})
	repo := &fakeRepo{request: request}
	directory := &fakeEmployees{
		employees: map[uuid.UUID]*models.Employee{
			requester.ID: requester,
			manager.ID:   manager,
			finance.ID:   finance,
		},
		byRole: map[enums.EmployeeRole][]models.Employee{enums.EmployeeRoleFinance: {*finance}},
	}
	f := newFixture(t, repo, directory)

	result, err := f.service.Approve(context.Background(), manager.ID, request.ID, "within quarterly plan")
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusPending, result.Request.Status)
	assert.Equal(t, 1, result.Request.CurrentLevel)
	require.NotNil(t, result.Request.Levels[1].ActivatedAt)
	assert.Equal(t, []uuid.UUID{finance.ID}, result.Request.Levels[1].ApproverIDs)

	result, err = f.service.Reject(context.Background(), finance.ID, request.ID, "budget freeze this month")
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusRejected, result.Request.Status)
	require.NotNil(t, result.Request.CompletedAt)

	// the manager's earlier approval survives in the audit log
	require.Len(t, repo.actions, 2)
	assert.Equal(t, enums.ApprovalActionApprove, repo.actions[0].Action)
	assert.Equal(t, manager.ID, repo.actions[0].ActorID)
	assert.Equal(t, enums.ApprovalActionReject, repo.actions[1].Action)
}

func TestApproveQuorumHoldsLevelOpen(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	first := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")
	second := employee(companyID, enums.EmployeeRoleManager, "Tariq Haddad")

	request := openRequest(companyID, requester.ID, models.RequestLevels{
		{Name: "Managers", ApproverIDs: []uuid.UUID{first.ID, second.ID}, RequiredApprovals: 2},
	})
	repo := &fakeRepo{request: request}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{
		first.ID:  first,
		second.ID: second,
	}}
	f := newFixture(t, repo, directory)

	result, err := f.service.Approve(context.Background(), first.ID, request.ID, "")
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusInReview, result.Request.Status)
	assert.Equal(t, 1, result.Request.Levels[0].ApprovalsReceived)

	_, err = f.service.Approve(context.Background(), first.ID, request.ID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	result, err = f.service.Approve(context.Background(), second.ID, request.ID, "")
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusApproved, result.Request.Status)
	require.NotNil(t, result.Request.CompletedAt)
}

func TestApproveRejectedRequestIsTerminal(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	manager := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")

	request := openRequest(companyID, requester.ID, models.RequestLevels{
		{ApproverIDs: []uuid.UUID{manager.ID}, RequiredApprovals: 1},
	})
	request.Status = enums.ApprovalStatusRejected
	repo := &fakeRepo{request: request}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{manager.ID: manager}}
	f := newFixture(t, repo, directory)

	_, err := f.service.Approve(context.Background(), manager.ID, request.ID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, repo.actions)
}

func TestEscalationPreservesReceivedApprovals(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	first := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")
	second := employee(companyID, enums.EmployeeRoleManager, "Tariq Haddad")
	director := employee(companyID, enums.EmployeeRoleFinance, "Sofia Lindqvist")

	activated := time.Now().UTC().Add(-6 * time.Hour)
	request := openRequest(companyID, requester.ID, models.RequestLevels{
		{
			Name:              "Managers",
			ApproverIDs:       []uuid.UUID{first.ID, second.ID},
			RequiredApprovals: 2,
			EscalationHours:   4,
			ApprovalsReceived: 1,
			ActedApproverIDs:  []uuid.UUID{first.ID},
			ActivatedAt:       &activated,
		},
		{Name: "Finance", ApproverIDs: []uuid.UUID{director.ID}, RequiredApprovals: 1},
	})
	request.Status = enums.ApprovalStatusInReview
	repo := &fakeRepo{request: request}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{
		first.ID:    first,
		second.ID:   second,
		director.ID: director,
	}}
	f := newFixture(t, repo, directory)

	result, err := f.service.EscalateDue(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusEscalated, result.Request.Status)

	level := result.Request.Levels[0]
	assert.True(t, level.Escalated)
	assert.Equal(t, 1, level.ApprovalsReceived)
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID, director.ID}, level.ApproverIDs)

	// re-running the deadline sweep is a no-op
	before := repo.swapAttempts
	result, err = f.service.EscalateDue(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, before, repo.swapAttempts)
	assert.Nil(t, result.Action)

	// the escalated-in approver can close the original quorum
	approved, err := f.service.Approve(context.Background(), director.ID, request.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, approved.Request.CurrentLevel)
	assert.Equal(t, enums.ApprovalStatusPending, approved.Request.Status)
}

func TestDelegateHandsOverLevelSeat(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	manager := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")
	standIn := employee(companyID, enums.EmployeeRoleManager, "Lea Fontaine")

	managerRole := enums.EmployeeRoleManager
	request := openRequest(companyID, requester.ID, models.RequestLevels{
		{ApproverRole: &managerRole, ApproverIDs: []uuid.UUID{manager.ID}, RequiredApprovals: 1},
	})
	repo := &fakeRepo{request: request}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{
		manager.ID: manager,
		standIn.ID: standIn,
	}}
	f := newFixture(t, repo, directory)

	result, err := f.service.Delegate(context.Background(), manager.ID, request.ID, standIn.ID, "out for the trade fair")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{standIn.ID}, result.Request.Levels[0].ApproverIDs)
	require.NotNil(t, result.Action)
	assert.Equal(t, standIn.ID, result.Action.ActorID)
	require.NotNil(t, result.Action.DelegatedFromID)
	assert.Equal(t, manager.ID, *result.Action.DelegatedFromID)

	_, err = f.service.Approve(context.Background(), manager.ID, request.ID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	approved, err := f.service.Approve(context.Background(), standIn.ID, request.ID, "")
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusApproved, approved.Request.Status)
}

func TestDelegateRejectsIneligibleTarget(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	manager := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")
	intern := employee(companyID, enums.EmployeeRoleEmployee, "Sven de Wit")

	managerRole := enums.EmployeeRoleManager
	request := openRequest(companyID, requester.ID, models.RequestLevels{
		{ApproverRole: &managerRole, ApproverIDs: []uuid.UUID{manager.ID}, RequiredApprovals: 1},
	})
	repo := &fakeRepo{request: request}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{
		manager.ID: manager,
		intern.ID:  intern,
	}}
	f := newFixture(t, repo, directory)

	// neither in the approver set nor holding the level's role
	_, err := f.service.Delegate(context.Background(), manager.ID, request.ID, intern.ID, "covering for me")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, []uuid.UUID{manager.ID}, request.Levels[0].ApproverIDs)
}

func TestInfoRequestPausesEscalationClock(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	manager := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")

	request := openRequest(companyID, requester.ID, models.RequestLevels{
		{ApproverIDs: []uuid.UUID{manager.ID}, RequiredApprovals: 1, EscalationHours: 24},
	})
	repo := &fakeRepo{request: request}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{
		requester.ID: requester,
		manager.ID:   manager,
	}}
	f := newFixture(t, repo, directory)

	result, err := f.service.RequestInfo(context.Background(), manager.ID, request.ID, "which client is this for?")
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusInfoRequested, result.Request.Status)
	require.NotNil(t, result.Request.PriorStatus)
	assert.Equal(t, enums.ApprovalStatusPending, *result.Request.PriorStatus)
	require.NotNil(t, result.Request.PausedAt)

	// approving a paused request is blocked
	_, err = f.service.Approve(context.Background(), manager.ID, request.ID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	// only the requester may answer
	_, err = f.service.Respond(context.Background(), manager.ID, request.ID, "it is for Maison Aurel")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	pausedAt := time.Now().UTC().Add(-30 * time.Second)
	repo.request.PausedAt = &pausedAt

	result, err = f.service.Respond(context.Background(), requester.ID, request.ID, "it is for Maison Aurel")
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusPending, result.Request.Status)
	assert.Nil(t, result.Request.PausedAt)
	assert.Nil(t, result.Request.PriorStatus)
	assert.GreaterOrEqual(t, result.Request.PausedSecs, int64(29))
}

func TestApproveRetriesVersionConflictOnce(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	manager := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")

	request := openRequest(companyID, requester.ID, models.RequestLevels{
		{ApproverIDs: []uuid.UUID{manager.ID}, RequiredApprovals: 1},
	})
	repo := &fakeRepo{request: request, failSwaps: 1}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{manager.ID: manager}}
	f := newFixture(t, repo, directory)

	result, err := f.service.Approve(context.Background(), manager.ID, request.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.swapAttempts)
	assert.Equal(t, enums.ApprovalStatusApproved, result.Request.Status)
}

func TestApproveSurfacesConflictAfterRetry(t *testing.T) {
	companyID := uuid.New()
	requester := employee(companyID, enums.EmployeeRoleEmployee, "Nora Visser")
	manager := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")

	request := openRequest(companyID, requester.ID, models.RequestLevels{
		{ApproverIDs: []uuid.UUID{manager.ID}, RequiredApprovals: 1},
	})
	repo := &fakeRepo{request: request, failSwaps: 2}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{manager.ID: manager}}
	f := newFixture(t, repo, directory)

	_, err := f.service.Approve(context.Background(), manager.ID, request.ID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 2, repo.swapAttempts)
}

func TestGetStats(t *testing.T) {
	companyID := uuid.New()
	repo := &fakeRepo{
		statusCounts: []StatusCount{
			{Status: enums.ApprovalStatusPending, Count: 3},
			{Status: enums.ApprovalStatusApproved, Count: 5},
			{Status: enums.ApprovalStatusRejected, Count: 2},
		},
		avgSeconds: 7200,
	}
	f := newFixture(t, repo, &fakeEmployees{})

	stats, err := f.service.GetStats(context.Background(), companyID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(5), stats.ByStatus[enums.ApprovalStatusApproved])
	assert.InDelta(t, 2.0, stats.AvgResolutionHours, 0.001)
}

func TestUpdateWorkflowVersionsByReplacement(t *testing.T) {
	companyID := uuid.New()
	managerRole := enums.EmployeeRoleManager
	threshold := decimal.NewFromInt(500)
	workflow := models.ApprovalWorkflow{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Name:       "Orders",
		EntityType: enums.WorkflowEntityTypeOrder,
		Triggers:   models.WorkflowTriggers{{Type: enums.RuleTriggerAmountExceeds, Threshold: &threshold}},
		Levels:     models.WorkflowLevels{{Name: "Manager", ApproverRole: &managerRole, RequiredApprovals: 1}},
		Version:    1,
		IsActive:   true,
	}
	repo := &fakeRepo{workflows: []models.ApprovalWorkflow{workflow}}
	f := newFixture(t, repo, &fakeEmployees{})

	updated, err := f.service.UpdateWorkflow(context.Background(), workflow.ID, WorkflowInput{
		CompanyID:  companyID,
		Name:       "Orders v2",
		EntityType: enums.WorkflowEntityTypeOrder,
		Triggers:   []models.WorkflowTrigger{{Type: enums.RuleTriggerAmountExceeds, Threshold: &threshold}},
		Levels:     []models.WorkflowLevel{{Name: "Manager", ApproverRole: &managerRole, RequiredApprovals: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.NotEqual(t, workflow.ID, updated.ID)

	old, err := repo.FindWorkflowByID(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
}

func TestResolveWorkflowMatchesTriggers(t *testing.T) {
	companyID := uuid.New()
	managerRole := enums.EmployeeRoleManager
	threshold := decimal.NewFromInt(1000)
	byAmount := models.ApprovalWorkflow{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Name:       "High value",
		EntityType: enums.WorkflowEntityTypeOrder,
		Triggers:   models.WorkflowTriggers{{Type: enums.RuleTriggerAmountExceeds, Threshold: &threshold}},
		Levels:     models.WorkflowLevels{{ApproverRole: &managerRole, RequiredApprovals: 1}},
		IsActive:   true,
	}
	byCategory := models.ApprovalWorkflow{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Name:       "Loose stones",
		EntityType: enums.WorkflowEntityTypeOrder,
		Triggers:   models.WorkflowTriggers{{Type: enums.RuleTriggerCategoryRestricted, Categories: []string{"cat_gems"}}},
		Levels:     models.WorkflowLevels{{ApproverRole: &managerRole, RequiredApprovals: 1}},
		IsActive:   true,
	}
	repo := &fakeRepo{workflows: []models.ApprovalWorkflow{byAmount, byCategory}}
	f := newFixture(t, repo, &fakeEmployees{})

	resolved, err := f.service.ResolveWorkflow(context.Background(), companyID, enums.WorkflowEntityTypeOrder, decimal.NewFromInt(400), "cat_gems")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, byCategory.ID, resolved.ID)

	resolved, err = f.service.ResolveWorkflow(context.Background(), companyID, enums.WorkflowEntityTypeOrder, decimal.NewFromInt(400), "cat_watches")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestCreateDelegationValidation(t *testing.T) {
	companyID := uuid.New()
	delegator := employee(companyID, enums.EmployeeRoleManager, "Imke Bakker")
	delegatee := employee(companyID, enums.EmployeeRoleManager, "Lea Fontaine")
	repo := &fakeRepo{}
	directory := &fakeEmployees{employees: map[uuid.UUID]*models.Employee{
		delegator.ID: delegator,
		delegatee.ID: delegatee,
	}}
	f := newFixture(t, repo, directory)

	now := time.Now().UTC()
	_, err := f.service.CreateDelegation(context.Background(), DelegationInput{
		CompanyID:   companyID,
		DelegatorID: delegator.ID,
		DelegateeID: delegator.ID,
		StartDate:   now,
		EndDate:     now.Add(time.Hour),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.service.CreateDelegation(context.Background(), DelegationInput{
		CompanyID:   companyID,
		DelegatorID: delegator.ID,
		DelegateeID: delegatee.ID,
		StartDate:   now.Add(time.Hour),
		EndDate:     now,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	created, err := f.service.CreateDelegation(context.Background(), DelegationInput{
		CompanyID:   companyID,
		DelegatorID: delegator.ID,
		DelegateeID: delegatee.ID,
		StartDate:   now.Add(-time.Hour),
		EndDate:     now.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, created.IsActive)
}
