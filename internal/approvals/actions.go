package approvals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijouxtrade/bijoux-backend/pkg/db/models"
	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
	pkgerrors "github.com/bijouxtrade/bijoux-backend/pkg/errors"
	"github.com/bijouxtrade/bijoux-backend/pkg/outbox"
)

// ActionInput is the generic action envelope accepted by TakeAction.
type ActionInput struct {
	Action       enums.ApprovalActionType `json:"action"`
	Comment      string                   `json:"comment"`
	DelegateToID *uuid.UUID               `json:"delegateToId,omitempty"`
}

// systemActorID marks actions taken by the engine itself, such as
// deadline-driven escalation.
var systemActorID = uuid.Nil

var errVersionMoved = errors.New("request version moved")

type notice struct {
	recipients []uuid.UUID
	kind       enums.NotificationType
	title      string
	body       string
}

// transition is one computed state change: the compare-and-set payload, the
// audit entry, and the side effects that ride the same transaction.
type transition struct {
	updates map[string]any
	action  *models.ApprovalAction
	events  []outbox.DomainEvent
	notices []notice
	request *models.ApprovalRequest
	noop    bool
}

func (s *service) TakeAction(ctx context.Context, actorID, requestID uuid.UUID, input ActionInput) (*ActionResult, error) {
	switch input.Action {
	case enums.ApprovalActionApprove:
		return s.Approve(ctx, actorID, requestID, input.Comment)
	case enums.ApprovalActionReject:
		return s.Reject(ctx, actorID, requestID, input.Comment)
	case enums.ApprovalActionDelegate:
		if input.DelegateToID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "delegate action needs a target employee")
		}
		return s.Delegate(ctx, actorID, requestID, *input.DelegateToID, input.Comment)
	case enums.ApprovalActionEscalate:
		return s.Escalate(ctx, actorID, requestID, input.Comment)
	case enums.ApprovalActionRequestInfo:
		return s.RequestInfo(ctx, actorID, requestID, input.Comment)
	case enums.ApprovalActionRespond:
		return s.Respond(ctx, actorID, requestID, input.Comment)
	case enums.ApprovalActionComment:
		return s.AddComment(ctx, actorID, requestID, input.Comment)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown approval action")
	}
}

func (s *service) Approve(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error) {
	actor, err := s.loadEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.applyTransition(ctx, requestID, func(request *models.ApprovalRequest) (*transition, error) {
		if err := guardActionable(request); err != nil {
			return nil, err
		}
		level := request.ActiveLevel()
		if level == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "request has no active level")
		}
		if !level.HasApprover(actor.ID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not an approver on the current level")
		}
		if level.HasActed(actor.ID) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "already approved at this level")
		}

		now := time.Now().UTC()
		levelIndex := request.CurrentLevel
		level.ActedApproverIDs = append(level.ActedApproverIDs, actor.ID)
		level.ApprovalsReceived++

		t := &transition{
			request: request,
			action: &models.ApprovalAction{
				RequestID:  request.ID,
				LevelIndex: levelIndex,
				ActorID:    actor.ID,
				Action:     enums.ApprovalActionApprove,
				Comment:    strings.TrimSpace(comment),
			},
		}

		switch {
		case !level.Complete():
			request.Status = enums.ApprovalStatusInReview
			t.updates = map[string]any{"status": request.Status, "levels": request.Levels}

		case request.CurrentLevel == len(request.Levels)-1:
			request.Status = enums.ApprovalStatusApproved
			request.CompletedAt = &now
			t.updates = map[string]any{
				"status":       request.Status,
				"levels":       request.Levels,
				"completed_at": request.CompletedAt,
			}
			t.events = append(t.events, s.requestEvent(enums.OutboxEventApprovalApproved, request, actor))
			t.notices = append(t.notices, notice{
				recipients: []uuid.UUID{request.RequesterID},
				kind:       enums.NotificationTypeApprovalApproved,
				title:      "Request approved",
				body:       fmt.Sprintf("Your request for %s %s was approved", request.Amount.StringFixed(2), request.Currency),
			})

		default:
			next := &request.Levels[request.CurrentLevel+1]
			resolved, err := s.resolveApprovers(ctx, request.CompanyID, next.ApproverRole, next.ApproverIDs, request.EntityType, request.Amount, now)
			if err != nil {
				return nil, err
			}
			if len(resolved) == 0 {
				return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "no approvers available for the next level")
			}
			next.ApproverIDs = resolved
			next.ActivatedAt = &now
			request.CurrentLevel++
			request.Status = enums.ApprovalStatusPending
			t.updates = map[string]any{
				"status":        request.Status,
				"current_level": request.CurrentLevel,
				"levels":        request.Levels,
			}
			t.notices = append(t.notices, notice{
				recipients: resolved,
				kind:       enums.NotificationTypeApprovalNeeded,
				title:      "Approval needed",
				body:       fmt.Sprintf("A request for %s %s reached your approval level", request.Amount.StringFixed(2), request.Currency),
			})
		}
		return t, nil
	})
}

func (s *service) Reject(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error) {
	actor, err := s.loadEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.applyTransition(ctx, requestID, func(request *models.ApprovalRequest) (*transition, error) {
		if request.Status.IsTerminal() {
			return nil, terminalConflict(request)
		}
		level := request.ActiveLevel()
		if level == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "request has no active level")
		}
		if !level.HasApprover(actor.ID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not an approver on the current level")
		}

		now := time.Now().UTC()
		request.Status = enums.ApprovalStatusRejected
		request.CompletedAt = &now
		event := s.requestEvent(enums.OutboxEventApprovalRejected, request, actor)
		return &transition{
			request: request,
			updates: map[string]any{
				"status":       request.Status,
				"completed_at": request.CompletedAt,
			},
			action: &models.ApprovalAction{
				RequestID:  request.ID,
				LevelIndex: request.CurrentLevel,
				ActorID:    actor.ID,
				Action:     enums.ApprovalActionReject,
				Comment:    strings.TrimSpace(comment),
			},
			events: []outbox.DomainEvent{event},
			notices: []notice{{
				recipients: []uuid.UUID{request.RequesterID},
				kind:       enums.NotificationTypeApprovalRejected,
				title:      "Request rejected",
				body:       fmt.Sprintf("Your request for %s %s was rejected", request.Amount.StringFixed(2), request.Currency),
			}},
		}, nil
	})
}

func (s *service) Delegate(ctx context.Context, actorID, requestID, delegateToID uuid.UUID, comment string) (*ActionResult, error) {
	actor, err := s.loadEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if delegateToID == actorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot delegate to yourself")
	}
	target, err := s.loadEmployee(ctx, delegateToID)
	if err != nil {
		return nil, err
	}
	if target.CompanyID != actor.CompanyID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delegate target belongs to another company")
	}

	return s.applyTransition(ctx, requestID, func(request *models.ApprovalRequest) (*transition, error) {
		if err := guardActionable(request); err != nil {
			return nil, err
		}
		level := request.ActiveLevel()
		if level == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "request has no active level")
		}
		if !level.HasApprover(actor.ID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not an approver on the current level")
		}
		if level.HasActed(actor.ID) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot delegate after acting on the request")
		}
		// The target must already be eligible for the level: either part of
		// its approver set or holding the level's approver role.
		eligible := level.HasApprover(target.ID)
		if !eligible && level.ApproverRole != nil && target.Role == *level.ApproverRole {
			eligible = true
		}
		if !eligible {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "delegate target is not eligible for this approval level")
		}

		replaced := make([]uuid.UUID, 0, len(level.ApproverIDs))
		for _, id := range level.ApproverIDs {
			if id == actor.ID {
				id = target.ID
			}
			if containsID(replaced, id) {
				continue
			}
			replaced = append(replaced, id)
		}
		level.ApproverIDs = replaced

		return &transition{
			request: request,
			updates: map[string]any{"levels": request.Levels},
			action: &models.ApprovalAction{
				RequestID:       request.ID,
				LevelIndex:      request.CurrentLevel,
				ActorID:         target.ID,
				DelegatedFromID: &actor.ID,
				Action:          enums.ApprovalActionDelegate,
				Comment:         strings.TrimSpace(comment),
			},
			notices: []notice{{
				recipients: []uuid.UUID{target.ID},
				kind:       enums.NotificationTypeApprovalNeeded,
				title:      "Approval delegated to you",
				body:       fmt.Sprintf("%s delegated an approval for %s %s to you", actor.FullName, request.Amount.StringFixed(2), request.Currency),
			}},
		}, nil
	})
}

func (s *service) Escalate(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error) {
	actor, err := s.loadEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.escalate(ctx, requestID, actor, comment)
}

// EscalateDue is the deadline-driven variant used by the sweep worker. It is
// idempotent: a request already escalated at its current level, paused, or
// completed in the meantime is left alone.
func (s *service) EscalateDue(ctx context.Context, requestID uuid.UUID) (*ActionResult, error) {
	return s.escalate(ctx, requestID, nil, "escalation deadline passed")
}

func (s *service) escalate(ctx context.Context, requestID uuid.UUID, actor *models.Employee, comment string) (*ActionResult, error) {
	return s.applyTransition(ctx, requestID, func(request *models.ApprovalRequest) (*transition, error) {
		system := actor == nil
		if request.Status.IsTerminal() || request.Status == enums.ApprovalStatusInfoRequested {
			if system {
				return &transition{request: request, noop: true}, nil
			}
			if request.Status.IsTerminal() {
				return nil, terminalConflict(request)
			}
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "request is paused pending information")
		}
		level := request.ActiveLevel()
		if level == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "request has no active level")
		}
		if level.Escalated {
			return &transition{request: request, noop: true}, nil
		}
		if !system && !level.HasApprover(actor.ID) && actor.Role != enums.EmployeeRoleAdmin {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not an approver on the current level")
		}

		now := time.Now().UTC()
		targets, err := s.escalationTargets(ctx, request, now)
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "no escalation target configured")
		}

		added := make([]uuid.UUID, 0, len(targets))
		for _, id := range targets {
			if containsID(level.ApproverIDs, id) {
				continue
			}
			level.ApproverIDs = append(level.ApproverIDs, id)
			added = append(added, id)
		}
		level.Escalated = true
		request.Status = enums.ApprovalStatusEscalated

		actorRef := systemActorID
		var eventActor *models.Employee
		if !system {
			actorRef = actor.ID
			eventActor = actor
		}
		event := s.requestEvent(enums.OutboxEventApprovalEscalated, request, eventActor)
		return &transition{
			request: request,
			updates: map[string]any{
				"status": request.Status,
				"levels": request.Levels,
			},
			action: &models.ApprovalAction{
				RequestID:  request.ID,
				LevelIndex: request.CurrentLevel,
				ActorID:    actorRef,
				Action:     enums.ApprovalActionEscalate,
				Comment:    strings.TrimSpace(comment),
			},
			events: []outbox.DomainEvent{event},
			notices: []notice{{
				recipients: added,
				kind:       enums.NotificationTypeApprovalEscalated,
				title:      "Escalated approval needs attention",
				body:       fmt.Sprintf("An approval for %s %s was escalated to you", request.Amount.StringFixed(2), request.Currency),
			}},
		}, nil
	})
}

// escalationTargets resolves who gains authority on escalation: the next
// level's configured approvers when one exists, otherwise the workflow's
// fallback approvers.
func (s *service) escalationTargets(ctx context.Context, request *models.ApprovalRequest, at time.Time) ([]uuid.UUID, error) {
	if request.CurrentLevel+1 < len(request.Levels) {
		next := request.Levels[request.CurrentLevel+1]
		return s.resolveApprovers(ctx, request.CompanyID, next.ApproverRole, next.ApproverIDs, request.EntityType, request.Amount, at)
	}
	if request.WorkflowID == nil {
		return nil, nil
	}
	workflow, err := s.repo.FindWorkflowByID(ctx, *request.WorkflowID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load workflow for escalation")
	}
	if workflow == nil || len(workflow.FallbackApproverIDs) == 0 {
		return nil, nil
	}
	return s.resolveApprovers(ctx, request.CompanyID, nil, workflow.FallbackApproverIDs, request.EntityType, request.Amount, at)
}

func (s *service) RequestInfo(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error) {
	actor, err := s.loadEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(comment) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a question for the requester is required")
	}
	return s.applyTransition(ctx, requestID, func(request *models.ApprovalRequest) (*transition, error) {
		if err := guardActionable(request); err != nil {
			return nil, err
		}
		level := request.ActiveLevel()
		if level == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfig, "request has no active level")
		}
		if !level.HasApprover(actor.ID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not an approver on the current level")
		}

		now := time.Now().UTC()
		prior := request.Status
		request.PriorStatus = &prior
		request.Status = enums.ApprovalStatusInfoRequested
		request.PausedAt = &now
		return &transition{
			request: request,
			updates: map[string]any{
				"status":       request.Status,
				"prior_status": request.PriorStatus,
				"paused_at":    request.PausedAt,
			},
			action: &models.ApprovalAction{
				RequestID:  request.ID,
				LevelIndex: request.CurrentLevel,
				ActorID:    actor.ID,
				Action:     enums.ApprovalActionRequestInfo,
				Comment:    strings.TrimSpace(comment),
			},
			notices: []notice{{
				recipients: []uuid.UUID{request.RequesterID},
				kind:       enums.NotificationTypeInfoRequested,
				title:      "More information needed",
				body:       strings.TrimSpace(comment),
			}},
		}, nil
	})
}

func (s *service) Respond(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error) {
	actor, err := s.loadEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(comment) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a response is required")
	}
	return s.applyTransition(ctx, requestID, func(request *models.ApprovalRequest) (*transition, error) {
		if request.Status != enums.ApprovalStatusInfoRequested {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "request is not awaiting information")
		}
		if request.RequesterID != actor.ID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the requester may respond")
		}

		now := time.Now().UTC()
		restored := enums.ApprovalStatusPending
		if request.PriorStatus != nil {
			restored = *request.PriorStatus
		}
		if request.PausedAt != nil {
			request.PausedSecs += int64(now.Sub(*request.PausedAt).Seconds())
		}
		request.Status = restored
		request.PriorStatus = nil
		request.PausedAt = nil

		level := request.ActiveLevel()
		var recipients []uuid.UUID
		if level != nil {
			recipients = level.ApproverIDs
		}
		return &transition{
			request: request,
			updates: map[string]any{
				"status":       request.Status,
				"prior_status": nil,
				"paused_at":    nil,
				"paused_secs":  request.PausedSecs,
			},
			action: &models.ApprovalAction{
				RequestID:  request.ID,
				LevelIndex: request.CurrentLevel,
				ActorID:    actor.ID,
				Action:     enums.ApprovalActionRespond,
				Comment:    strings.TrimSpace(comment),
			},
			notices: []notice{{
				recipients: recipients,
				kind:       enums.NotificationTypeApprovalNeeded,
				title:      "Requester responded",
				body:       fmt.Sprintf("%s answered the information request", actor.FullName),
			}},
		}, nil
	})
}

// AddComment appends a comment to the audit log without moving the state
// machine. Requesters and approvers on any level may comment.
func (s *service) AddComment(ctx context.Context, actorID, requestID uuid.UUID, comment string) (*ActionResult, error) {
	actor, err := s.loadEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(comment) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment is required")
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	participant := request.RequesterID == actor.ID
	for _, level := range request.Levels {
		if level.HasApprover(actor.ID) {
			participant = true
			break
		}
	}
	if !participant {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant on this request")
	}

	action := &models.ApprovalAction{
		RequestID:  request.ID,
		LevelIndex: request.CurrentLevel,
		ActorID:    actor.ID,
		Action:     enums.ApprovalActionComment,
		Comment:    strings.TrimSpace(comment),
	}
	if err := s.repo.CreateAction(ctx, action); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record comment")
	}
	return &ActionResult{Request: request, Action: action}, nil
}

func (s *service) ApproveMany(ctx context.Context, actorID uuid.UUID, requestIDs []uuid.UUID, comment string) []BulkResult {
	results := make([]BulkResult, 0, len(requestIDs))
	for _, id := range requestIDs {
		_, err := s.Approve(ctx, actorID, id, comment)
		results = append(results, BulkResult{RequestID: id, Err: err})
	}
	return results
}

func (s *service) RejectMany(ctx context.Context, actorID uuid.UUID, requestIDs []uuid.UUID, comment string) []BulkResult {
	results := make([]BulkResult, 0, len(requestIDs))
	for _, id := range requestIDs {
		_, err := s.Reject(ctx, actorID, id, comment)
		results = append(results, BulkResult{RequestID: id, Err: err})
	}
	return results
}

// applyTransition runs the load, compute, compare-and-set cycle. A version
// conflict gets one retry against a fresh read; a second conflict surfaces as
// CodeConflict for the caller to retry.
func (s *service) applyTransition(ctx context.Context, requestID uuid.UUID, build func(*models.ApprovalRequest) (*transition, error)) (*ActionResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		request, err := s.loadRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		t, err := build(request)
		if err != nil {
			return nil, err
		}
		if t.noop {
			return &ActionResult{Request: t.request}, nil
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			swapped, err := repo.CompareAndSwapRequest(ctx, request.ID, request.Version, t.updates)
			if err != nil {
				return err
			}
			if !swapped {
				return errVersionMoved
			}
			if t.action != nil {
				if err := repo.CreateAction(ctx, t.action); err != nil {
					return err
				}
			}
			if s.outbox != nil {
				for _, event := range t.events {
					if err := s.outbox.Emit(ctx, tx, event); err != nil {
						return err
					}
				}
			}
			for _, n := range t.notices {
				s.notifyApprovers(ctx, tx, t.request, n.recipients, n.kind, n.title, n.body)
			}
			return nil
		})
		if errors.Is(err, errVersionMoved) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply approval action")
		}
		t.request.Version = request.Version + 1
		return &ActionResult{Request: t.request, Action: t.action}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "request changed concurrently, retry the action")
}

func (s *service) requestEvent(kind enums.OutboxEventType, request *models.ApprovalRequest, actor *models.Employee) outbox.DomainEvent {
	event := outbox.DomainEvent{
		EventType:     kind,
		AggregateType: enums.OutboxAggregateApprovalRequest,
		AggregateID:   request.ID,
		Data: map[string]any{
			"entityType": request.EntityType,
			"entityId":   request.EntityID,
			"status":     request.Status,
			"amount":     request.Amount,
			"currency":   request.Currency,
		},
	}
	if actor != nil {
		event.Actor = &outbox.ActorRef{EmployeeID: actor.ID, CompanyID: actor.CompanyID, Role: actor.Role}
	}
	return event
}

// guardActionable rejects state-changing approver actions against completed
// or paused requests.
func guardActionable(request *models.ApprovalRequest) error {
	if request.Status.IsTerminal() {
		return terminalConflict(request)
	}
	if request.Status == enums.ApprovalStatusInfoRequested {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "request is paused pending information")
	}
	return nil
}

func terminalConflict(request *models.ApprovalRequest) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("request is already %s", request.Status))
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
