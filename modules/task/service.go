package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/example/task-lifecycle/domain/task"
	"github.com/go-monolith/mono/pkg/types"
)

// RuleRequest names request-level validation failures.
const RuleRequest = "request"

// StatusCorrector demotes a task in memory and reports whether it changed.
type StatusCorrector interface {
	UpdateStatus(t *domain.Task) bool
}

// Notifier receives task lifecycle notifications. Implementations must not
// block; failures are their own concern.
type Notifier interface {
	TaskCreated(ctx context.Context, t *domain.Task)
	TaskDeleted(ctx context.Context, id int64, all bool)
	TaskPastDue(ctx context.Context, t *domain.Task)
}

type nopNotifier struct{}

func (nopNotifier) TaskCreated(context.Context, *domain.Task) {}
func (nopNotifier) TaskDeleted(context.Context, int64, bool)  {}
func (nopNotifier) TaskPastDue(context.Context, *domain.Task) {}

// CreateRequest carries the fields of a new task.
type CreateRequest struct {
	Description        string        `json:"description"`
	Status             domain.Status `json:"status"`
	DueDateTime        *time.Time    `json:"dueDateTime,omitempty"`
	CompletionDateTime *time.Time    `json:"completionDateTime,omitempty"`
}

// UpdateRequest replaces every mutable field of a task.
type UpdateRequest struct {
	Description        string        `json:"description"`
	Status             domain.Status `json:"status"`
	DueDateTime        *time.Time    `json:"dueDateTime,omitempty"`
	CompletionDateTime *time.Time    `json:"completionDateTime,omitempty"`
}

// PatchRequest changes only the fields that are set.
type PatchRequest struct {
	Description        *string        `json:"description,omitempty"`
	Status             *domain.Status `json:"status,omitempty"`
	DueDateTime        *time.Time     `json:"dueDateTime,omitempty"`
	CompletionDateTime *time.Time     `json:"completionDateTime,omitempty"`
}

// Service implements task use cases on top of a repository, keeping stored
// statuses consistent with the clock.
type Service struct {
	repo      domain.Repository
	rules     domain.RuleSets
	corrector StatusCorrector
	clock     domain.Clock
	notifier  Notifier
	logger    types.Logger
}

// NewService creates a Service.
func NewService(repo domain.Repository, rules domain.RuleSets, corrector StatusCorrector, clock domain.Clock, logger types.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Service{
		repo:      repo,
		rules:     rules,
		corrector: corrector,
		clock:     clock,
		notifier:  nopNotifier{},
		logger:    logger,
	}
}

// SetNotifier replaces the lifecycle notifier. A nil notifier disables
// notifications.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// Create validates and stores a new task.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Task, error) {
	if err := validateFields(req.Description, req.Status); err != nil {
		return nil, err
	}

	t := s.repo.NewEntity()
	t.Description = req.Description
	t.Status = req.Status
	t.DueDateTime = req.DueDateTime
	t.CompletionDateTime = req.CompletionDateTime
	s.stampCompletion(t)

	saved, err := s.save(ctx, t)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Task created", "task_id", saved.ID, "status", string(saved.Status))
	s.notifier.TaskCreated(ctx, saved)
	return saved, nil
}

// Get returns a task by id, demoting and persisting it first when overdue.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Task, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.wrapFind(id, err)
	}
	return s.correct(ctx, t)
}

// List returns one page of tasks with overdue rows corrected.
func (s *Service) List(ctx context.Context, p domain.Pageable) (*domain.Page, error) {
	page, err := s.repo.FindAll(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return s.correctPage(ctx, page)
}

// ListByStatus returns one page of tasks stored with status, with overdue
// rows corrected.
func (s *Service) ListByStatus(ctx context.Context, p domain.Pageable, status domain.Status) (*domain.Page, error) {
	if !status.IsValid() {
		return nil, domain.NewValidationError(RuleRequest, fmt.Sprintf("Unknown status %q", status))
	}
	page, err := s.repo.FindByStatus(ctx, p, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return s.correctPage(ctx, page)
}

// Update replaces the mutable fields of an editable task.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*domain.Task, error) {
	if err := validateFields(req.Description, req.Status); err != nil {
		return nil, err
	}

	return s.edit(ctx, id, func(t *domain.Task) {
		t.Description = req.Description
		t.Status = req.Status
		t.DueDateTime = req.DueDateTime
		t.CompletionDateTime = req.CompletionDateTime
	})
}

// Patch changes the set fields of an editable task.
func (s *Service) Patch(ctx context.Context, id int64, req PatchRequest) (*domain.Task, error) {
	if req.Description != nil && strings.TrimSpace(*req.Description) == "" {
		return nil, domain.NewValidationError(RuleRequest, "Description cannot be blank")
	}
	if req.Status != nil {
		if err := validateStatus(*req.Status); err != nil {
			return nil, err
		}
	}

	return s.edit(ctx, id, func(t *domain.Task) {
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.Status != nil {
			t.Status = *req.Status
		}
		if req.DueDateTime != nil {
			t.DueDateTime = req.DueDateTime
		}
		if req.CompletionDateTime != nil {
			t.CompletionDateTime = req.CompletionDateTime
		}
	})
}

// Delete removes a task that passes the delete rules.
func (s *Service) Delete(ctx context.Context, id int64) error {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return s.wrapFind(id, err)
	}
	if err := s.rules.Delete.Validate(t); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, t); err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}

	s.logger.Info("Task deleted", "task_id", id)
	s.notifier.TaskDeleted(ctx, id, false)
	return nil
}

// DeleteAll removes every task without rule checks.
func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}

	s.logger.Info("All tasks deleted")
	s.notifier.TaskDeleted(ctx, 0, true)
	return nil
}

// edit loads and corrects a task, checks it may be edited, applies change
// and saves the result under the save rules.
func (s *Service) edit(ctx context.Context, id int64, change func(t *domain.Task)) (*domain.Task, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.rules.Edit.Validate(current); err != nil {
		return nil, err
	}

	t := current.Clone()
	change(t)
	t.ID = current.ID
	t.CreationDateTime = current.CreationDateTime
	s.stampCompletion(t)

	saved, err := s.save(ctx, t)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Task updated", "task_id", saved.ID, "status", string(saved.Status))
	return saved, nil
}

func (s *Service) save(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	if err := s.rules.Save.Validate(t); err != nil {
		return nil, err
	}
	saved, err := s.repo.Save(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	return saved, nil
}

// correct demotes t when the corrector says it is overdue. The demotion is
// a conditional update, so a row edited or deleted since it was read is
// left alone and its current state is returned instead.
func (s *Service) correct(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	corrected := t.Clone()
	if !s.corrector.UpdateStatus(corrected) {
		return t, nil
	}

	changed, err := s.repo.UpdateStatusForIDs(ctx, []int64{t.ID}, t.Status, corrected.Status, s.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to persist status correction for task %d: %w", t.ID, err)
	}
	if len(changed) == 0 {
		current, err := s.repo.FindByID(ctx, t.ID)
		if err != nil {
			return nil, s.wrapFind(t.ID, err)
		}
		return current, nil
	}

	s.logger.Info("Task demoted to PAST_DUE on read", "task_id", corrected.ID)
	s.notifier.TaskPastDue(ctx, corrected)
	return corrected, nil
}

type transition struct {
	from, to domain.Status
}

// correctPage demotes the overdue tasks of page. Rows that changed since
// the page was read are reloaded, and rows deleted since are dropped.
func (s *Service) correctPage(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	pending := make(map[transition][]int64)
	corrected := make(map[int64]*domain.Task)
	for _, t := range page.Content {
		c := t.Clone()
		if s.corrector.UpdateStatus(c) {
			key := transition{from: t.Status, to: c.Status}
			pending[key] = append(pending[key], t.ID)
			corrected[t.ID] = c
		}
	}
	if len(corrected) == 0 {
		return page, nil
	}

	applied := make(map[int64]bool, len(corrected))
	for key, ids := range pending {
		changed, err := s.repo.UpdateStatusForIDs(ctx, ids, key.from, key.to, s.clock())
		if err != nil {
			return nil, fmt.Errorf("failed to persist status corrections: %w", err)
		}
		for _, id := range changed {
			applied[id] = true
		}
	}

	content := make([]*domain.Task, 0, len(page.Content))
	for _, t := range page.Content {
		c, ok := corrected[t.ID]
		switch {
		case !ok:
			content = append(content, t)
		case applied[t.ID]:
			content = append(content, c)
			s.notifier.TaskPastDue(ctx, c)
		default:
			current, err := s.repo.FindByID(ctx, t.ID)
			if errors.Is(err, domain.ErrNotFound) {
				page.TotalElements--
				continue
			}
			if err != nil {
				return nil, s.wrapFind(t.ID, err)
			}
			content = append(content, current)
		}
	}
	page.Content = content

	if len(applied) > 0 {
		s.logger.Info("Tasks demoted to PAST_DUE on read", "count", len(applied))
	}
	return page, nil
}

// stampCompletion records now as the completion time of a DONE task that
// has none.
func (s *Service) stampCompletion(t *domain.Task) {
	if t.Status == domain.StatusDone && t.CompletionDateTime == nil {
		now := s.clock()
		t.CompletionDateTime = &now
	}
}

func (s *Service) wrapFind(id int64, err error) error {
	return fmt.Errorf("task %d: %w", id, err)
}

func validateFields(description string, status domain.Status) error {
	if strings.TrimSpace(description) == "" {
		return domain.NewValidationError(RuleRequest, "Description cannot be blank")
	}
	if status == "" {
		return domain.NewValidationError(RuleRequest, "Status is required")
	}
	return validateStatus(status)
}

func validateStatus(status domain.Status) error {
	if !status.IsValid() {
		return domain.NewValidationError(RuleRequest, fmt.Sprintf("Unknown status %q", status))
	}
	if status == domain.StatusPastDue {
		return domain.NewValidationError(RuleRequest, "Status PAST_DUE cannot be set directly")
	}
	return nil
}
