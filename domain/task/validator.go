package task

// Validator checks a task and returns a *ValidationError when it is
// rejected. Validators never mutate the task.
type Validator func(t *Task) error

// Rule names, used as ValidationError.Rule.
const (
	RuleNotDone                 = "not-done"
	RuleNotPastDue              = "not-past-due"
	RuleDoneInFuture            = "done-in-future"
	RuleNotDoneWithExpiredDue   = "not-done-with-expired-due"
	RulePastDueWithUnexpiredDue = "past-due-with-unexpired-due"
)

// Composite runs its validators in registration order and stops at the
// first failure.
type Composite struct {
	name       string
	validators []Validator
}

// NewComposite creates a named composite from the given validators.
func NewComposite(name string, validators ...Validator) *Composite {
	c := &Composite{name: name}
	for _, v := range validators {
		c.Add(v)
	}
	return c
}

// Add appends a validator.
func (c *Composite) Add(v Validator) *Composite {
	if v != nil {
		c.validators = append(c.validators, v)
	}
	return c
}

// Name returns the composite name.
func (c *Composite) Name() string {
	return c.name
}

// Len returns the number of registered validators.
func (c *Composite) Len() int {
	return len(c.validators)
}

// Validate runs every validator until one fails.
func (c *Composite) Validate(t *Task) error {
	for _, v := range c.validators {
		if err := v(t); err != nil {
			return err
		}
	}
	return nil
}

// Validator exposes the composite as a single Validator so composites nest.
func (c *Composite) Validator() Validator {
	return c.Validate
}

// NotDone rejects tasks that are DONE.
func NotDone() Validator {
	return func(t *Task) error {
		if t.Status == StatusDone {
			return NewValidationError(RuleNotDone, "The task cannot be Done for this operation.")
		}
		return nil
	}
}

// NotPastDue rejects tasks that are PAST_DUE.
func NotPastDue() Validator {
	return func(t *Task) error {
		if t.Status == StatusPastDue {
			return NewValidationError(RuleNotPastDue, "The task cannot be PAST_DUE for this operation.")
		}
		return nil
	}
}

// DoneInFuture rejects DONE tasks whose completion time is after now.
func DoneInFuture(clock Clock) Validator {
	return func(t *Task) error {
		if t.Status == StatusDone && t.CompletionDateTime != nil && t.CompletionDateTime.After(clock()) {
			return NewValidationError(RuleDoneInFuture, "The task cannot be DONE in the future time.")
		}
		return nil
	}
}

// NotDoneWithExpiredDue rejects NOT_DONE tasks whose deadline already passed.
// Such tasks have to be demoted by the status updater instead.
func NotDoneWithExpiredDue(clock Clock) Validator {
	return func(t *Task) error {
		if t.Status == StatusNotDone && t.DueDateTime != nil && t.DueDateTime.Before(clock()) {
			return NewValidationError(RuleNotDoneWithExpiredDue, "The task cannot be NOT_DONE with an expired due date and time.")
		}
		return nil
	}
}

// PastDueWithUnexpiredDue rejects PAST_DUE tasks whose deadline has not arrived.
func PastDueWithUnexpiredDue(clock Clock) Validator {
	return func(t *Task) error {
		if t.Status == StatusPastDue && t.DueDateTime != nil && t.DueDateTime.After(clock()) {
			return NewValidationError(RulePastDueWithUnexpiredDue, "The task can't be PAST_DUE with a not expired due date and time.")
		}
		return nil
	}
}

// RuleSets groups the composites bound to each mutating operation.
type RuleSets struct {
	// Delete gates removal: the task must be neither DONE nor PAST_DUE.
	Delete *Composite
	// Edit gates update and patch with the same rule as Delete.
	Edit *Composite
	// Save guards against internally inconsistent state at persistence time.
	Save *Composite
}

// NewRuleSets builds the standard rule sets reading time from clock.
func NewRuleSets(clock Clock) RuleSets {
	if clock == nil {
		clock = SystemClock
	}
	return RuleSets{
		Delete: NewComposite("delete", NotDone(), NotPastDue()),
		Edit:   NewComposite("not-done-not-past-due", NotDone(), NotPastDue()),
		Save: NewComposite("save",
			NotDoneWithExpiredDue(clock),
			PastDueWithUnexpiredDue(clock),
			DoneInFuture(clock),
		),
	}
}
