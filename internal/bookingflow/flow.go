// Package bookingflow sequences the booking conversation: therapist
// selection, date and time selection, confirmation. It is a thin router
// over already-validated action slices; the agent owns all resulting
// surface state.
package bookingflow

import (
	"context"
	"sync"
	"time"

	"github.com/therapyflow/agent-surface/internal/action"
	"github.com/therapyflow/agent-surface/pkg/logging"
)

// Step is the current position in the booking conversation. The tags match
// the step metadata the agent writes onto the surface.
type Step string

const (
	StepTherapistSelection Step = "THERAPIST_SELECTION"
	StepDateTimeSelection  Step = "DATE_TIME_SELECTION"
	StepConfirmation       Step = "CONFIRMATION"
	StepCompleted          Step = "COMPLETED"
)

// Dispatcher is the validated-action gate the flow drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, a action.Action) action.Result
}

// StepSaver persists the step tag so a remounted client resumes where the
// conversation left off. Best effort; nil disables persistence.
type StepSaver interface {
	SaveStep(ctx context.Context, surfaceID string, step Step) error
}

// Flow routes one user's booking steps for one surface. It holds no
// business state beyond "which step": therapist, date and time travel in
// the narrowed action payloads.
type Flow struct {
	dispatch  Dispatcher
	saver     StepSaver
	logger    *logging.Logger
	surfaceID string
	userID    string

	mu   sync.Mutex
	step Step
}

// New starts a flow at therapist selection.
func New(dispatch Dispatcher, saver StepSaver, surfaceID, userID string, logger *logging.Logger) *Flow {
	if dispatch == nil {
		panic("bookingflow: dispatcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Flow{
		dispatch:  dispatch,
		saver:     saver,
		logger:    logger,
		surfaceID: surfaceID,
		userID:    userID,
		step:      StepTherapistSelection,
	}
}

// Resume sets the step from persisted state, e.g. after a remount.
func (f *Flow) Resume(step Step) {
	switch step {
	case StepTherapistSelection, StepDateTimeSelection, StepConfirmation, StepCompleted:
	default:
		return
	}
	f.mu.Lock()
	f.step = step
	f.mu.Unlock()
}

// Step returns the current step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// SelectTherapist dispatches select_therapist and, when accepted, advances
// to date/time selection.
func (f *Flow) SelectTherapist(ctx context.Context, therapistID string) action.Result {
	res := f.dispatch.Dispatch(ctx, f.action("select_therapist", map[string]any{
		"therapistId": therapistID,
	}))
	if res.Accepted {
		f.advance(ctx, StepDateTimeSelection)
	}
	return res
}

// SelectDate dispatches select_date. Staying on the date/time step: picking
// another date re-renders the slot list without advancing.
func (f *Flow) SelectDate(ctx context.Context, therapistID, date string) action.Result {
	if res, ok := f.require(StepDateTimeSelection, StepConfirmation); !ok {
		return res
	}
	res := f.dispatch.Dispatch(ctx, f.action("select_date", map[string]any{
		"therapistId": therapistID,
		"date":        date,
	}))
	if res.Accepted {
		f.advance(ctx, StepDateTimeSelection)
	}
	return res
}

// SelectTimeSlot dispatches select_time_slot and advances to confirmation.
func (f *Flow) SelectTimeSlot(ctx context.Context, therapistID, date, timeSlot string) action.Result {
	if res, ok := f.require(StepDateTimeSelection, StepConfirmation); !ok {
		return res
	}
	res := f.dispatch.Dispatch(ctx, f.action("select_time_slot", map[string]any{
		"therapistId": therapistID,
		"date":        date,
		"time":        timeSlot,
	}))
	if res.Accepted {
		f.advance(ctx, StepConfirmation)
	}
	return res
}

// Confirm dispatches confirm_booking and completes the flow.
func (f *Flow) Confirm(ctx context.Context, therapistID, date, timeSlot string) action.Result {
	if res, ok := f.require(StepConfirmation); !ok {
		return res
	}
	res := f.dispatch.Dispatch(ctx, f.action("confirm_booking", map[string]any{
		"therapistId": therapistID,
		"date":        date,
		"time":        timeSlot,
	}))
	if res.Accepted {
		f.advance(ctx, StepCompleted)
	}
	return res
}

// Cancel dispatches cancel_booking and resets to therapist selection.
// Valid from any step.
func (f *Flow) Cancel(ctx context.Context) action.Result {
	res := f.dispatch.Dispatch(ctx, f.action("cancel_booking", nil))
	if res.Accepted {
		f.advance(ctx, StepTherapistSelection)
	}
	return res
}

func (f *Flow) action(name string, payload map[string]any) action.Action {
	return action.Action{
		Name:      name,
		SurfaceID: f.surfaceID,
		UserID:    f.userID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

func (f *Flow) require(allowed ...Step) (action.Result, bool) {
	current := f.Step()
	for _, s := range allowed {
		if current == s {
			return action.Result{}, true
		}
	}
	return action.Result{
		Reason: action.ReasonOutOfOrder,
		Detail: "step " + string(current) + " does not allow this action",
	}, false
}

func (f *Flow) advance(ctx context.Context, step Step) {
	f.mu.Lock()
	f.step = step
	f.mu.Unlock()

	if f.saver == nil {
		return
	}
	if err := f.saver.SaveStep(ctx, f.surfaceID, step); err != nil {
		f.logger.Warn("bookingflow: persisting step failed",
			"surface_id", f.surfaceID, "step", string(step), "error", err)
	}
}
