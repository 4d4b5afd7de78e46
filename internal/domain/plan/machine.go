package plan

// EventKind tags a lifecycle event.
type EventKind string

const (
	EventStart      EventKind = "start"
	EventPause      EventKind = "pause"
	EventResume     EventKind = "resume"
	EventUserInput  EventKind = "user_input_received"
	EventComplete   EventKind = "complete"
	EventError      EventKind = "error"
	EventStepFailed EventKind = "step_failed"
	EventCancel     EventKind = "cancel"
)

// Event carries a lifecycle event and its payload.
type Event struct {
	Kind     EventKind
	Analysis *Analysis // EventStart out of Analyzing
	Input    string    // EventUserInput
	Message  string    // EventError
}

// Next returns the state a plan moves to when the event is applied, or an
// InvalidTransitionError when the (state, event) pair is not in the table.
// Next is pure: recording history and persisting the change is the caller's job.
func Next(from State, ev Event) (State, error) {
	switch from {
	case StateCreated:
		if ev.Kind == EventStart {
			return StateAnalyzing, nil
		}

	case StateAnalyzing:
		switch ev.Kind {
		case EventStart:
			if ev.Analysis != nil && ev.Analysis.RequiresInput {
				return StateRequiresInput, nil
			}
			return StateInProgress, nil
		case EventError:
			return StateFailed, nil
		case EventCancel:
			return StateCancelled, nil
		}

	case StateInProgress:
		switch ev.Kind {
		case EventPause:
			return StatePaused, nil
		case EventUserInput:
			return StateRequiresInput, nil
		case EventComplete:
			return StateCompleted, nil
		case EventError, EventStepFailed:
			return StateFailed, nil
		case EventCancel:
			return StateCancelled, nil
		}

	case StatePaused:
		switch ev.Kind {
		case EventResume:
			return StateResumed, nil
		case EventCancel:
			return StateCancelled, nil
		}

	case StateResumed:
		if ev.Kind == EventResume {
			return StateInProgress, nil
		}

	case StateRequiresInput:
		switch ev.Kind {
		case EventUserInput:
			return StateInProgress, nil
		case EventCancel:
			return StateCancelled, nil
		}

	case StateFailed:
		switch ev.Kind {
		case EventStart:
			return StateAnalyzing, nil
		case EventCancel:
			return StateCancelled, nil
		}

	case StateCompleted, StateCancelled:
		// terminal
	}

	return from, &InvalidTransitionError{From: from, Event: ev.Kind}
}
