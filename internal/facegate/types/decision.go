package types

// Decision is the access outcome for a single resolved face.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionGranted
	DecisionDenied
	DecisionAlreadyGranted
)

func (d Decision) String() string {
	switch d {
	case DecisionGranted:
		return "granted"
	case DecisionDenied:
		return "denied"
	case DecisionAlreadyGranted:
		return "already_granted"
	default:
		return "none"
	}
}

// Status maps a decision to the text and category shown by the display.
// DecisionNone has no status; ok is false.
func (d Decision) Status() (s Status, ok bool) {
	switch d {
	case DecisionGranted:
		return Status{Text: "Access GRANTED", Category: CategorySuccess}, true
	case DecisionDenied:
		return Status{Text: "Access DENIED", Category: CategoryError}, true
	case DecisionAlreadyGranted:
		return Status{Text: "Access already granted", Category: CategoryNeutral}, true
	default:
		return Status{}, false
	}
}
