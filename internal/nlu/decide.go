package nlu

// Action is what the router does with a parsed intent.
type Action string

const (
	ActionExecute Action = "execute"
	ActionConfirm Action = "confirm"
	ActionClarify Action = "clarify"
)

const (
	ClarifyBelow = 0.7
	ExecuteFrom  = 0.85
)

// DecideNextAction is the single confidence policy for every intent.
func DecideNextAction(confidence float64, clarificationNeeded bool) Action {
	switch {
	case clarificationNeeded || confidence < ClarifyBelow:
		return ActionClarify
	case confidence < ExecuteFrom:
		return ActionConfirm
	default:
		return ActionExecute
	}
}
