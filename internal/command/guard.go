package command

// Action is the replay guard's verdict for one tick.
type Action int

const (
	ActionNone     Action = iota // no actionable instruction
	ActionApply                  // run the command
	ActionSuppress               // duplicate delivery; route straight to the terminal no-op
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionApply:
		return "apply"
	case ActionSuppress:
		return "suppress"
	}
	return "unknown"
}

// Decision is what Decide returns. RecordMutationID, when non-empty, becomes
// the new last-applied mutation id.
type Decision struct {
	Action           Action
	RecordMutationID string
}

// Decide applies the replay guard:
//
//	nil command                          -> none, no state change
//	sync                                 -> apply, record its mutation id
//	non-sync, id present and == last     -> suppress
//	non-sync, otherwise                  -> apply, record id when present
//
// Sync is never suppressed. A sync without a mutation id leaves the stored
// id as it was.
func Decide(env Envelope, lastApplied string) Decision {
	if env.Command == nil {
		return Decision{Action: ActionNone}
	}

	id := env.ClientMutationID
	if _, ok := env.Command.(Sync); ok {
		return Decision{Action: ActionApply, RecordMutationID: id}
	}

	if id != "" && id == lastApplied {
		return Decision{Action: ActionSuppress}
	}
	return Decision{Action: ActionApply, RecordMutationID: id}
}
