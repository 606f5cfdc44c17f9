package cpa

// Outcome is the terminal result of one classification run. Exactly one
// Outcome is produced per run.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeRinging
	OutcomeBusy
	OutcomeCongestion
	OutcomeTalking
	OutcomeHangup
	OutcomeSilence
	OutcomeNoFrames
)

var outcomeNames = map[Outcome]string{
	OutcomeUnknown:    "Unknown",
	OutcomeRinging:    "Ringing",
	OutcomeBusy:       "Busy",
	OutcomeCongestion: "Congestion",
	OutcomeTalking:    "Talking",
	OutcomeHangup:     "Hangup",
	OutcomeSilence:    "Silence",
	OutcomeNoFrames:   "NoFrames",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "Unknown"
}

// Status returns the caller-visible token for the outcome, the value
// written to the CPASTATUS channel variable. Silence never reaches the
// caller as a terminal value of its own; it reports as Unknown.
func (o Outcome) Status() string {
	switch o {
	case OutcomeHangup:
		return "Hungup"
	case OutcomeSilence, OutcomeUnknown:
		return "Unknown"
	default:
		return o.String()
	}
}
