package governance

import (
	"fmt"
	"time"

	"deposit-governance/internal/models"
)

type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseDeposit    Phase = "deposit"
	PhaseVoting     Phase = "voting"
	PhaseClosed     Phase = "closed"
)

// Window is a half-open time interval [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// DepositWindow opens at the proposal's anchor and lasts DepositPeriod
func DepositWindow(p *models.Proposal, params Params) Window {
	return Window{
		Start: p.DepositStartsAt,
		End:   p.DepositStartsAt.Add(params.DepositPeriod),
	}
}

// VotingWindow follows the deposit window immediately and lasts VotingPeriod.
// Finalization shares this window.
func VotingWindow(p *models.Proposal, params Params) Window {
	start := p.DepositStartsAt.Add(params.DepositPeriod)
	return Window{
		Start: start,
		End:   start.Add(params.VotingPeriod),
	}
}

// PhaseAt derives the lifecycle phase of p at time now
func PhaseAt(p *models.Proposal, params Params, now time.Time) Phase {
	switch {
	case now.Before(p.DepositStartsAt):
		return PhaseNotStarted
	case DepositWindow(p, params).Contains(now):
		return PhaseDeposit
	case VotingWindow(p, params).Contains(now):
		return PhaseVoting
	default:
		return PhaseClosed
	}
}
