package jobs

import (
	"time"

	"deposit-governance/internal/governance"
	"deposit-governance/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// MonitorReport summarises one monitor pass
type MonitorReport struct {
	Counts []metrics.PhaseCount
	Lapsed []uint64
}

// WindowMonitor tracks proposal phases and flags proposals whose voting
// window closed before the admin finalized them. It never mutates the engine.
type WindowMonitor struct {
	engine   *governance.Engine
	metrics  *metrics.Metrics
	interval time.Duration
	stopChan chan struct{}
	warned   map[uint64]bool
}

// NewWindowMonitor creates a new window monitor job. metrics may be nil.
func NewWindowMonitor(engine *governance.Engine, m *metrics.Metrics, interval time.Duration) *WindowMonitor {
	return &WindowMonitor{
		engine:   engine,
		metrics:  m,
		interval: interval,
		stopChan: make(chan struct{}),
		warned:   make(map[uint64]bool),
	}
}

// Start begins the monitor loop
func (w *WindowMonitor) Start() {
	log.Info().Dur("interval", w.interval).Msg("[WindowMonitor] Starting window monitor job")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check()
	for {
		select {
		case <-ticker.C:
			w.Check()
		case <-w.stopChan:
			log.Info().Msg("[WindowMonitor] Stopping window monitor job")
			return
		}
	}
}

// Stop stops the monitor loop
func (w *WindowMonitor) Stop() {
	close(w.stopChan)
}

// Check runs a single pass
func (w *WindowMonitor) Check() MonitorReport {
	now := w.engine.Now()
	params := w.engine.Params()

	type key struct {
		phase  governance.Phase
		status string
	}
	counts := make(map[key]int)
	var lapsed []uint64

	for _, p := range w.engine.Proposals() {
		phase := governance.PhaseAt(p, params, now)
		counts[key{phase: phase, status: string(p.Status)}]++

		if phase != governance.PhaseClosed || p.FinalizedAt != nil {
			continue
		}
		lapsed = append(lapsed, p.ID)
		if !w.warned[p.ID] {
			w.warned[p.ID] = true
			log.Warn().
				Uint64("proposal_id", p.ID).
				Str("status", string(p.Status)).
				Str("voting_window", governance.VotingWindow(p, params).String()).
				Msg("[WindowMonitor] voting window closed without finalization")
		}
	}

	report := MonitorReport{
		Counts: lo.MapToSlice(counts, func(k key, n int) metrics.PhaseCount {
			return metrics.PhaseCount{Phase: k.phase, Status: k.status, Count: n}
		}),
		Lapsed: lapsed,
	}

	if w.metrics != nil {
		w.metrics.SetProposalPhases(report.Counts)
		w.metrics.SetLapsedProposals(len(lapsed))
	}
	return report
}
