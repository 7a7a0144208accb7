package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling traffic counter.
var Stats = &stats{}

type stats struct {
	Registered atomic.Int64 // cumulative peer registrations since process start
	Departed   atomic.Int64 // cumulative peer disconnects since process start
	Routed     atomic.Int64 // envelopes forwarded to a registered peer
	Dropped    atomic.Int64 // envelopes dropped (malformed or target gone)
}

func (s *stats) AddPeer()    { s.Registered.Add(1) }
func (s *stats) RemovePeer() { s.Departed.Add(1) }
func (s *stats) AddRouted()  { s.Routed.Add(1) }
func (s *stats) AddDropped() { s.Dropped.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs relay statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevRouted, prevDropped, prevReg, prevDep int64
		for {
			select {
			case <-ticker.C:
				reg := Stats.Registered.Load()
				dep := Stats.Departed.Load()
				routed := Stats.Routed.Load()
				dropped := Stats.Dropped.Load()

				dRouted := routed - prevRouted
				dDropped := dropped - prevDropped
				dReg := reg - prevReg
				dDep := dep - prevDep

				if dRouted > 0 || dDropped > 0 || dReg > 0 || dDep > 0 {
					pterm.DefaultLogger.Info(formatStats(reg-dep, dRouted, dDropped))
				}

				prevRouted = routed
				prevDropped = dropped
				prevReg = reg
				prevDep = dep

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(online, routed, dropped int64) string {
	return fmt.Sprintf("Online: %2d | Routed: %4d msg/10s | Dropped: %2d", online, routed, dropped)
}
