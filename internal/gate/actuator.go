// Package gate controls the per-community gate actuator. The persisted
// community gate flag is the source of truth; the actuator only schedules
// the timed auto-close.
package gate

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rvaldez/porteria/internal/community"
)

// Actuator opens a community gate and arms one idempotent auto-close per
// open. Overlapping opens schedule overlapping closes; a later close on an
// already-closed gate is harmless.
type Actuator struct {
	communities *community.Repository
	pulse       time.Duration
}

// NewActuator creates an actuator with the given auto-close delay.
func NewActuator(communities *community.Repository, pulse time.Duration) *Actuator {
	if pulse <= 0 {
		pulse = 10 * time.Second
	}
	return &Actuator{communities: communities, pulse: pulse}
}

// PulseDuration returns the configured auto-close delay.
func (a *Actuator) PulseDuration() time.Duration {
	return a.pulse
}

// Pulse opens the gate now and schedules the auto-close.
func (a *Actuator) Pulse(communityID int64) error {
	if err := a.communities.SetGateOpen(communityID, true); err != nil {
		return fmt.Errorf("opening gate: %w", err)
	}

	slog.Info("gate opened", "community", communityID, "auto_close", a.pulse.String())

	time.AfterFunc(a.pulse, func() {
		if err := a.communities.SetGateOpen(communityID, false); err != nil {
			slog.Error("gate auto-close failed", "community", communityID, "error", err)
			return
		}
		slog.Info("gate closed", "community", communityID)
	})

	return nil
}

// Close closes the gate immediately.
func (a *Actuator) Close(communityID int64) error {
	if err := a.communities.SetGateOpen(communityID, false); err != nil {
		return fmt.Errorf("closing gate: %w", err)
	}
	return nil
}

// State returns the current persisted gate state.
func (a *Actuator) State(communityID int64) (bool, error) {
	return a.communities.GateOpen(communityID)
}
