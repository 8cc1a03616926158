package visit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Realtime event names emitted on the house channel.
const (
	EventAnswered      = "notification_answered"
	EventExpired       = "notification_expired"
	EventReportUpdated = "report_updated"
)

// Fanout delivers state-change events to the live subscribers of a house
// channel. No delivery guarantee or replay.
type Fanout interface {
	Publish(communityID int64, houseNumber, event string, payload interface{})
}

// GateController pulses the community gate actuator.
type GateController interface {
	Pulse(communityID int64) error
}

// Retractor silences the original visual prompt on house devices.
type Retractor interface {
	Retract(ctx context.Context, deviceTokens []string, notificationID string) error
}

// SinkWriter propagates record changes to the best-effort secondary stores.
// Implementations never block or fail the caller.
type SinkWriter interface {
	RecordCreated(rec *Record)
	RecordUpdated(rec *Record)
	RecordDeleted(rec *Record)
}

// DeviceLister resolves the device tokens of a house's active residents.
type DeviceLister interface {
	TokensForHouse(communityID int64, houseNumber string) ([]string, error)
}

// Orchestrator is the single entry point for resolving a visit record. It
// owns the side-effect order: guard, conditional update, profile counters,
// realtime fanout, gate pulse, push retract, sink propagation.
type Orchestrator struct {
	records  *Repository
	profiles *ProfileRepository
	guard    *Guard
	fanout   Fanout
	gate     GateController
	push     Retractor
	sinks    SinkWriter
	devices  DeviceLister
}

// NewOrchestrator wires the orchestrator's collaborators. fanout, gate,
// push, sinks, and devices may be nil; the corresponding side effect is
// skipped.
func NewOrchestrator(records *Repository, profiles *ProfileRepository, guard *Guard,
	fanout Fanout, gate GateController, push Retractor, sinks SinkWriter, devices DeviceLister) *Orchestrator {
	return &Orchestrator{
		records:  records,
		profiles: profiles,
		guard:    guard,
		fanout:   fanout,
		gate:     gate,
		push:     push,
		sinks:    sinks,
		devices:  devices,
	}
}

// Result is the outcome of a resolution.
type Result struct {
	Record     *Record `json:"record"`
	GateOpened bool    `json:"gateOpened"`
}

// Respond resolves a pending visit record with a resident's decision.
// Losing a resolution race returns *AlreadyAnsweredError carrying the
// winning resolution; a missing record returns ErrNotFound.
func (o *Orchestrator) Respond(ref Ref, decision Decision, resolverName string, resolverID int64) (*Result, error) {
	status, err := decision.Status()
	if err != nil {
		return nil, err
	}

	rec, err := o.guard.AdmitResponse(ref)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no record for %s: %w", refString(ref), ErrNotFound)
	}

	resolved, err := o.records.Resolve(rec.ID, status, resolverName, resolverID, time.Now())
	if err != nil {
		return nil, err
	}

	// Profile counters are best-effort: a missing or stale profile never
	// fails the resolution.
	if o.profiles != nil {
		if err := o.profiles.RecordResolution(resolved.CommunityID, resolved.VisitorName, status); err != nil {
			slog.Warn("profile counter update failed",
				"visitor", resolved.VisitorName, "error", err)
		}
	}

	if o.fanout != nil {
		o.fanout.Publish(resolved.CommunityID, resolved.HouseNumber, EventAnswered, map[string]interface{}{
			"notificationId": resolved.NotificationID,
			"reportId":       resolved.ID,
			"status":         resolved.Status,
			"resolvedBy":     resolved.ResolvedBy,
			"message":        resolutionMessage(resolved),
		})
	}

	result := &Result{Record: resolved}

	if status == StatusAccepted && o.gate != nil {
		if err := o.gate.Pulse(resolved.CommunityID); err != nil {
			slog.Error("gate pulse failed", "community", resolved.CommunityID, "error", err)
		} else {
			result.GateOpened = true
		}
	}

	if (status == StatusAccepted || status == StatusRejected) && o.push != nil && resolved.NotificationID != "" {
		go o.retractPrompt(resolved)
	}

	if o.sinks != nil {
		o.sinks.RecordUpdated(resolved)
	}

	return result, nil
}

// retractPrompt silences the original prompt on the house's devices.
// Failures are logged, never surfaced.
func (o *Orchestrator) retractPrompt(rec *Record) {
	if o.devices == nil {
		return
	}
	tokens, err := o.devices.TokensForHouse(rec.CommunityID, rec.HouseNumber)
	if err != nil {
		slog.Warn("listing device tokens for retract failed",
			"community", rec.CommunityID, "house", rec.HouseNumber, "error", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.push.Retract(ctx, tokens, rec.NotificationID); err != nil {
		slog.Warn("push retract failed", "notification", rec.NotificationID, "error", err)
	}
}

func resolutionMessage(rec *Record) string {
	resolver := rec.ResolvedBy
	if resolver == "" || resolver == SystemResolver {
		resolver = "the system"
	}
	switch rec.Status {
	case StatusAccepted:
		return fmt.Sprintf("Visit from %s accepted by %s", rec.VisitorName, resolver)
	case StatusRejected:
		return fmt.Sprintf("Visit from %s rejected by %s", rec.VisitorName, resolver)
	case StatusCancelled:
		return fmt.Sprintf("Visit from %s cancelled by %s", rec.VisitorName, resolver)
	case StatusExpired:
		return fmt.Sprintf("Visit from %s expired without a response", rec.VisitorName)
	}
	return fmt.Sprintf("Visit from %s updated", rec.VisitorName)
}

func refString(ref Ref) string {
	if ref.NotificationID != "" {
		return "notification " + ref.NotificationID
	}
	return fmt.Sprintf("record %d", ref.ID)
}
