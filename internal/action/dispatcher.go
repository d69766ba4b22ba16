package action

import (
	"context"
	"time"

	"github.com/therapyflow/agent-surface/internal/observability/metrics"
	"github.com/therapyflow/agent-surface/pkg/logging"
)

// AgentClient forwards a validated action to the upstream agent. The
// agent's real effects arrive asynchronously on the realtime channel, not
// in this call's response.
type AgentClient interface {
	Submit(ctx context.Context, a Action) (SubmitResult, error)
}

// SubmitResult is the agent endpoint's synchronous acknowledgement.
type SubmitResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Authorizer answers whether the acting user may act on a surface owned by
// surfaceOwnerID. The implementation lives at the collaborator boundary.
type Authorizer interface {
	CanAct(ctx context.Context, userID, surfaceOwnerID string) (bool, error)
}

// OwnerLookup resolves the owner of a surface, "" when unknown.
type OwnerLookup interface {
	Owner(ctx context.Context, surfaceID string) (string, error)
}

// Limiter is the advisory rate-limit hook ahead of the forward. The default
// always permits: authoritative limiting belongs to the transport edge, and
// this layer does not duplicate it.
type Limiter interface {
	Allow(userID string) bool
}

// NoopLimiter always permits.
type NoopLimiter struct{}

func (NoopLimiter) Allow(string) bool { return true }

// Recorder captures an audit trail of dispatch outcomes. Best effort.
type Recorder interface {
	RecordAction(ctx context.Context, a Action, outcome string)
}

// Result is the synchronous answer to a dispatch.
type Result struct {
	Accepted bool
	Reason   Reason
	Detail   string
}

// Dispatcher validates, authorizes, and forwards actions.
type Dispatcher struct {
	agent   AgentClient
	authz   Authorizer
	owners  OwnerLookup
	limiter Limiter
	rec     Recorder
	logger  *logging.Logger
	metrics *metrics.SurfaceMetrics
}

// NewDispatcher builds a dispatcher. owners and rec may be nil; a nil
// limiter falls back to NoopLimiter.
func NewDispatcher(agent AgentClient, authz Authorizer, owners OwnerLookup, limiter Limiter, rec Recorder, logger *logging.Logger, m *metrics.SurfaceMetrics) *Dispatcher {
	if agent == nil {
		panic("action: agent client required")
	}
	if authz == nil {
		panic("action: authorizer required")
	}
	if limiter == nil {
		limiter = NoopLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		agent:   agent,
		authz:   authz,
		owners:  owners,
		limiter: limiter,
		rec:     rec,
		logger:  logger,
		metrics: m,
	}
}

// Dispatch runs the local gate: structural validation, then ownership,
// then the advisory limiter, then the forward. A rejection at any stage is
// synchronous and never reaches the network.
func (d *Dispatcher) Dispatch(ctx context.Context, a Action) Result {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	if verr := Validate(a); verr != nil {
		d.metrics.ObserveAction(a.Name, "rejected_validation")
		d.record(ctx, a, "rejected_validation")
		d.logger.Debug("dispatch: rejected by validation",
			"action", a.Name, "reason", string(verr.Reason))
		return Result{Reason: verr.Reason, Detail: verr.Detail}
	}

	if d.owners != nil {
		owner, err := d.owners.Owner(ctx, a.SurfaceID)
		if err != nil {
			d.metrics.ObserveAction(a.Name, "rejected_transport")
			return Result{Reason: ReasonTransport, Detail: "owner lookup failed"}
		}
		// A surface with no persisted owner yet (first interaction) is
		// let through; the agent is the authority on creation.
		if owner != "" {
			allowed, err := d.authz.CanAct(ctx, a.UserID, owner)
			if err != nil {
				d.metrics.ObserveAction(a.Name, "rejected_transport")
				return Result{Reason: ReasonTransport, Detail: "authorization check failed"}
			}
			if !allowed {
				d.metrics.ObserveAction(a.Name, "rejected_unauthorized")
				d.record(ctx, a, "rejected_unauthorized")
				d.logger.Warn("dispatch: unauthorized action",
					"action", a.Name, "surface_id", a.SurfaceID, "user_id", a.UserID)
				return Result{Reason: ReasonUnauthorized, Detail: "user does not own the target surface"}
			}
		}
	}

	if !d.limiter.Allow(a.UserID) {
		d.metrics.ObserveAction(a.Name, "rejected_rate_limited")
		d.record(ctx, a, "rejected_rate_limited")
		return Result{Reason: ReasonRateLimited, Detail: "too many actions"}
	}

	res, err := d.agent.Submit(ctx, a)
	if err != nil {
		d.metrics.ObserveAction(a.Name, "rejected_transport")
		d.record(ctx, a, "rejected_transport")
		d.logger.Error("dispatch: agent submit failed",
			"action", a.Name, "surface_id", a.SurfaceID, "error", err)
		return Result{Reason: ReasonTransport, Detail: "agent endpoint unreachable"}
	}
	if !res.Accepted {
		d.metrics.ObserveAction(a.Name, "rejected_upstream")
		d.record(ctx, a, "rejected_upstream")
		return Result{Reason: ReasonUpstream, Detail: res.Reason}
	}

	d.metrics.ObserveAction(a.Name, "accepted")
	d.record(ctx, a, "accepted")
	return Result{Accepted: true}
}

func (d *Dispatcher) record(ctx context.Context, a Action, outcome string) {
	if d.rec == nil {
		return
	}
	d.rec.RecordAction(ctx, a, outcome)
}
