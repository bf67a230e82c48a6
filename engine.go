package passkey

import (
	"context"
	"errors"

	"github.com/panelkit/passkey/internal/authdata"
	"github.com/panelkit/passkey/internal/cbor"
	"github.com/panelkit/passkey/internal/cose"
)

// Engine orchestrates passkey ceremonies. Construct one through [Builder];
// zero-value Engines report [ErrEngineNotReady] from every ceremony method.
type Engine struct {
	config      Config
	challenges  *challengeStore
	credentials CredentialStore
	users       UserProvider
	audit       *auditDispatcher
	metrics     *Metrics
	tokens      *sessionTokenIssuer
}

// Close releases the engine's background resources. Safe on nil.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType, userID, credentialID string, outcome error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := newAuditEvent(eventType, userID, credentialID, clientIPFromContext(ctx), outcome)
	event.Metadata = metadata
	e.audit.Emit(ctx, event)
}

// mapWireError translates internal wire-format sentinels onto the public
// error taxonomy.
func mapWireError(err error) error {
	switch {
	case errors.Is(err, authdata.ErrRPMismatch):
		return ErrRPMismatch
	case errors.Is(err, authdata.ErrUserVerificationRequired):
		return ErrUserVerificationRequired
	case errors.Is(err, authdata.ErrMissingCredentialData):
		return ErrMissingCredentialData
	case errors.Is(err, authdata.ErrMalformed), errors.Is(err, cbor.ErrDecode), errors.Is(err, cose.ErrMalformedKey):
		return ErrMalformedInput
	case errors.Is(err, cose.ErrUnsupportedAlgorithm):
		return ErrUnsupportedAlgorithm
	case errors.Is(err, cose.ErrSignature):
		return ErrSignatureInvalid
	default:
		return err
	}
}

func (e *Engine) ready() error {
	if e == nil || e.challenges == nil || e.credentials == nil || e.users == nil {
		return ErrEngineNotReady
	}
	return nil
}
