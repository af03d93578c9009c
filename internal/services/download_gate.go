package services

import (
	"context"
	"crypto/subtle"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-fulfillment-backend/internal/domain"
	"github.com/tbourn/go-fulfillment-backend/internal/observability"
)

// OrderReader is the read-only slice of OrderStore the gate needs.
type OrderReader interface {
	Get(ctx context.Context, id string) (*domain.Order, bool, error)
}

// Grant is a successful authorization.
type Grant struct {
	OrderID     string
	ArtifactRef string
}

// Status is the polling view of an order.
type Status struct {
	Ready     bool
	Reference string
}

// DownloadGate decides who may fetch an artifact. It never writes.
type DownloadGate struct {
	Orders OrderReader
}

// NewDownloadGate returns a gate over orders.
func NewDownloadGate(orders OrderReader) *DownloadGate {
	return &DownloadGate{Orders: orders}
}

// Authorize grants access iff the order id is well formed, the order exists, is ready and claimedEmail
// equals the stored email byte for byte. Denials are *DeniedError; store
// errors are returned unchanged and are never grants.
func (g *DownloadGate) Authorize(ctx context.Context, orderID, claimedEmail string) (Grant, error) {
	ctx, span := otel.Tracer("services/DownloadGate").Start(ctx, "Authorize",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	if !domain.ValidOrderID(orderID) {
		span.SetAttributes(attribute.String("deny.reason", string(DenyNotFound)))
		observability.DownloadAuthorizations.WithLabelValues(string(DenyNotFound)).Inc()
		return Grant{}, &DeniedError{Reason: DenyNotFound}
	}

	o, ok, err := g.Orders.Get(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		observability.DownloadAuthorizations.WithLabelValues("error").Inc()
		return Grant{}, err
	}

	var reason DenyReason
	switch {
	case !ok:
		reason = DenyNotFound
	case o.State != domain.StateReady || o.ArtifactRef == "":
		reason = DenyNotReady
	case !emailMatches(o.CustomerEmail, claimedEmail):
		reason = DenyEmailMismatch
	}
	if reason != "" {
		span.SetAttributes(attribute.String("deny.reason", string(reason)))
		observability.DownloadAuthorizations.WithLabelValues(string(reason)).Inc()
		return Grant{}, &DeniedError{Reason: reason}
	}

	observability.DownloadAuthorizations.WithLabelValues("granted").Inc()
	return Grant{OrderID: o.ID, ArtifactRef: o.ArtifactRef}, nil
}

// StatusOf reports readiness without an email check. The reference is only
// set when the order is ready; unknown orders are simply not ready.
func (g *DownloadGate) StatusOf(ctx context.Context, orderID string) (Status, error) {
	ctx, span := otel.Tracer("services/DownloadGate").Start(ctx, "StatusOf",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	if !domain.ValidOrderID(orderID) {
		return Status{Ready: false}, nil
	}

	o, ok, err := g.Orders.Get(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return Status{}, err
	}
	if !ok || o.State != domain.StateReady || o.ArtifactRef == "" {
		return Status{Ready: false}, nil
	}
	return Status{Ready: true, Reference: o.ArtifactRef}, nil
}

func emailMatches(stored, claimed string) bool {
	if stored == "" || claimed == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(claimed)) == 1
}
