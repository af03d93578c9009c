// Package services – FulfillmentService
//
// FulfillmentService turns an order-paid event into a fulfilled order: it
// creates the order record, claims it by moving pending → generating,
// invokes the Generator, records the terminal state and notifies the
// customer. The order id is the idempotency key; the store's compare-and-set
// transitions decide which delivery owns the generation.
package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-fulfillment-backend/internal/domain"
	"github.com/tbourn/go-fulfillment-backend/internal/observability"
	"github.com/tbourn/go-fulfillment-backend/internal/repo"
	"github.com/tbourn/go-fulfillment-backend/internal/sysutil"
)

// OrderStore is the persistence contract shared by every backend in repo.
type OrderStore interface {
	CreateIfAbsent(ctx context.Context, seed domain.Order) (*domain.Order, bool, error)
	Transition(ctx context.Context, id string, from, to domain.State, p domain.Patch) (*domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, bool, error)
	ListStale(ctx context.Context, state domain.State, before time.Time) ([]domain.Order, error)
}

// Generator produces the personalized artifact and returns its reference.
type Generator interface {
	Generate(ctx context.Context, orderID, customerName string) (string, error)
}

// Notifier tells the customer where to download the artifact.
type Notifier interface {
	Notify(ctx context.Context, email, customerName, link string) error
}

// OrderPaidEvent is the normalized input of the pipeline.
type OrderPaidEvent struct {
	OrderID       string
	CustomerEmail string
	CustomerName  string
}

// Outcome tells the webhook caller what happened to an event. Every outcome
// is acknowledged as success.
type Outcome string

const (
	OutcomeReady     Outcome = "ready"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInFlight  Outcome = "in_flight"
)

const (
	// DefaultCustomerName is used when the event carries no name.
	DefaultCustomerName = "Customer"

	// ReasonAbandoned is recorded by ReapStale.
	ReasonAbandoned = "abandoned"

	maxFailureReasonRunes = 500
)

// FulfillmentService runs the order-paid pipeline.
type FulfillmentService struct {
	Store     OrderStore
	Generator Generator
	// Notifier may be nil, in which case ready orders are not announced.
	Notifier Notifier

	// DownloadLink builds the link sent to the customer.
	DownloadLink func(orderID, email string) string

	// DefaultCustomerName replaces a missing name. Empty means DefaultCustomerName.
	DefaultCustomerName string
	// RetryOnce lets the owning run call the Generator a second time after a
	// failure, before the order leaves generating.
	RetryOnce bool

	Now      func() time.Time
	validate *validator.Validate
}

// NewFulfillmentService wires a service with default settings.
func NewFulfillmentService(store OrderStore, gen Generator, n Notifier, link func(orderID, email string) string) *FulfillmentService {
	return &FulfillmentService{
		Store:               store,
		Generator:           gen,
		Notifier:            n,
		DownloadLink:        link,
		DefaultCustomerName: DefaultCustomerName,
		Now:                 time.Now,
		validate:            validator.New(),
	}
}

// DownloadLinkBuilder returns a link function pointing at the download
// endpoint under publicBaseURL + apiBasePath.
func DownloadLinkBuilder(publicBaseURL, apiBasePath string) func(orderID, email string) string {
	base := strings.TrimRight(publicBaseURL, "/") + "/" + strings.Trim(apiBasePath, "/")
	base = strings.TrimRight(base, "/") + "/download"
	return func(orderID, email string) string {
		q := url.Values{}
		q.Set("order_id", orderID)
		q.Set("email", email)
		return base + "?" + q.Encode()
	}
}

// HandleOrderPaid processes one order-paid delivery. A non-nil error means
// the event could not be processed (validation or store failure); generator
// and notifier failures are absorbed into the outcome.
func (s *FulfillmentService) HandleOrderPaid(ctx context.Context, ev OrderPaidEvent) (Outcome, error) {
	ctx, span := otel.Tracer("services/FulfillmentService").Start(ctx, "HandleOrderPaid",
		trace.WithAttributes(attribute.String("order.id", ev.OrderID)),
	)
	defer span.End()

	log := zerolog.Ctx(ctx).With().Str("order_id", ev.OrderID).Logger()

	seed, err := s.normalize(ev)
	if err != nil {
		observability.FulfillmentEvents.WithLabelValues("invalid").Inc()
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	order, created, err := s.Store.CreateIfAbsent(ctx, seed)
	if err != nil {
		return s.storeFailure(span, log, "create order", err)
	}
	if !created && order.State != domain.StatePending {
		log.Info().Str("state", string(order.State)).Msg("duplicate order-paid delivery")
		return s.done(span, OutcomeDuplicate), nil
	}

	order, err = s.Store.Transition(ctx, order.ID, domain.StatePending, domain.StateGenerating, domain.Patch{})
	if errors.Is(err, repo.ErrConflict) {
		log.Info().Msg("order claimed by a concurrent delivery")
		return s.done(span, OutcomeInFlight), nil
	}
	if err != nil {
		return s.storeFailure(span, log, "claim order", err)
	}

	// The claimed run must finish even if the webhook caller goes away.
	run := context.WithoutCancel(ctx)

	ref, attempts, genErr := s.generate(run, log, order)
	if genErr != nil {
		return s.fail(run, span, log, order, attempts, genErr)
	}

	ready, err := s.Store.Transition(run, order.ID, domain.StateGenerating, domain.StateReady,
		domain.Patch{ArtifactRef: ref, Attempts: attempts})
	if errors.Is(err, repo.ErrConflict) {
		return s.settled(run, span, log, order.ID)
	}
	if err != nil {
		return s.storeFailure(span, log, "record ready", err)
	}
	log.Info().Str("artifact_ref", ref).Int("attempts", attempts).Msg("order fulfilled")

	s.notify(run, log, ready)
	return s.done(span, OutcomeReady), nil
}

func (s *FulfillmentService) normalize(ev OrderPaidEvent) (domain.Order, error) {
	id := strings.TrimSpace(ev.OrderID)
	if !domain.ValidOrderID(id) {
		return domain.Order{}, &ValidationError{Field: "order_id", Reason: "missing or malformed"}
	}
	email := strings.TrimSpace(ev.CustomerEmail)
	if email == "" {
		return domain.Order{}, &ValidationError{Field: "email", Reason: "missing"}
	}
	v := s.validate
	if v == nil {
		v = validator.New()
	}
	if err := v.Var(email, "email,max=320"); err != nil {
		return domain.Order{}, &ValidationError{Field: "email", Reason: "not a valid address"}
	}
	name := norm.NFC.String(strings.Join(strings.Fields(ev.CustomerName), " "))
	name = sysutil.FirstNonEmpty(name, s.DefaultCustomerName, DefaultCustomerName)
	return domain.Order{ID: id, CustomerEmail: email, CustomerName: name}, nil
}

// generate calls the Generator once, or twice when RetryOnce is set and the
// first call failed.
func (s *FulfillmentService) generate(ctx context.Context, log zerolog.Logger, o *domain.Order) (string, int, error) {
	limit := 1
	if s.RetryOnce {
		limit = 2
	}
	var err error
	for attempt := 1; attempt <= limit; attempt++ {
		start := time.Now()
		var ref string
		ref, err = s.Generator.Generate(ctx, o.ID, o.CustomerName)
		if err == nil && strings.TrimSpace(ref) == "" {
			err = errors.New("generator returned an empty reference")
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		observability.ArtifactGeneration.WithLabelValues(result).Observe(time.Since(start).Seconds())
		if err == nil {
			return ref, attempt, nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("artifact generation failed")
	}
	return "", limit, err
}

func (s *FulfillmentService) fail(ctx context.Context, span trace.Span, log zerolog.Logger, o *domain.Order, attempts int, genErr error) (Outcome, error) {
	span.RecordError(genErr)
	reason := clipReason(genErr.Error())
	_, err := s.Store.Transition(ctx, o.ID, domain.StateGenerating, domain.StateFailed,
		domain.Patch{Attempts: attempts, FailureReason: reason})
	if errors.Is(err, repo.ErrConflict) {
		return s.settled(ctx, span, log, o.ID)
	}
	if err != nil {
		return s.storeFailure(span, log, "record failure", err)
	}
	log.Error().Err(errors.Join(ErrGenerator, genErr)).Int("attempts", attempts).Msg("order marked failed")
	return s.done(span, OutcomeFailed), nil
}

// settled reports the state another actor (the reaper) left the order in
// after this run lost the final compare-and-set.
func (s *FulfillmentService) settled(ctx context.Context, span trace.Span, log zerolog.Logger, id string) (Outcome, error) {
	cur, ok, err := s.Store.Get(ctx, id)
	if err != nil {
		return s.storeFailure(span, log, "reload order", err)
	}
	if ok && cur.State == domain.StateReady {
		return s.done(span, OutcomeReady), nil
	}
	log.Warn().Msg("order settled by another actor during generation")
	return s.done(span, OutcomeFailed), nil
}

func (s *FulfillmentService) notify(ctx context.Context, log zerolog.Logger, o *domain.Order) {
	if s.Notifier == nil {
		return
	}
	link := ""
	if s.DownloadLink != nil {
		link = s.DownloadLink(o.ID, o.CustomerEmail)
	}
	if err := s.Notifier.Notify(ctx, o.CustomerEmail, o.CustomerName, link); err != nil {
		observability.Notifications.WithLabelValues("error").Inc()
		log.Error().Err(errors.Join(ErrNotifier, err)).Msg("customer notification failed")
		return
	}
	observability.Notifications.WithLabelValues("sent").Inc()
}

func (s *FulfillmentService) done(span trace.Span, o Outcome) Outcome {
	span.SetAttributes(attribute.String("fulfillment.outcome", string(o)))
	observability.FulfillmentEvents.WithLabelValues(string(o)).Inc()
	return o
}

func (s *FulfillmentService) storeFailure(span trace.Span, log zerolog.Logger, op string, err error) (Outcome, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	observability.FulfillmentEvents.WithLabelValues("error").Inc()
	log.Error().Err(err).Str("op", op).Msg("order store failure")
	return "", err
}

// ReapStale moves generating orders whose last transition is older than
// olderThan to failed with reason "abandoned". It returns how many it moved.
func (s *FulfillmentService) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, span := otel.Tracer("services/FulfillmentService").Start(ctx, "ReapStale")
	defer span.End()

	stale, err := s.Store.ListStale(ctx, domain.StateGenerating, s.Now().Add(-olderThan))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	n := 0
	for _, o := range stale {
		_, err := s.Store.Transition(ctx, o.ID, domain.StateGenerating, domain.StateFailed,
			domain.Patch{Attempts: o.Attempts, FailureReason: ReasonAbandoned})
		switch {
		case err == nil:
			n++
			observability.ReapedOrders.Inc()
			zerolog.Ctx(ctx).Warn().Str("order_id", o.ID).Time("since", o.TransitionedAt).Msg("stale generating order marked failed")
		case errors.Is(err, repo.ErrConflict), errors.Is(err, repo.ErrNotFound):
			// finished in the meantime
		default:
			span.RecordError(err)
			return n, err
		}
	}
	span.SetAttributes(attribute.Int("reaped", n))
	return n, nil
}

// RunReaper calls ReapStale immediately and then every interval until ctx
// is done.
func (s *FulfillmentService) RunReaper(ctx context.Context, interval, olderThan time.Duration) {
	log := zerolog.Ctx(ctx)
	reap := func() {
		if _, err := s.ReapStale(ctx, olderThan); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("stale order reaper failed")
		}
	}
	reap()
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			reap()
		}
	}
}

func clipReason(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxFailureReasonRunes {
		return string([]rune(s)[:maxFailureReasonRunes])
	}
	return s
}
