package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

// Reconciler is the engine surface the module drives.
type Reconciler interface {
	Upgrade(ctx context.Context, params reconcile.UpgradeParams) (*reconcile.Checkout, error)
	List(ctx context.Context, params reconcile.ListParams) ([]*subscription.Subscription, error)
	Cancel(ctx context.Context, params reconcile.CancelParams) (*reconcile.Portal, error)
	Restore(ctx context.Context, params reconcile.RestoreParams) (*subscription.Subscription, error)
	ApplyEvent(ctx context.Context, event *webhook.Event) error
}

var _ Reconciler = (*reconcile.Engine)(nil)

// ActorResolver identifies the caller of an actor-facing endpoint. Session
// or token extraction stays with the host application.
type ActorResolver func(r *http.Request) (reconcile.Actor, error)

// Service is the mountable HTTP surface of the billing module.
type Service struct {
	cfg         Config
	engine      Reconciler
	verifier    *webhook.Verifier
	resolver    ActorResolver
	coordinator *reconcile.Coordinator
	log         *slog.Logger
}

// New assembles the billing service. Panics if a required dependency is
// missing to fail fast during initialization.
func New(cfg Config, engine Reconciler, verifier *webhook.Verifier, resolver ActorResolver, opts ...Option) *Service {
	if engine == nil {
		panic("billing: Reconciler is required")
	}
	if verifier == nil {
		panic("billing: webhook Verifier is required")
	}
	if resolver == nil {
		panic("billing: ActorResolver is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	s := &Service{
		cfg:      cfg,
		engine:   engine,
		verifier: verifier,
		resolver: resolver,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle returns the module router. The host mounts it under its own
// routing layer:
//
//	r.Mount("/billing", svc.Handle())
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Route("/subscription", func(sub chi.Router) {
		sub.Post("/upgrade", s.upgrade)
		sub.Get("/list", s.list)
		sub.Post("/cancel", s.cancel)
		sub.Post("/restore", s.restore)
		if s.coordinator != nil {
			sub.Get("/confirm", s.confirm)
		}
	})
	r.Post("/webhook", s.webhook)

	return r
}

type upgradeRequest struct {
	Plan           string            `json:"plan"`
	Annual         bool              `json:"annual"`
	Seats          int64             `json:"seats"`
	ReferenceID    string            `json:"reference_id"`
	SubscriptionID string            `json:"subscription_id"`
	SuccessURL     string            `json:"success_url"`
	ErrorURL       string            `json:"error_url"`
	CancelURL      string            `json:"cancel_url"`
	Metadata       map[string]string `json:"metadata"`
}

func (s *Service) upgrade(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolveActor(w, r)
	if !ok {
		return
	}
	var req upgradeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	subID, ok := s.parseSubscriptionID(w, req.SubscriptionID)
	if !ok {
		return
	}

	checkout, err := s.engine.Upgrade(r.Context(), reconcile.UpgradeParams{
		Actor:          actor,
		ReferenceID:    referenceFor(actor, req.ReferenceID),
		Plan:           req.Plan,
		Annual:         req.Annual,
		Seats:          req.Seats,
		SubscriptionID: subID,
		SuccessURL:     fallback(req.SuccessURL, s.cfg.SuccessURL),
		ErrorURL:       fallback(req.ErrorURL, s.cfg.ErrorURL),
		CancelURL:      req.CancelURL,
		Metadata:       req.Metadata,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, upgradeResponse{
		URL:            checkout.URL,
		SessionID:      checkout.SessionID,
		SubscriptionID: checkout.SubscriptionID.String(),
	})
}

func (s *Service) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolveActor(w, r)
	if !ok {
		return
	}

	records, err := s.engine.List(r.Context(), reconcile.ListParams{
		Actor:       actor,
		ReferenceID: referenceFor(actor, r.URL.Query().Get("reference_id")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]subscriptionView, 0, len(records))
	for _, record := range records {
		views = append(views, newSubscriptionView(record))
	}
	writeJSON(w, http.StatusOK, listResponse{Subscriptions: views})
}

type cancelRequest struct {
	ReferenceID    string `json:"reference_id"`
	SubscriptionID string `json:"subscription_id"`
	ReturnURL      string `json:"return_url"`
}

func (s *Service) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolveActor(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	subID, ok := s.parseSubscriptionID(w, req.SubscriptionID)
	if !ok {
		return
	}

	portal, err := s.engine.Cancel(r.Context(), reconcile.CancelParams{
		Actor:          actor,
		ReferenceID:    referenceFor(actor, req.ReferenceID),
		SubscriptionID: subID,
		ReturnURL:      req.ReturnURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, portalResponse{URL: portal.URL})
}

type restoreRequest struct {
	ReferenceID    string `json:"reference_id"`
	SubscriptionID string `json:"subscription_id"`
}

func (s *Service) restore(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolveActor(w, r)
	if !ok {
		return
	}
	var req restoreRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	subID, ok := s.parseSubscriptionID(w, req.SubscriptionID)
	if !ok {
		return
	}

	restored, err := s.engine.Restore(r.Context(), reconcile.RestoreParams{
		Actor:          actor,
		ReferenceID:    referenceFor(actor, req.ReferenceID),
		SubscriptionID: subID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, restoreResponse{Subscription: newSubscriptionView(restored)})
}

func (s *Service) webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Code: "body_too_large", Error: "request body exceeds the size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Error: "failed to read request body"})
		return
	}

	event, err := s.verifier.Verify(payload, r.Header.Get(s.cfg.SignatureHeader))
	if err != nil {
		s.log.WarnContext(r.Context(), "rejected webhook delivery",
			logger.Error(err),
		)
		// 400 tells the provider not to retry: a bad signature stays bad.
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_signature", Error: "webhook signature verification failed"})
		return
	}

	if err := s.engine.ApplyEvent(r.Context(), event); err != nil {
		if errors.Is(err, webhook.ErrMalformedEvent) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "malformed_event", Error: "event payload could not be decoded"})
			return
		}
		s.log.ErrorContext(r.Context(), "failed to apply webhook event",
			logger.EventID(event.ID),
			logger.EventType(string(event.Type)),
			logger.Error(err),
		)
		// Non-2xx makes the provider redeliver; the event stays unmarked.
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "apply_failed", Error: "event could not be applied"})
		return
	}

	writeJSON(w, http.StatusOK, receivedResponse{Received: true})
}

func (s *Service) confirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	referenceID := q.Get(reconcile.ParamReference)
	subRaw := q.Get(reconcile.ParamSubscription)
	successURL := q.Get(reconcile.ParamSuccessURL)
	errorURL := q.Get(reconcile.ParamErrorURL)
	signature := q.Get(reconcile.ParamSignature)

	if !s.coordinator.VerifyParams(referenceID, subRaw, successURL, errorURL, signature) {
		s.log.WarnContext(r.Context(), "rejected confirm link",
			logger.ReferenceID(referenceID),
		)
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_signature", Error: "confirm link signature is invalid"})
		return
	}

	subID := uuid.Nil
	if subRaw != "" {
		parsed, err := uuid.Parse(subRaw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Error: "invalid subscription id"})
			return
		}
		subID = parsed
	}

	outcome := s.coordinator.AwaitCompletion(r.Context(), referenceID, subID)

	// Timeouts forward to the success URL anyway: the webhook converges
	// the state and the buyer should not see an error for a slow queue.
	dest := successURL
	if outcome == reconcile.OutcomeFailed && errorURL != "" {
		dest = errorURL
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (s *Service) resolveActor(w http.ResponseWriter, r *http.Request) (reconcile.Actor, bool) {
	actor, err := s.resolver(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Error: "authentication required"})
		return reconcile.Actor{}, false
	}
	return actor, true
}

func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Code: "body_too_large", Error: "request body exceeds the size limit"})
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Error: "invalid request body"})
	return false
}

func (s *Service) parseSubscriptionID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: "validation_failed", Error: "invalid subscription id"})
		return uuid.Nil, false
	}
	return id, true
}

func referenceFor(actor reconcile.Actor, requested string) string {
	if requested != "" {
		return requested
	}
	return actor.ID
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}
