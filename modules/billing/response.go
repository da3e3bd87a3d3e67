package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/provider"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

type upgradeResponse struct {
	URL            string `json:"url"`
	SessionID      string `json:"session_id"`
	SubscriptionID string `json:"subscription_id"`
}

type listResponse struct {
	Subscriptions []subscriptionView `json:"subscriptions"`
}

type portalResponse struct {
	URL string `json:"url"`
}

type restoreResponse struct {
	Subscription subscriptionView `json:"subscription"`
}

type receivedResponse struct {
	Received bool `json:"received"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// subscriptionView is the wire shape of a subscription record.
type subscriptionView struct {
	ID                     string            `json:"id"`
	ReferenceID            string            `json:"reference_id"`
	Plan                   string            `json:"plan"`
	Status                 string            `json:"status"`
	PriceID                string            `json:"price_id,omitempty"`
	Seats                  int64             `json:"seats,omitempty"`
	ProviderSubscriptionID string            `json:"provider_subscription_id,omitempty"`
	CancelAtPeriodEnd      bool              `json:"cancel_at_period_end"`
	PeriodStart            *time.Time        `json:"period_start,omitempty"`
	PeriodEnd              *time.Time        `json:"period_end,omitempty"`
	TrialStart             *time.Time        `json:"trial_start,omitempty"`
	TrialEnd               *time.Time        `json:"trial_end,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

func newSubscriptionView(record *subscription.Subscription) subscriptionView {
	return subscriptionView{
		ID:                     record.ID.String(),
		ReferenceID:            record.ReferenceID,
		Plan:                   record.Plan,
		Status:                 string(record.Status),
		PriceID:                record.PriceID,
		Seats:                  record.Seats,
		ProviderSubscriptionID: record.ProviderSubscriptionID,
		CancelAtPeriodEnd:      record.CancelAtPeriodEnd,
		PeriodStart:            record.PeriodStart,
		PeriodEnd:              record.PeriodEnd,
		TrialStart:             record.TrialStart,
		TrialEnd:               record.TrialEnd,
		Metadata:               record.Metadata,
		CreatedAt:              record.CreatedAt,
		UpdatedAt:              record.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP statuses and stable error codes.
func statusFor(err error) (int, string) {
	var pErr *provider.Error
	switch {
	case errors.Is(err, reconcile.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, webhook.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, webhook.ErrMalformedEvent):
		return http.StatusBadRequest, "malformed_event"
	case errors.Is(err, reconcile.ErrValidation),
		errors.Is(err, subscription.ErrPlanNotFound):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, reconcile.ErrSwitchRequiresTarget),
		errors.Is(err, reconcile.ErrNotRestorable),
		errors.Is(err, subscription.ErrDuplicateLive),
		errors.Is(err, subscription.ErrVersionMismatch):
		return http.StatusConflict, "conflict"
	case errors.Is(err, subscription.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &pErr):
		return http.StatusBadGateway, "provider_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "billing request failed",
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Error: message})
}
