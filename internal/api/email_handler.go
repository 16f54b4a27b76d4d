package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/email-queue/internal/auth"
	"github.com/sungwon/email-queue/internal/delivery"
	"github.com/sungwon/email-queue/internal/email"
	"github.com/sungwon/email-queue/internal/logger"
	"github.com/sungwon/email-queue/internal/metrics"
)

// emailQueuer is the producer side used by the email handlers.
type emailQueuer interface {
	QueueEmail(ctx context.Context, req delivery.QueueEmailRequest) (email.ID, error)
	RetryEmail(ctx context.Context, id email.ID, opts delivery.EnqueueOptions) error
}

// quotaLimiter counts sends against a client's quota.
type quotaLimiter interface {
	Allow(ctx context.Context, clientID string) (remaining int, err error)
}

// sendEmailRequest is the JSON body for POST /api/v1/emails.
type sendEmailRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	TextContent string `json:"textContent"`
	HTMLContent string `json:"htmlContent,omitempty"`
	// Priority of the send job, lower first; defaults to 1.
	Priority int `json:"priority,omitempty"`
	// Delay in milliseconds before the job runs.
	Delay int64 `json:"delay,omitempty"`
}

// validate checks the addresses and content the queue service would reject.
// An empty From is filled with the service default later.
func (r sendEmailRequest) validate() error {
	if r.From != "" {
		if _, err := email.NewAddress(r.From); err != nil {
			return err
		}
	}
	if _, err := email.NewAddress(r.To); err != nil {
		return err
	}
	_, err := email.NewContent(r.Subject, r.TextContent, r.HTMLContent)
	return err
}

// enqueueOptionsRequest is the optional JSON body for a retry.
type enqueueOptionsRequest struct {
	Priority int   `json:"priority,omitempty"`
	Delay    int64 `json:"delay,omitempty"`
}

func (r enqueueOptionsRequest) validate() error {
	if r.Priority < 0 {
		return errors.New("priority must not be negative")
	}
	if r.Delay < 0 {
		return errors.New("delay must not be negative")
	}
	return nil
}

// emailAcceptedResponse is returned when an email is queued or requeued.
type emailAcceptedResponse struct {
	Success bool   `json:"success"`
	EmailID string `json:"emailId"`
	Message string `json:"message"`
}

type emailListResponse struct {
	Emails []email.Record `json:"emails"`
	Count  int            `json:"count"`
}

// EmailHandler serves the /api/v1/emails resource.
type EmailHandler struct {
	queue   emailQueuer
	repo    email.Repository
	limiter quotaLimiter
}

// NewEmailHandler creates an EmailHandler. limiter may be nil.
func NewEmailHandler(queue emailQueuer, repo email.Repository, limiter quotaLimiter) *EmailHandler {
	return &EmailHandler{queue: queue, repo: repo, limiter: limiter}
}

// Create handles POST /api/v1/emails.
func (h *EmailHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req sendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	opts := enqueueOptionsRequest{Priority: req.Priority, Delay: req.Delay}
	if err := opts.validate(); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	// Rejected requests must not count against the quota.
	if err := req.validate(); err != nil {
		respondDomainError(w, log, err)
		return
	}

	if h.limiter != nil {
		principal, _ := auth.PrincipalFromContext(r.Context())
		remaining, err := h.limiter.Allow(r.Context(), principal.ClientID)
		switch {
		case errors.Is(err, auth.ErrQuotaExceeded):
			metrics.APIRateLimitedTotal.Inc()
			respondDomainError(w, log, err)
			return
		case err != nil:
			// Quota store unavailable; the request is let through.
			log.Warn().Err(err).Str("client_id", principal.ClientID).Msg("rate limit check failed")
		case remaining >= 0:
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
	}

	id, err := h.queue.QueueEmail(r.Context(), delivery.QueueEmailRequest{
		From:        req.From,
		To:          req.To,
		Subject:     req.Subject,
		TextContent: req.TextContent,
		HTMLContent: req.HTMLContent,
		Priority:    req.Priority,
		Delay:       time.Duration(req.Delay) * time.Millisecond,
	})
	if err != nil {
		respondDomainError(w, log, err)
		return
	}

	respondJSON(w, http.StatusCreated, emailAcceptedResponse{
		Success: true,
		EmailID: id.String(),
		Message: "Email queued successfully",
	})
}

// Get handles GET /api/v1/emails/{id}.
func (h *EmailHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := email.ID(chi.URLParam(r, "id"))
	e, ok, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		respondDomainError(w, logger.FromContext(r.Context()), err)
		return
	}
	if !ok {
		respondDomainError(w, logger.FromContext(r.Context()), &email.NotFoundError{ID: id})
		return
	}
	respondJSON(w, http.StatusOK, e.Snapshot())
}

// List handles GET /api/v1/emails?status=pending|failed or ?recipient=addr.
func (h *EmailHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	q := r.URL.Query()

	var (
		emails []*email.Email
		err    error
	)
	switch recipient, status := q.Get("recipient"), q.Get("status"); {
	case recipient != "":
		to, addrErr := email.NewAddress(recipient)
		if addrErr != nil {
			respondDomainError(w, log, addrErr)
			return
		}
		emails, err = h.repo.FindByRecipient(r.Context(), to)
	case status == string(email.StatusPending):
		emails, err = h.repo.FindPending(r.Context())
	case status == string(email.StatusFailed):
		emails, err = h.repo.FindFailed(r.Context())
	default:
		respondError(w, http.StatusBadRequest, codeBadRequest, "recipient or status (pending, failed) is required")
		return
	}
	if err != nil {
		respondDomainError(w, log, err)
		return
	}

	records := make([]email.Record, len(emails))
	for i, e := range emails {
		records[i] = e.Snapshot()
	}
	respondJSON(w, http.StatusOK, emailListResponse{Emails: records, Count: len(records)})
}

// Retry handles POST /api/v1/emails/{id}/retry. The body is optional.
func (h *EmailHandler) Retry(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	id := email.ID(chi.URLParam(r, "id"))

	var req enqueueOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	err := h.queue.RetryEmail(r.Context(), id, delivery.EnqueueOptions{
		Priority: req.Priority,
		Delay:    time.Duration(req.Delay) * time.Millisecond,
	})
	if err != nil {
		respondDomainError(w, log, err)
		return
	}

	log.Info().Str("email_id", id.String()).Msg("email requeued")
	respondJSON(w, http.StatusAccepted, emailAcceptedResponse{
		Success: true,
		EmailID: id.String(),
		Message: "Email requeued successfully",
	})
}

// Delete handles DELETE /api/v1/emails/{id}. Deleting a missing email
// succeeds.
func (h *EmailHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := email.ID(chi.URLParam(r, "id"))
	if err := h.repo.Delete(r.Context(), id); err != nil {
		respondDomainError(w, logger.FromContext(r.Context()), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
