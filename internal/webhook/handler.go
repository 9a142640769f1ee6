package webhook

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/pushdeploy/internal/deploy"
	"github.com/mattjoyce/pushdeploy/internal/events"
)

// handleWebhook runs one push notification through
// receive → authenticate → parse → validate → decide → deploy.
// Each step may end the request.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request, route string) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)
	logger := s.logger.With("route", route, "request_id", requestID)

	// Receive
	limitedReader := io.LimitReader(r.Body, s.config.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		logger.Error("failed to read request body", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		logger.Warn("webhook payload too large", "limit", s.config.MaxBodySize)
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	// Authenticate
	signature := r.Header.Get(SignatureHeader)
	if !Verify(s.config.Secret, body, signature) {
		reason := "invalid signature"
		if signature == "" {
			reason = "missing signature"
		}
		logger.Warn("webhook signature verification failed", "reason", reason)
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Parse. Malformed JSON is acknowledged with 200 so the sender does not
	// keep redelivering a payload that can never succeed.
	ev, err := ParsePushEvent(body)
	if err != nil {
		logger.Error("error processing webhook", "error", err)
		s.respondJSON(w, http.StatusOK, Response{
			Status:  StatusError,
			Message: "error processing webhook: payload is not valid JSON",
		})
		return
	}

	// Validate
	if msg := ev.Validate(); msg != "" {
		logger.Warn("webhook payload rejected", "reason", msg)
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	// Decide
	decision := Decide(ev, s.config)
	logger = logger.With("repository", decision.Repository, "branch", decision.Branch)

	if !decision.Deploy {
		reason := "different branch, ignoring"
		if decision.Required == "" {
			reason = "repository not configured, ignoring"
		}
		logger.Info("push ignored", "required_branch", decision.Required, "reason", reason)
		if s.events != nil {
			s.events.Publish(events.TypeWebhookIgnored, Ignored{
				Route:      route,
				Repository: decision.Repository,
				Branch:     decision.Branch,
				Required:   decision.Required,
				Reason:     reason,
				RequestID:  requestID,
			})
		}
		s.respondJSON(w, http.StatusOK, Response{Status: StatusIgnored, Message: reason})
		return
	}

	// Deploy. The response reports receipt, not the deploy's outcome.
	deployID, err := s.deployer.Deploy(ctx, decision.Repository, deploy.Trigger{
		Repository: decision.Repository,
		Branch:     decision.Branch,
		RequestID:  requestID,
	})
	if err != nil {
		logger.Error("failed to start deploy", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to start deploy")
		return
	}

	s.respondJSON(w, http.StatusOK, Response{
		Status:   StatusReceived,
		Message:  "webhook received",
		DeployID: deployID,
	})
}
