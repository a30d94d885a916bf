// Package httpapi exposes the service over HTTP: the generation gateway,
// user sync and stats, checkout creation, cancellation and the Stripe
// webhook.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"workflowgate/internal/config"
	"workflowgate/internal/payments"
	"workflowgate/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

type Server struct {
	svc *services.Service
	cfg config.Config
}

func NewServer(svc *services.Service, cfg config.Config) *Server {
	return &Server{svc: svc, cfg: cfg}
}

func loggingRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				reqID := middleware.GetReqID(r.Context())
				log.Printf("[ERROR] [%s] Panic recovered in %s %s: %v\n%s",
					reqID, r.Method, r.URL.Path, rvr, debug.Stack())

				if r.Header.Get("Connection") != "Upgrade" {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					errMsg := fmt.Sprintf("internal server error: %v", rvr)
					_ = json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg})
				}
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			reqID := middleware.GetReqID(r.Context())
			log.Printf("[%s] %s %s %d %s",
				reqID, r.Method, r.URL.Path, ww.Status(), time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingRecoverer)
	r.Use(requestLogger)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)

		r.Post("/users/sync", s.handleSyncUser)
		r.Get("/users/{id}/stats", s.handleUserStats)

		r.Post("/checkout/session", s.handleFixedCheckout)
		r.Post("/checkout/custom", s.handleCustomCheckout)
		r.Post("/checkout/bonus", s.handleBonusCheckout)

		r.Post("/subscription/cancel", s.handleCancelSubscription)

		r.Post("/webhooks/stripe", s.handleStripeWebhook)
	})

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	SessionID string `json:"session_id"`
	UserInput string `json:"user_input"`
	UserID    string `json:"user_id"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	body, err := s.svc.Generate(r.Context(), req.SessionID, req.UserInput, req.UserID)
	if err != nil {
		s.respondServiceError(w, r, err, "generate")
		return
	}
	// The backend response goes back verbatim, success or refusal alike.
	respondRaw(w, http.StatusOK, body)
}

type syncUserRequest struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	ImageURL  *string `json:"image_url"`
}

func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	var req syncUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	user, err := s.svc.SyncUser(r.Context(), req.ID, req.Email, req.FirstName, req.LastName, req.ImageURL)
	if err != nil {
		s.respondServiceError(w, r, err, "sync_user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, errors.New("user id is required"))
		return
	}

	stats, err := s.svc.UserStats(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err, "user_stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleFixedCheckout(w http.ResponseWriter, r *http.Request) {
	var req payments.FixedPlanCheckout
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	sessionID, err := s.svc.CreateFixedCheckout(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err, "fixed_checkout")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

func (s *Server) handleCustomCheckout(w http.ResponseWriter, r *http.Request) {
	var req payments.CustomPlanCheckout
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	sessionID, err := s.svc.CreateCustomCheckout(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err, "custom_checkout")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

func (s *Server) handleBonusCheckout(w http.ResponseWriter, r *http.Request) {
	var req payments.BonusCheckout
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	sessionID, err := s.svc.CreateBonusCheckout(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err, "bonus_checkout")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

type cancelSubscriptionRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req cancelSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	n, err := s.svc.CancelSubscription(r.Context(), req.UserID)
	if err != nil {
		s.respondServiceError(w, r, err, "cancel_subscription")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"canceledSubscriptions": n,
	})
}

// handleStripeWebhook verifies and dispatches provider events. Once the
// envelope parses, the response is 200 even when processing fails:
// the failure is on our side and a retry of the same payload would not fix
// it, so the provider should not keep redelivering.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var event stripe.Event
	if s.cfg.StripeWebhookSecret != "" {
		sigHeader := r.Header.Get("Stripe-Signature")
		event, err = webhook.ConstructEvent(payload, sigHeader, s.cfg.StripeWebhookSecret)
		if err != nil {
			respondErrorWithLog(w, r, http.StatusBadRequest, err, "webhook_signature")
			return
		}
	} else {
		// No secret means local development against the Stripe CLI.
		log.Printf("[INFO] [%s] webhook secret not set, skipping signature verification", reqID)
		if err := json.Unmarshal(payload, &event); err != nil {
			respondErrorWithLog(w, r, http.StatusBadRequest, err, "webhook_decode")
			return
		}
	}

	log.Printf("[INFO] [%s] stripe event: %s", reqID, event.Type)

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			respondErrorWithLog(w, r, http.StatusBadRequest, err, "webhook_session_decode")
			return
		}
		if err := s.svc.HandleCheckoutCompleted(r.Context(), &sess); err != nil {
			if errors.Is(err, services.ErrInvalidRequest) {
				respondErrorWithLog(w, r, http.StatusBadRequest, err, "webhook_checkout")
				return
			}
			log.Printf("[ERROR] [%s] checkout.session.completed processing failed: %v", reqID, err)
		}
	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			respondErrorWithLog(w, r, http.StatusBadRequest, err, "webhook_subscription_decode")
			return
		}
		if err := s.svc.HandleSubscriptionChange(r.Context(), &sub); err != nil {
			if errors.Is(err, services.ErrInvalidRequest) {
				respondErrorWithLog(w, r, http.StatusBadRequest, err, "webhook_subscription")
				return
			}
			log.Printf("[ERROR] [%s] %s processing failed: %v", reqID, event.Type, err)
		}
	default:
		log.Printf("[INFO] [%s] unhandled stripe event type: %s", reqID, event.Type)
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error, context string) {
	var qerr *services.QuotaExceededError
	var rerr *services.RateLimitError

	switch {
	case errors.As(err, &qerr):
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": qerr.Error(),
			"usage": qerr.Usage,
		})
	case errors.As(err, &rerr):
		w.Header().Set("Retry-After", strconv.Itoa(rerr.RetryAfter))
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       rerr.Error(),
			"retry_after": rerr.RetryAfter,
		})
	case errors.Is(err, services.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, services.ErrNoActiveSubscription):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, services.ErrStripeNotConfigured):
		respondError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, services.ErrGeneratorNotConfigured):
		respondErrorWithLog(w, r, http.StatusInternalServerError, err, context)
	case errors.Is(err, services.ErrUpstreamUnavailable):
		respondErrorWithLog(w, r, http.StatusInternalServerError, err, context)
	default:
		respondErrorWithLog(w, r, http.StatusInternalServerError, err, context)
	}
}
