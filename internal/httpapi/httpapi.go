package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/logger"
	"nurbuild/backend/internal/metrics"
	"nurbuild/backend/internal/service"
	"nurbuild/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigin      string
	LoginRatePerMinute int
	Metrics            *metrics.Metrics
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	metrics       *metrics.Metrics
	allowedOrigin string
	loginRate     int
	csrfSecret    []byte
	log           zerolog.Logger
	router        http.Handler
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if opts.LoginRatePerMinute < 1 {
		opts.LoginRatePerMinute = 5
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	a := &API{
		service:       svc,
		auth:          auth,
		metrics:       opts.Metrics,
		allowedOrigin: opts.AllowedOrigin,
		loginRate:     opts.LoginRatePerMinute,
		csrfSecret:    csrfSecret,
		log:           logger.WithComponent("http"),
	}
	a.router = a.routes()
	return a
}

// Handler returns the router. Rate limiter state lives in it, so it is
// built once per API.
func (a *API) Handler() http.Handler {
	return a.router
}

// csrfTokenForHour is the hex HMAC-SHA256 of an hour bucket (Unix seconds).
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

func (a *API) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(300, time.Minute))
	r.Use(limitBody)
	r.Use(a.checkCSRF)

	r.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(httprate.Limit(
			a.loginRate,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
			}),
		)).Post("/auth/login", a.handleLogin)
		r.Get("/auth/csrf-token", a.handleCSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleAdmin))
				r.Get("/users", a.handleListUsers)
				r.Post("/users", a.handleCreateUser)
				r.Get("/audit-logs", a.handleAuditLogs)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleAdmin, domain.RoleManager, domain.RoleWarehouseStaff))
				r.Get("/customers", a.handleListCustomers)
				r.Get("/customers/{id}", a.handleGetCustomer)
				r.Get("/materials", a.handleListMaterials)
				r.Get("/materials/{id}", a.handleGetMaterial)
				r.Get("/sales", a.handleListSales)
				r.Get("/sales/{id}", a.handleGetSale)

				r.Get("/debts", a.handleListDebts)
				r.Get("/debts/overdue", a.handleOverdueDebts)
				r.Get("/debts/summary", a.handleDebtSummary)
				r.Get("/debts/customer_summary", a.handleCustomerSummary)
				r.Get("/debts/materials_analysis", a.handleMaterialsAnalysis)
				r.Get("/debts/export_customer", a.handleExportCustomer)
				r.Get("/debts/{id}", a.handleGetDebt)
				r.Get("/debts/{id}/materials", a.handleDebtMaterials)

				r.Get("/debts/payments", a.handleListPayments)
				r.Get("/debts/payments/by_customer", a.handlePaymentsByCustomer)
				r.Get("/debts/payments/daily_summary", a.handleDailyPaymentSummary)
				r.Get("/debts/payments/{id}", a.handleGetPayment)

				r.Get("/debts/reminders", a.handleListReminders)
				r.Get("/debts/reminders/pending", a.handlePendingReminders)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleAdmin, domain.RoleManager))
				r.Post("/customers", a.handleCreateCustomer)
				r.Put("/customers/{id}", a.handleUpdateCustomer)
				r.Post("/materials", a.handleCreateMaterial)
				r.Post("/sales", a.handleCreateSale)
				r.Put("/sales/{id}", a.handleUpdateSale)

				r.Post("/debts", a.handleCreateDebt)
				r.Post("/debts/create-credit-sale", a.handleCreateCreditSale)
				r.Post("/debts/validate-credit", a.handleValidateCredit)
				r.Put("/debts/{id}", a.handleUpdateDebt)
				r.Delete("/debts/{id}", a.handleDeleteDebt)
				r.Post("/debts/{id}/mark_paid", a.handleMarkPaid)

				r.Post("/debts/payments", a.handleCreatePayment)
				r.Patch("/debts/payments/{id}", a.handleUpdatePaymentStatus)
				r.Delete("/debts/payments/{id}", a.handleDeletePayment)

				r.Post("/debts/reminders", a.handleCreateReminder)
				r.Post("/debts/reminders/{id}/mark_sent", a.handleMarkReminderSent)
				r.Post("/debts/reminders/{id}/cancel", a.handleCancelReminder)
			})
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(startedAt)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		a.metrics.ObserveRequest(route, r.Method, status, elapsed)

		level := zerolog.InfoLevel
		if status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		reqLog := logger.WithRequestID(middleware.GetReqID(r.Context()))
		reqLog.WithLevel(level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isMutating(r.Method) && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF requires X-CSRF-Token on every mutating request outside
// csrfExemptPaths.
func (a *API) checkCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		path := strings.TrimSuffix(r.URL.Path, "/")
		for _, exempt := range csrfExemptPaths {
			if path == exempt {
				next.ServeHTTP(w, r)
				return
			}
		}
		if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
			writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// decodeRequest decodes a JSON body and writes the 4xx itself on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, dest any) bool {
	err := decodeJSON(r, dest)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
		return false
	}
	writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
	return false
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeError(w, status, err)
}

// writeError hides the cause of 5xx responses; 4xx messages are user-facing.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
