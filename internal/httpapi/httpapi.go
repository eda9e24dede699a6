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
	"net/netip"
	"strings"
	"sync"
	"time"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/logger"
	"bjbyte/backend/internal/service"
	"bjbyte/backend/internal/xid"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 8 << 20
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
	now           func() time.Time
}

var randRead = rand.Read

// New fails when no CSRF key can be generated; there is no fixed fallback key.
func New(svc *service.Service, auth *AuthManager, allowedOrigin string) (*API, error) {
	csrfSecret := make([]byte, 32)
	if _, err := randRead(csrfSecret); err != nil {
		return nil, fmt.Errorf("generate csrf secret: %w", err)
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		now:           time.Now,
	}, nil
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (Unix time truncated to the hour), hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(a.now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := a.now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	anyRole := []string{domain.RoleSeller, domain.RoleAdmin}
	admin := []string{domain.RoleAdmin}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, anyRole...))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, admin...))
	mux.HandleFunc("POST /api/v1/products/import", a.requireAuth(a.handleImportProducts, admin...))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct, anyRole...))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct, admin...))
	mux.HandleFunc("POST /api/v1/products/{id}/active", a.requireAuth(a.handleSetProductActive, admin...))
	mux.HandleFunc("PUT /api/v1/products/{id}/suppliers", a.requireAuth(a.handleSetProductSuppliers, admin...))

	mux.HandleFunc("GET /api/v1/suppliers", a.requireAuth(a.handleListSuppliers, anyRole...))
	mux.HandleFunc("POST /api/v1/suppliers", a.requireAuth(a.handleCreateSupplier, admin...))
	mux.HandleFunc("GET /api/v1/clients", a.requireAuth(a.handleListClients, anyRole...))
	mux.HandleFunc("POST /api/v1/clients", a.requireAuth(a.handleCreateClient, anyRole...))
	mux.HandleFunc("GET /api/v1/clients/{id}", a.requireAuth(a.handleGetClient, anyRole...))

	mux.HandleFunc("GET /api/v1/employees", a.requireAuth(a.handleListEmployees, admin...))
	mux.HandleFunc("POST /api/v1/employees", a.requireAuth(a.handleCreateEmployee, admin...))
	mux.HandleFunc("GET /api/v1/employees/totals", a.requireAuth(a.handleEmployeeTotals, admin...))

	mux.HandleFunc("GET /api/v1/stock", a.requireAuth(a.handleListStock, anyRole...))
	mux.HandleFunc("POST /api/v1/stock", a.requireAuth(a.handleAddStock, admin...))

	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleRegisterSale, anyRole...))
	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales, anyRole...))
	mux.HandleFunc("GET /api/v1/sales/dates", a.requireAuth(a.handleSaleDates, anyRole...))
	mux.HandleFunc("GET /api/v1/sales/export", a.requireAuth(a.handleExportSales, admin...))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale, anyRole...))
	mux.HandleFunc("POST /api/v1/sales/{id}/reverse", a.requireAuth(a.handleReverseSale, admin...))
	mux.HandleFunc("GET /api/v1/sales/{id}/invoice", a.requireAuth(a.handleSaleInvoice, anyRole...))
	mux.HandleFunc("POST /api/v1/sales/{id}/email", a.requireAuth(a.handleEmailInvoice, anyRole...))

	mux.HandleFunc("GET /api/v1/reports/sales", a.requireAuth(a.handleSalesReport, admin...))
	mux.HandleFunc("GET /api/v1/reports/sales/pdf", a.requireAuth(a.handleSalesReportPDF, admin...))

	mux.HandleFunc("POST /api/v1/email", a.requireAuth(a.handleSendEmail, admin...))

	mux.HandleFunc("GET /api/v1/exchange/rates", a.requireAuth(a.handleExchangeRates, anyRole...))
	mux.HandleFunc("GET /api/v1/exchange/convert", a.requireAuth(a.handleConvert, anyRole...))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, r, apperror.NewUnauthorized("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, r, apperror.NewUnauthorized(err.Error()))
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, r, apperror.NewForbidden("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
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

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": a.now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": errorBody{Code: "TOO_MANY_REQUESTS", Message: "too many login attempts"},
		})
		return
	}

	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header of mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces the CSRF token on state-changing methods.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, r, apperror.NewForbidden("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = xid.New("req")
		}
		ctx := logger.WithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Body != nil {
			limit := int64(maxJSONBody)
			if strings.HasPrefix(r.URL.Path, "/api/v1/products/import") {
				limit = maxUploadBody
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		if !a.checkCSRF(w, r) {
			return
		}

		rec := &statusRecorder{ResponseWriter: w}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		logger.Info(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	})
}

// decodeJSON writes a 400 and returns false when the body is not a single valid JSON object.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperror.NewInvalidInput("request body too large"))
			return false
		}
		writeError(w, r, apperror.NewInvalidInput("invalid JSON body").WithDetail("reason", err.Error()))
		return false
	}
	return true
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps err through apperror. 5xx responses carry a generic message only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		appErr = apperror.NewInternal(err)
	}
	status := apperror.GetHTTPStatus(appErr)

	body := errorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	if status >= http.StatusInternalServerError {
		logger.Error(r.Context(), "request failed", "status", status, "error", err)
		body = errorBody{Code: appErr.Code, Message: "internal server error"}
		if appErr.Code == apperror.CodeUnavailable {
			body.Message = appErr.Message
		}
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
