package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/casewatch/internal/auth"
	"github.com/opensource-finance/casewatch/internal/complaint"
	"github.com/opensource-finance/casewatch/internal/dashboard"
	"github.com/opensource-finance/casewatch/internal/domain"
	"github.com/opensource-finance/casewatch/internal/lifecycle"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	complaints    *complaint.Service
	lifecycle     *lifecycle.Manager
	dashboard     *dashboard.Service
	auth          *auth.Service
	notifications NotificationLister
	checks        map[string]Pinger
	version       string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	checks := make(map[string]Pinger)
	if deps.Repo != nil {
		checks["database"] = deps.Repo
	}
	if deps.Cache != nil {
		checks["cache"] = deps.Cache
	}
	if deps.Bus != nil {
		checks["eventBus"] = deps.Bus
	}
	return &Handler{
		complaints:    deps.Complaints,
		lifecycle:     deps.Lifecycle,
		dashboard:     deps.Dashboard,
		auth:          deps.Auth,
		notifications: deps.Notifications,
		checks:        checks,
		version:       version,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"traceId,omitempty"`
}

// TrackRequest is the request body for POST /complaints/track.
type TrackRequest struct {
	ComplaintID string `json:"complaintId"`
	Phone       string `json:"phone"`
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TransitionRequest is the request body for POST /complaints/{id}/transitions.
type TransitionRequest struct {
	Status      string             `json:"status"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	FIR         *domain.FIRDetails `json:"fir,omitempty"`
}

// ListResponse wraps paged complaint listings.
type ListResponse struct {
	Complaints []*domain.Complaint `json:"complaints"`
	Count      int                 `json:"count"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

// Health reports the state of every backing service. It always answers 200;
// use /ready for traffic decisions.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(r.Context()); err != nil {
			status = "degraded"
			components[name] = "down"
			slog.WarnContext(r.Context(), "health check failed", "component", name, "error", err)
			continue
		}
		components[name] = "up"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready returns 503 until the database and event bus answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{"database", "eventBus"} {
		p, ok := h.checks[name]
		if !ok {
			continue
		}
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready":  "false",
				"reason": name + " unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListStatuses returns the nine statuses in progress order.
func (h *Handler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statuses":   domain.StatusCatalog(),
		"fraudTypes": domain.AllFraudTypes(),
		"priorities": domain.AllPriorities(),
	})
}

// SubmitComplaint handles POST /complaints.
func (h *Handler) SubmitComplaint(w http.ResponseWriter, r *http.Request) {
	var req domain.ComplaintRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.complaints.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/complaints/"+c.ID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"complaint": c,
		"message":   fmt.Sprintf("Complaint registered. Use ID %s to track its progress.", c.ID),
	})
}

// TrackComplaint handles POST /complaints/track. The phone travels in the
// body so it does not end up in access logs.
func (h *Handler) TrackComplaint(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tracking, err := h.complaints.Track(r.Context(), req.ComplaintID, req.Phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracking)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// CurrentSession returns the caller's session.
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, session)
}

// ListComplaints handles GET /complaints.
func (h *Handler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.complaints.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Complaints: list,
		Count:      len(list),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// GetComplaint handles GET /complaints/{id}.
func (h *Handler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	c, err := h.complaints.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"complaint":   c,
		"statusLabel": c.Status.Label(),
		"statusColor": c.Status.Color(),
		"progress":    c.Progress(),
	})
}

// ListCaseUpdates handles GET /complaints/{id}/updates.
func (h *Handler) ListCaseUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.complaints.Updates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"updates": updates,
		"count":   len(updates),
	})
}

// ListNotifications handles GET /complaints/{id}/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	c, err := h.complaints.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.notifications == nil {
		writeError(w, r, fmt.Errorf("%w: notification store not configured", domain.ErrDependency))
		return
	}

	notes, err := h.notifications.ListNotifications(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrDependency, err))
		return
	}
	if notes == nil {
		notes = []*domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notes,
		"count":         len(notes),
	})
}

// Transition handles POST /complaints/{id}/transitions. The acting officer
// comes from the session, never from the body.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}

	var req TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.lifecycle.Transition(r.Context(), lifecycle.Request{
		ComplaintID: strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "id"))),
		Status:      req.Status,
		Title:       req.Title,
		Description: req.Description,
		ActorID:     session.OfficerID,
		ActorRole:   session.Role,
		FIR:         req.FIR,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DashboardStats handles GET /dashboard/stats.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CreateOfficer handles POST /officers.
func (h *Handler) CreateOfficer(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())

	var req auth.NewOfficer
	if !decodeJSON(w, r, &req) {
		return
	}

	officer, err := h.auth.CreateOfficer(r.Context(), session, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "officer created",
		"officer_id", officer.ID,
		"role", officer.Role,
		"created_by", session.OfficerID,
	)
	writeJSON(w, http.StatusCreated, officer)
}

func parseFilter(r *http.Request) (domain.ComplaintFilter, error) {
	q := r.URL.Query()
	filter := domain.ComplaintFilter{
		Search: q.Get("q"),
		Phone:  q.Get("phone"),
		Limit:  50,
	}

	if v := q.Get("status"); v != "" {
		s, err := domain.ParseStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = s
	}
	if v := q.Get("fraudType"); v != "" {
		ft, err := domain.ParseFraudType(v)
		if err != nil {
			return filter, err
		}
		filter.FraudType = ft
	}
	if v := q.Get("priority"); v != "" {
		p, err := domain.ParsePriority(v)
		if err != nil {
			return filter, err
		}
		filter.Priority = p
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrValidation, name)
		}
		*dst = n
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	return filter, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		msg := "invalid JSON request body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		} else if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, TraceID: GetTraceID(r.Context())})
		return false
	}
	return true
}

// statusFor maps the domain error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrDependency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()

	switch {
	case status >= 500:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		msg = http.StatusText(status)
	case status == http.StatusTooManyRequests:
		var throttled *domain.ThrottledError
		if errors.As(err, &throttled) && throttled.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(throttled.RetryAfter.Seconds()))))
		}
	}

	writeJSON(w, status, errorResponse{Error: msg, TraceID: GetTraceID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
