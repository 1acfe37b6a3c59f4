/*
handlers.go - HTTP API handlers for the leave approval portal

PURPOSE:
  Exposes the portal service via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to portal.Service, which
  authorizes every call against the session principal.

ENDPOINTS:
  Auth:
    POST   /api/auth/login                   Mock login by email and role
    POST   /api/auth/register                Create identity and log in
    POST   /api/auth/logout                  End the session
    GET    /api/auth/me                      Current principal

  Employees:
    GET    /api/employees                    Visible identities
    POST   /api/employees                    Create identity (admin)
    GET    /api/employees/stats              Headcount summary (admin)
    GET    /api/employees/{id}               Identity details
    PUT    /api/employees/{id}               Update identity (admin)
    DELETE /api/employees/{id}               Delete identity (admin)
    GET    /api/employees/{id}/reports       Direct reports
    GET    /api/managers                     Managers (admin)

  Leave:
    GET    /api/leave/types                  Leave type catalog
    POST   /api/leave                        Apply for leave
    GET    /api/leave                        Visible requests
    GET    /api/leave/mine                   Caller's requests
    GET    /api/leave/stats                  Outcome counts (admin)
    GET    /api/leave/{id}                   Request details
    GET    /api/leave/pending/manager        Manager approval queue
    GET    /api/leave/pending/hr             HR approval queue (admin)
    POST   /api/leave/{id}/manager-decision  Manager stage decision
    POST   /api/leave/{id}/hr-decision       HR stage decision

  Views:
    GET    /api/team/{managerId}/rollup      Team leave rollup
    GET    /api/notifications                Caller's inbox

  Maintenance:
    POST   /api/admin/reset                  Clear data (admin)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, bad date range
  - 401: Missing or unknown session token
  - 403: Not allowed, or not visible to the caller
  - 404: Resource not found (admins only; others get 403)
  - 409: Duplicate email, decision on a request in the wrong state
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/directory"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/leave"
	"github.com/warp/hr-engine/portal"
	"github.com/warp/hr-engine/session"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Portal   *portal.Service
	Sessions *session.Sessions

	logger   *zap.Logger
	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

type HandlerOption func(*Handler)

func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler creates a new handler over the portal and session registry.
func NewHandler(p *portal.Service, sessions *session.Sessions, opts ...HandlerOption) *Handler {
	h := &Handler{
		Portal:   p,
		Sessions: sessions,
		logger:   zap.L().Named("api"),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login opens a session for the email and asserted role.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, principal, err := h.Sessions.Login(r.Context(), req.Email, generic.Role(req.Role))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionDTO{Token: token, Principal: toPrincipalDTO(principal)})
}

// Register creates a directory identity and opens a session for it.
// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := directory.NewIdentity{
		Name:       req.Name,
		Email:      req.Email,
		Role:       generic.Role(req.Role),
		Department: req.Department,
		Position:   req.Position,
		ManagerID:  optionalID(req.ManagerID),
		Phone:      req.Phone,
		Address:    req.Address,
	}
	token, principal, err := h.Sessions.Register(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionDTO{Token: token, Principal: toPrincipalDTO(principal)})
}

// Logout ends the caller's session.
// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Logout(tokenFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the session principal.
// GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPrincipalDTO(principalFrom(r.Context())))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns the identities visible to the caller.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	identities, err := h.Portal.Identities(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTOs(identities))
}

// GetEmployee returns a single identity.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := generic.IdentityID(chi.URLParam(r, "id"))

	identity, err := h.Portal.Identity(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(identity))
}

// CreateEmployee adds an identity to the directory.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := directory.NewIdentity{
		Name:                  req.Name,
		Email:                 req.Email,
		Role:                  generic.Role(req.Role),
		Department:            req.Department,
		Position:              req.Position,
		ManagerID:             optionalID(req.ManagerID),
		Phone:                 req.Phone,
		Address:               req.Address,
		TotalLeaveEntitlement: optionalDays(req.TotalLeaveEntitlement),
		UsedLeaveDays:         optionalDays(req.UsedLeaveDays),
	}
	if req.JoinDate != "" {
		d, err := generic.ParseDate(req.JoinDate)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		in.JoinDate = d
	}
	if req.Status != "" {
		status := generic.IdentityStatus(req.Status)
		in.Status = &status
	}

	identity, err := h.Portal.CreateIdentity(r.Context(), principalFrom(r.Context()), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(identity))
}

// UpdateEmployee applies a partial update.
// PUT /api/employees/{id}
func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id := generic.IdentityID(chi.URLParam(r, "id"))

	var req UpdateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	patch := directory.Patch{
		Name:                  req.Name,
		Email:                 req.Email,
		Department:            req.Department,
		Position:              req.Position,
		Phone:                 req.Phone,
		Address:               req.Address,
		ManagerID:             optionalID(req.ManagerID),
		ClearManager:          req.ClearManager,
		TotalLeaveEntitlement: optionalDays(req.TotalLeaveEntitlement),
		UsedLeaveDays:         optionalDays(req.UsedLeaveDays),
	}
	if req.Role != nil {
		role := generic.Role(*req.Role)
		patch.Role = &role
	}
	if req.Status != nil {
		status := generic.IdentityStatus(*req.Status)
		patch.Status = &status
	}
	if req.JoinDate != nil {
		d, err := generic.ParseDate(*req.JoinDate)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		patch.JoinDate = &d
	}

	identity, err := h.Portal.UpdateIdentity(r.Context(), principalFrom(r.Context()), id, patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(identity))
}

// DeleteEmployee removes an identity. Their leave requests are kept.
// DELETE /api/employees/{id}
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := generic.IdentityID(chi.URLParam(r, "id"))

	if err := h.Portal.DeleteIdentity(r.Context(), principalFrom(r.Context()), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDirectReports returns the identities reporting to {id}.
// GET /api/employees/{id}/reports
func (h *Handler) ListDirectReports(w http.ResponseWriter, r *http.Request) {
	id := generic.IdentityID(chi.URLParam(r, "id"))

	reports, err := h.Portal.DirectReports(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTOs(reports))
}

// ListManagers returns every identity with the manager role.
// GET /api/managers
func (h *Handler) ListManagers(w http.ResponseWriter, r *http.Request) {
	managers, err := h.Portal.Managers(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTOs(managers))
}

// GetDirectoryStats returns headcount and departments.
// GET /api/employees/stats
func (h *Handler) GetDirectoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Portal.DirectoryStats(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDirectoryStatsDTO(stats))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ListLeaveTypes returns the leave type catalog.
// GET /api/leave/types
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types := leave.Types()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// ApplyLeave files a leave request for the caller.
// POST /api/leave
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	var req ApplyLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	end, err := generic.ParseDate(req.EndDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	created, err := h.Portal.Apply(r.Context(), principalFrom(r.Context()), leave.ApplyInput{
		EmployeeID: generic.IdentityID(req.EmployeeID),
		LeaveType:  generic.LeaveType(req.LeaveType),
		StartDate:  start,
		EndDate:    end,
		Reason:     req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(created))
}

// ListLeaveRequests returns every request visible to the caller.
// GET /api/leave
func (h *Handler) ListLeaveRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Portal.Requests(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(reqs))
}

// ListMyLeaveRequests returns the caller's own requests.
// GET /api/leave/mine
func (h *Handler) ListMyLeaveRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Portal.MyRequests(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(reqs))
}

// GetLeaveRequest returns a single request.
// GET /api/leave/{id}
func (h *Handler) GetLeaveRequest(w http.ResponseWriter, r *http.Request) {
	id := generic.RequestID(chi.URLParam(r, "id"))

	req, err := h.Portal.Request(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(req))
}

// GetLeaveStats returns request counts by outcome.
// GET /api/leave/stats
func (h *Handler) GetLeaveStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Portal.LeaveStats(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveStatsDTO(stats))
}

// ListPendingManager returns requests awaiting the caller's decision.
// Admins see every pending_manager request.
// GET /api/leave/pending/manager
func (h *Handler) ListPendingManager(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Portal.PendingManagerQueue(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(reqs))
}

// ListPendingHR returns requests awaiting HR.
// GET /api/leave/pending/hr
func (h *Handler) ListPendingHR(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Portal.PendingHRQueue(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(reqs))
}

// DecideAsManager records the manager stage decision.
// POST /api/leave/{id}/manager-decision
func (h *Handler) DecideAsManager(w http.ResponseWriter, r *http.Request) {
	id := generic.RequestID(chi.URLParam(r, "id"))

	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.Portal.DecideAsManager(r.Context(), principalFrom(r.Context()), id, generic.Decision(req.Decision), req.Comments)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(updated))
}

// DecideAsHR records the HR stage decision.
// POST /api/leave/{id}/hr-decision
func (h *Handler) DecideAsHR(w http.ResponseWriter, r *http.Request) {
	id := generic.RequestID(chi.URLParam(r, "id"))

	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.Portal.DecideAsHR(r.Context(), principalFrom(r.Context()), id, generic.Decision(req.Decision), req.Comments)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(updated))
}

// =============================================================================
// VIEW HANDLERS
// =============================================================================

// GetTeamRollup summarizes a manager's team.
// GET /api/team/{managerId}/rollup
func (h *Handler) GetTeamRollup(w http.ResponseWriter, r *http.Request) {
	managerID := generic.IdentityID(chi.URLParam(r, "managerId"))

	rollup, err := h.Portal.TeamRollup(r.Context(), principalFrom(r.Context()), managerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTeamRollupDTO(rollup))
}

// ListNotifications returns the caller's inbox, newest first.
// GET /api/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ns, err := h.Portal.Notifications(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationDTOs(ns))
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// ResetData clears leave requests, or everything with ?scope=all.
// POST /api/admin/reset
func (h *Handler) ResetData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalFrom(ctx)

	var err error
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "leave":
		err = h.Portal.ResetLeaveData(ctx, p)
	case "all":
		err = h.Portal.ResetAll(ctx, p)
	default:
		err = &generic.FieldError{Field: "scope", Reason: "expected leave or all, got " + scope}
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.setCurrentScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the error response and
// returns false when the body is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			h.writeServiceError(w, r, &generic.FieldError{Field: fe.Field(), Reason: "failed " + fe.Tag() + " check"})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, session.ErrNoSession):
		status, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, generic.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, generic.ErrDuplicateEmail):
		status, code = http.StatusConflict, "duplicate_email"
	case generic.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, generic.ErrInvalidDateRange):
		status, code = http.StatusBadRequest, "invalid_date_range"
	case errors.Is(err, generic.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, status, ErrorResponse{Error: "Internal error", Code: code})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var fe *generic.FieldError
	if errors.As(err, &fe) {
		resp.Details = map[string]string{"field": fe.Field, "reason": fe.Reason}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func optionalID(s *string) *generic.IdentityID {
	if s == nil || *s == "" {
		return nil
	}
	return generic.IdentityPtr(generic.IdentityID(*s))
}

func optionalDays(f *float64) *generic.Days {
	if f == nil {
		return nil
	}
	d := generic.NewDaysFromFloat(*f)
	return &d
}

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
}
