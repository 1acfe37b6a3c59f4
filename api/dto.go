/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Auth:          LoginRequest, RegisterRequest, SessionDTO, PrincipalDTO
  Employees:     EmployeeDTO, CreateEmployeeRequest, UpdateEmployeeRequest, DirectoryStatsDTO
  Leave:         ApplyLeaveRequest, DecisionRequest, LeaveRequestDTO, StageDecisionDTO, LeaveStatsDTO
  Team:          TeamRollupDTO, MemberUsageDTO
  Notifications: NotificationDTO
  Scenarios:     ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry validator/v10 tags. Handler.decode checks them and
  reports the first failing field by its JSON name. Domain rules (date
  order, unique email, manager existence) stay in the components.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/hr-engine/directory"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
	"github.com/warp/hr-engine/views"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=employee manager admin"`
}

type RegisterRequest struct {
	Name       string  `json:"name" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Role       string  `json:"role" validate:"required,oneof=employee manager admin"`
	Department string  `json:"department"`
	Position   string  `json:"position"`
	ManagerID  *string `json:"managerId"`
	Phone      string  `json:"phone"`
	Address    string  `json:"address"`
}

// PrincipalDTO is the logged-in identity as the front end sees it.
type PrincipalDTO struct {
	EmployeeDTO
	Synthesized bool `json:"synthesized"`
}

type SessionDTO struct {
	Token     string       `json:"token"`
	Principal PrincipalDTO `json:"user"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID                    string  `json:"id"`
	EmployeeCode          string  `json:"employeeId"`
	Name                  string  `json:"name"`
	Email                 string  `json:"email"`
	Role                  string  `json:"role"`
	Department            string  `json:"department"`
	Position              string  `json:"position"`
	ManagerID             *string `json:"managerId"`
	JoinDate              string  `json:"joinDate,omitempty"`
	Phone                 string  `json:"phone,omitempty"`
	Address               string  `json:"address,omitempty"`
	Status                string  `json:"status"`
	TotalLeaveEntitlement float64 `json:"totalLeaves"`
	UsedLeaveDays         float64 `json:"usedLeaves"`
	RemainingLeaveDays    float64 `json:"remainingLeaves"`
}

type CreateEmployeeRequest struct {
	Name                  string   `json:"name" validate:"required"`
	Email                 string   `json:"email" validate:"required,email"`
	Role                  string   `json:"role" validate:"required,oneof=employee manager admin"`
	Department            string   `json:"department"`
	Position              string   `json:"position"`
	ManagerID             *string  `json:"managerId"`
	JoinDate              string   `json:"joinDate" validate:"omitempty,datetime=2006-01-02"`
	Phone                 string   `json:"phone"`
	Address               string   `json:"address"`
	TotalLeaveEntitlement *float64 `json:"totalLeaves" validate:"omitempty,gte=0"`
	UsedLeaveDays         *float64 `json:"usedLeaves" validate:"omitempty,gte=0"`
	Status                string   `json:"status" validate:"omitempty,oneof=active inactive"`
}

// UpdateEmployeeRequest changes only the fields that are present.
// ClearManager removes the reporting line.
type UpdateEmployeeRequest struct {
	Name                  *string  `json:"name" validate:"omitempty,min=1"`
	Email                 *string  `json:"email" validate:"omitempty,email"`
	Role                  *string  `json:"role" validate:"omitempty,oneof=employee manager admin"`
	Department            *string  `json:"department"`
	Position              *string  `json:"position"`
	ManagerID             *string  `json:"managerId"`
	ClearManager          bool     `json:"clearManager"`
	JoinDate              *string  `json:"joinDate" validate:"omitempty,datetime=2006-01-02"`
	Phone                 *string  `json:"phone"`
	Address               *string  `json:"address"`
	Status                *string  `json:"status" validate:"omitempty,oneof=active inactive"`
	TotalLeaveEntitlement *float64 `json:"totalLeaves" validate:"omitempty,gte=0"`
	UsedLeaveDays         *float64 `json:"usedLeaves" validate:"omitempty,gte=0"`
}

type DirectoryStatsDTO struct {
	Total       int      `json:"total"`
	Active      int      `json:"active"`
	Departments []string `json:"departments"`
}

// =============================================================================
// LEAVE
// =============================================================================

// ApplyLeaveRequest files leave. EmployeeID defaults to the caller.
type ApplyLeaveRequest struct {
	EmployeeID string `json:"employeeId"`
	LeaveType  string `json:"leaveType" validate:"required"`
	StartDate  string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Reason     string `json:"reason" validate:"required"`
}

type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Comments string `json:"comments"`
}

type StageDecisionDTO struct {
	Decision         string `json:"decision"`
	Date             string `json:"date"`
	Comments         string `json:"comments"`
	ActorID          string `json:"actorId"`
	ActorSynthesized bool   `json:"actorSynthesized"`
}

type LeaveRequestDTO struct {
	ID              string            `json:"id"`
	EmployeeID      string            `json:"employeeId"`
	EmployeeName    string            `json:"employeeName"`
	EmployeeEmail   string            `json:"employeeEmail"`
	Department      string            `json:"department"`
	LeaveType       string            `json:"leaveType"`
	StartDate       string            `json:"startDate"`
	EndDate         string            `json:"endDate"`
	Days            int               `json:"days"`
	Reason          string            `json:"reason"`
	Status          string            `json:"status"`
	AppliedDate     string            `json:"appliedDate"`
	ManagerID       *string           `json:"managerId"`
	ManagerDecision *StageDecisionDTO `json:"managerDecision,omitempty"`
	HRDecision      *StageDecisionDTO `json:"hrDecision,omitempty"`
}

type LeaveStatsDTO struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// =============================================================================
// TEAM
// =============================================================================

type MemberUsageDTO struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Department string  `json:"department"`
	Total      float64 `json:"totalLeaves"`
	Used       float64 `json:"usedLeaves"`
	Remaining  float64 `json:"remainingLeaves"`
}

type TeamRollupDTO struct {
	ManagerID                 string            `json:"managerId"`
	MemberCount               int               `json:"teamSize"`
	TotalEntitlement          float64           `json:"totalLeaves"`
	TotalUsed                 float64           `json:"usedLeaves"`
	TotalRemaining            float64           `json:"remainingLeaves"`
	PendingApprovalCount      int               `json:"pendingApprovals"`
	ApprovedThisCalendarMonth int               `json:"approvedThisMonth"`
	RecentRequests            []LeaveRequestDTO `json:"recentRequests"`
	Members                   []MemberUsageDTO  `json:"members"`
}

// =============================================================================
// NOTIFICATIONS / SCENARIOS / ERRORS
// =============================================================================

type NotificationDTO struct {
	ID        string `json:"id"`
	Time      string `json:"time"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func idPtr(id *generic.IdentityID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func dateString(d generic.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func toEmployeeDTO(i generic.Identity) EmployeeDTO {
	return EmployeeDTO{
		ID:                    string(i.ID),
		EmployeeCode:          i.EmployeeCode,
		Name:                  i.Name,
		Email:                 i.Email,
		Role:                  string(i.Role),
		Department:            i.Department,
		Position:              i.Position,
		ManagerID:             idPtr(i.ManagerID),
		JoinDate:              dateString(i.JoinDate),
		Phone:                 i.Phone,
		Address:               i.Address,
		Status:                string(i.Status),
		TotalLeaveEntitlement: i.TotalLeaveEntitlement.Float64(),
		UsedLeaveDays:         i.UsedLeaveDays.Float64(),
		RemainingLeaveDays:    i.RemainingLeaveDays().Float64(),
	}
}

func toEmployeeDTOs(identities []generic.Identity) []EmployeeDTO {
	dtos := make([]EmployeeDTO, len(identities))
	for i, identity := range identities {
		dtos[i] = toEmployeeDTO(identity)
	}
	return dtos
}

func toPrincipalDTO(p generic.Principal) PrincipalDTO {
	return PrincipalDTO{EmployeeDTO: toEmployeeDTO(p.Identity), Synthesized: p.Synthesized}
}

func toStageDecisionDTO(d *generic.StageDecision) *StageDecisionDTO {
	if d == nil {
		return nil
	}
	return &StageDecisionDTO{
		Decision:         string(d.Decision),
		Date:             dateString(d.Date),
		Comments:         d.Comments,
		ActorID:          string(d.ActorID),
		ActorSynthesized: d.ActorSynthesized,
	}
}

func toLeaveRequestDTO(r generic.LeaveRequest) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:              string(r.ID),
		EmployeeID:      string(r.EmployeeID),
		EmployeeName:    r.EmployeeName,
		EmployeeEmail:   r.EmployeeEmail,
		Department:      r.Department,
		LeaveType:       string(r.LeaveType),
		StartDate:       dateString(r.StartDate),
		EndDate:         dateString(r.EndDate),
		Days:            r.Days(),
		Reason:          r.Reason,
		Status:          string(r.Status),
		AppliedDate:     dateString(r.AppliedDate),
		ManagerID:       idPtr(r.ManagerID),
		ManagerDecision: toStageDecisionDTO(r.ManagerDecision),
		HRDecision:      toStageDecisionDTO(r.HRDecision),
	}
}

func toLeaveRequestDTOs(reqs []generic.LeaveRequest) []LeaveRequestDTO {
	dtos := make([]LeaveRequestDTO, len(reqs))
	for i, r := range reqs {
		dtos[i] = toLeaveRequestDTO(r)
	}
	return dtos
}

func toDirectoryStatsDTO(s directory.Stats) DirectoryStatsDTO {
	departments := s.Departments
	if departments == nil {
		departments = []string{}
	}
	return DirectoryStatsDTO{Total: s.Total, Active: s.Active, Departments: departments}
}

func toLeaveStatsDTO(s views.LeaveStats) LeaveStatsDTO {
	return LeaveStatsDTO{Total: s.Total, Pending: s.Pending, Approved: s.Approved, Rejected: s.Rejected}
}

func toTeamRollupDTO(t views.TeamRollup) TeamRollupDTO {
	members := make([]MemberUsageDTO, len(t.Members))
	for i, m := range t.Members {
		members[i] = MemberUsageDTO{
			ID:         string(m.ID),
			Name:       m.Name,
			Department: m.Department,
			Total:      m.Total.Float64(),
			Used:       m.Used.Float64(),
			Remaining:  m.Remaining.Float64(),
		}
	}
	return TeamRollupDTO{
		ManagerID:                 string(t.ManagerID),
		MemberCount:               t.MemberCount,
		TotalEntitlement:          t.TotalEntitlement.Float64(),
		TotalUsed:                 t.TotalUsed.Float64(),
		TotalRemaining:            t.TotalRemaining.Float64(),
		PendingApprovalCount:      t.PendingApprovalCount,
		ApprovedThisCalendarMonth: t.ApprovedThisCalendarMonth,
		RecentRequests:            toLeaveRequestDTOs(t.RecentRequests),
		Members:                   members,
	}
}

func toNotificationDTOs(ns []notify.Notification) []NotificationDTO {
	dtos := make([]NotificationDTO, len(ns))
	for i, n := range ns {
		dtos[i] = NotificationDTO{
			ID:        n.ID,
			Time:      n.Time.UTC().Format(time.RFC3339),
			Kind:      string(n.Kind),
			Title:     n.Title,
			Message:   n.Message,
			RequestID: string(n.RequestID),
		}
	}
	return dtos
}
