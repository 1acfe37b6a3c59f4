/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that replace the store contents with
	realistic data for demos and manual testing of the approval workflow.

AVAILABLE SCENARIOS:

	demo:            HR admin, two managers, five employees, five requests
	                 spread across every stage of the workflow
	directory-only:  Same people, empty ledger
	fresh-start:     HR admin only

HOW SCENARIOS WORK:
 1. BuildScenario returns a generic.Snapshot
 2. portal.LoadSnapshot checks the caller may reset data
 3. The store is cleared and the snapshot written in one transaction
 4. Change events flow to the write-behind persister and metrics

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "demo"}

USAGE VIA CLI:

	hr-server reset --scenario demo

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add a case to BuildScenario

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - portal/portal.go: LoadSnapshot, Seed
  - cmd/server/main.go: reset command
*/
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/warp/hr-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo",
		Name:        "Demo Company",
		Description: "Two teams with requests pending, approved by managers and rejected",
	},
	{
		ID:          "directory-only",
		Name:        "Directory Only",
		Description: "Demo people with an empty leave ledger",
	},
	{
		ID:          "fresh-start",
		Name:        "Fresh Start",
		Description: "A single HR admin, nothing else",
	},
}

// Scenarios lists the loadable scenarios.
func Scenarios() []ScenarioDTO {
	return append([]ScenarioDTO(nil), scenarios...)
}

// BuildScenario returns the data for a scenario id.
func BuildScenario(id string) (generic.Snapshot, error) {
	switch id {
	case "demo":
		return generic.Snapshot{Identities: demoIdentities(), Requests: demoRequests()}, nil
	case "directory-only":
		return generic.Snapshot{Identities: demoIdentities()}, nil
	case "fresh-start":
		return generic.Snapshot{Identities: demoIdentities()[:1]}, nil
	default:
		return generic.Snapshot{}, &generic.FieldError{Field: "scenario_id", Reason: fmt.Sprintf("unknown scenario %q", id)}
	}
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario replaces the store contents with a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := BuildScenario(req.ScenarioID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.Portal.LoadSnapshot(r.Context(), principalFrom(r.Context()), snap); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.setCurrentScenario(req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "loaded",
		"scenario_id": req.ScenarioID,
		"identities":  len(snap.Identities),
		"requests":    len(snap.Requests),
	})
}

// =============================================================================
// DEMO DATA
// =============================================================================

func date(year int, month time.Month, day int) generic.Date {
	return generic.NewDate(year, month, day)
}

type demoPerson struct {
	id, code, name, email, role string
	department, position       string
	manager, phone, address    string
	joined                     generic.Date
	used                       int
}

var demoPeople = []demoPerson{
	{
		id: "hr001", code: "ADM001", name: "HR Admin", email: "hr@company.com", role: "admin",
		department: "Human Resources", position: "HR Manager",
		phone: "+91 98765 43200", address: "1 Corporate Park, Bangalore, India",
		joined: date(2021, time.April, 1),
	},
	{
		id: "mgr001", code: "MGR001", name: "Sarah Wilson", email: "sarah.wilson@company.com", role: "manager",
		department: "Engineering", position: "Team Lead",
		phone: "+91 98765 43201", address: "45 Lake View Road, Bangalore, India",
		joined: date(2021, time.June, 14), used: 4,
	},
	{
		id: "mgr002", code: "MGR002", name: "Mike Johnson", email: "mike.johnson@company.com", role: "manager",
		department: "Design", position: "Design Lead",
		phone: "+91 98765 43202", address: "78 Park Street, Bangalore, India",
		joined: date(2022, time.February, 7), used: 2,
	},
	{
		id: "emp001", code: "EMP001", name: "John Doe", email: "john.doe@company.com", role: "employee",
		department: "Engineering", position: "Software Engineer", manager: "mgr001",
		phone: "+91 98765 43210", address: "123 Tech Street, Bangalore, India",
		joined: date(2023, time.January, 15), used: 8,
	},
	{
		id: "emp002", code: "EMP002", name: "Jane Smith", email: "jane.smith@company.com", role: "employee",
		department: "Engineering", position: "Frontend Developer", manager: "mgr001",
		phone: "+91 98765 43211", address: "456 Code Avenue, Bangalore, India",
		joined: date(2023, time.March, 20), used: 12,
	},
	{
		id: "emp003", code: "EMP003", name: "Alex Brown", email: "alex.brown@company.com", role: "employee",
		department: "Engineering", position: "Backend Developer", manager: "mgr001",
		phone: "+91 98765 43212", address: "789 Server Lane, Bangalore, India",
		joined: date(2023, time.June, 10), used: 5,
	},
	{
		id: "emp004", code: "EMP004", name: "Sarah Johnson", email: "sarah.johnson@company.com", role: "employee",
		department: "Design", position: "UI/UX Designer", manager: "mgr002",
		phone: "+91 98765 43213", address: "321 Design Plaza, Bangalore, India",
		joined: date(2022, time.November, 5), used: 15,
	},
	{
		id: "emp005", code: "EMP005", name: "Mike Wilson", email: "mike.wilson@company.com", role: "employee",
		department: "Engineering", position: "DevOps Engineer", manager: "mgr001",
		phone: "+91 98765 43214", address: "654 Cloud Road, Bangalore, India",
		joined: date(2023, time.August, 15), used: 3,
	},
}

func demoIdentities() []generic.Identity {
	out := make([]generic.Identity, len(demoPeople))
	for i, p := range demoPeople {
		identity := generic.Identity{
			ID:                    generic.IdentityID(p.id),
			EmployeeCode:          p.code,
			Name:                  p.name,
			Email:                 p.email,
			Role:                  generic.Role(p.role),
			Department:            p.department,
			Position:              p.position,
			JoinDate:              p.joined,
			Phone:                 p.phone,
			Address:               p.address,
			Status:                generic.StatusActive,
			TotalLeaveEntitlement: generic.NewDays(generic.DefaultLeaveEntitlement),
			UsedLeaveDays:         generic.NewDays(p.used),
			CreatedAt:             p.joined,
		}
		if p.manager != "" {
			identity.ManagerID = generic.IdentityPtr(generic.IdentityID(p.manager))
		}
		out[i] = identity
	}
	return out
}

type demoLeave struct {
	id, owner, manager string
	leaveType          generic.LeaveType
	start, end         generic.Date
	reason             string
	status             generic.LeaveStatus
	applied            generic.Date
	managerDecision    *generic.StageDecision
}

func demoRequests() []generic.LeaveRequest {
	owners := make(map[generic.IdentityID]generic.Identity)
	for _, i := range demoIdentities() {
		owners[i.ID] = i
	}

	leaves := []demoLeave{
		{
			id: "1", owner: "emp001", manager: "mgr001", leaveType: generic.LeaveSick,
			start: date(2025, time.September, 1), end: date(2025, time.September, 3),
			reason: "Medical emergency - family member hospitalized",
			status: generic.StatusPendingManager, applied: date(2025, time.August, 28),
		},
		{
			id: "2", owner: "emp002", manager: "mgr002", leaveType: generic.LeaveAnnual,
			start: date(2025, time.September, 15), end: date(2025, time.September, 20),
			reason: "Family vacation planned",
			status: generic.StatusPendingHR, applied: date(2025, time.August, 25),
			managerDecision: &generic.StageDecision{
				Decision: generic.DecisionApproved, Date: date(2025, time.August, 26),
				Comments: "Approved. Have a great vacation!", ActorID: "mgr002",
			},
		},
		{
			// mgr003 is not in the directory; the request renders with a dangling manager.
			id: "3", owner: "emp003", manager: "mgr003", leaveType: generic.LeavePersonal,
			start: date(2025, time.September, 5), end: date(2025, time.September, 5),
			reason: "Personal work at home",
			status: generic.StatusRejectedManager, applied: date(2025, time.August, 30),
			managerDecision: &generic.StageDecision{
				Decision: generic.DecisionRejected, Date: date(2025, time.August, 30),
				Comments: "Please use work from home option instead", ActorID: "mgr003",
			},
		},
		{
			id: "4", owner: "emp004", manager: "mgr002", leaveType: generic.LeaveSick,
			start: date(2025, time.September, 10), end: date(2025, time.September, 12),
			reason: "Flu symptoms, need rest",
			status: generic.StatusPendingManager, applied: date(2025, time.September, 8),
		},
		{
			id: "5", owner: "emp005", manager: "mgr001", leaveType: generic.LeavePersonal,
			start: date(2025, time.September, 25), end: date(2025, time.September, 27),
			reason: "Wedding ceremony",
			status: generic.StatusPendingHR, applied: date(2025, time.September, 5),
			managerDecision: &generic.StageDecision{
				Decision: generic.DecisionApproved, Date: date(2025, time.September, 6),
				Comments: "Congratulations! Approved.", ActorID: "mgr001",
			},
		},
	}

	out := make([]generic.LeaveRequest, len(leaves))
	for i, l := range leaves {
		owner := owners[generic.IdentityID(l.owner)]
		out[i] = generic.LeaveRequest{
			ID:              generic.RequestID(l.id),
			EmployeeID:      owner.ID,
			LeaveType:       l.leaveType,
			StartDate:       l.start,
			EndDate:         l.end,
			Reason:          l.reason,
			Status:          l.status,
			AppliedDate:     l.applied,
			AppliedAt:       l.applied.Time.Add(9 * time.Hour),
			ManagerID:       generic.IdentityPtr(generic.IdentityID(l.manager)),
			EmployeeName:    owner.Name,
			EmployeeEmail:   owner.Email,
			Department:      owner.Department,
			ManagerDecision: l.managerDecision,
		}
	}
	return out
}
