/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario builds the expected data and that loading one
	over HTTP replaces the store contents and respects the reset capability.
*/
package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hr-engine/api"
	"github.com/warp/hr-engine/generic"
)

func TestBuildScenario(t *testing.T) {
	snap, err := api.BuildScenario("demo")
	require.NoError(t, err)
	assert.Len(t, snap.Identities, 8)
	assert.Len(t, snap.Requests, 5)
	assert.Equal(t, "John Doe", snap.Requests[0].EmployeeName)

	fresh, err := api.BuildScenario("fresh-start")
	require.NoError(t, err)
	require.Len(t, fresh.Identities, 1)
	assert.Equal(t, generic.RoleAdmin, fresh.Identities[0].Role)

	_, err = api.BuildScenario("nope")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	assert.Len(t, api.Scenarios(), 3)
}

func TestAPI_LoadScenarioAndReset(t *testing.T) {
	// GIVEN: An empty server and a guest admin
	// WHEN: The demo scenario is loaded, then leave data is reset
	// THEN: The directory survives the reset and the ledger is empty
	s := newTestServer(t)
	guest, _ := s.login("bootstrap@company.com", "admin")

	var resp map[string]any
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/scenarios/load", guest,
		api.LoadScenarioRequest{ScenarioID: "demo"}, &resp))
	assert.Equal(t, float64(5), resp["requests"])

	var current api.ScenarioDTO
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/scenarios/current", "", nil, &current))
	assert.Equal(t, "demo", current.ID)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/scenarios/load", guest,
		api.LoadScenarioRequest{ScenarioID: "nope"}, nil))

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/admin/reset", guest, nil, nil))
	var reqs []api.LeaveRequestDTO
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/leave", guest, nil, &reqs))
	assert.Empty(t, reqs)
	var people []api.EmployeeDTO
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/employees", guest, nil, &people))
	assert.Len(t, people, 8)

	john, _ := s.login("john.doe@company.com", "employee")
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/admin/reset?scope=all", john, nil, nil))
}
