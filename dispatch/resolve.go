package dispatch

import (
	"github.com/c360studio/aof/config"
	"github.com/c360studio/aof/task"
)

// ResolveAgent implements the §4.4 assigner preference order: explicit
// routing.agent, then routing.role (first active agent carrying that role),
// then routing.team (first active team member). The returned teamID is the
// team the resolved agent belongs to, used for throttle overrides even when
// resolution came from routing.agent directly. An explicit routing.agent
// that is unknown or inactive is returned as-is with routing.team.
func ResolveAgent(t *task.Task, org *config.OrgChart) (agentID, teamID string, ok bool) {
	if t.Routing.Agent != "" {
		if a, team, found := org.FindAgent(t.Routing.Agent); found && a.Active {
			return a.ID, team, true
		}
		return t.Routing.Agent, t.Routing.Team, true
	}

	if t.Routing.Role != "" {
		if a, found := org.FirstActiveWithRole(t.Routing.Role); found {
			_, team, _ := org.FindAgent(a.ID)
			return a.ID, team, true
		}
	}

	if t.Routing.Team != "" {
		if a, found := org.FirstActiveInTeam(t.Routing.Team); found {
			return a.ID, t.Routing.Team, true
		}
	}

	return "", "", false
}
