// Package visibility computes which database connections a caller may
// read data from. Every query-facing read path filters through it.
package visibility

import (
	"context"
	"sort"

	errwrap "github.com/pkg/errors"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/repository/sqlite"
)

type Gate struct {
	connRepo sqlite.ConnectionRepository
}

func NewGate(connRepo sqlite.ConnectionRepository) *Gate {
	return &Gate{connRepo: connRepo}
}

// VisibleConnectionIDs returns the sorted union of connections the user
// may see: TEAM_ONLY where the user is on the connection's team,
// ORG_WIDE where the user is in its organization, and USER_ONLY where
// the user owns it. An empty result means the caller sees nothing,
// never everything.
func (g *Gate) VisibleConnectionIDs(ctx context.Context, userID int64) ([]int64, error) {
	funcName := "Gate.VisibleConnectionIDs"

	conns, err := g.connRepo.FindAll(ctx)
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	teamIDs, err := g.connRepo.TeamIDsForUser(ctx, userID)
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	orgIDs, err := g.connRepo.OrgIDsForUser(ctx, userID)
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	teams := make(map[int64]struct{}, len(teamIDs))
	for _, id := range teamIDs {
		teams[id] = struct{}{}
	}
	orgs := make(map[int64]struct{}, len(orgIDs))
	for _, id := range orgIDs {
		orgs[id] = struct{}{}
	}

	var visible []int64
	for _, conn := range conns {
		switch conn.VisibilityScope {
		case entity.ScopeTeamOnly:
			if _, ok := teams[conn.TeamID]; ok {
				visible = append(visible, conn.ID)
			}
		case entity.ScopeOrgWide:
			if _, ok := orgs[conn.OrganizationID]; ok {
				visible = append(visible, conn.ID)
			}
		case entity.ScopeUserOnly:
			if conn.OwnerUserID == userID {
				visible = append(visible, conn.ID)
			}
		}
	}

	sort.Slice(visible, func(i, j int) bool { return visible[i] < visible[j] })
	return visible, nil
}
