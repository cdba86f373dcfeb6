// Package permission authorizes destructive ledger operations against the
// team registry.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"spikecurate/internal/ledger"
	"spikecurate/internal/logging"
	"spikecurate/internal/services"
)

// Directory resolves team membership.
type Directory interface {
	MembersOf(ctx context.Context, team string) ([]string, error)
}

// Guard checks that an operator belongs to every team owning a target.
type Guard struct {
	dir    Directory
	logger *slog.Logger
}

// NewGuard constructs a guard backed by dir.
func NewGuard(dir Directory, logger *slog.Logger) *Guard {
	return &Guard{dir: dir, logger: logging.NewComponentLogger(logger, "permission")}
}

// AuthorizeDelete returns services.ErrPermission unless user is a member of
// every team in teams. Blank team names are ignored.
func (g *Guard) AuthorizeDelete(ctx context.Context, user string, teams []string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return services.Wrap(services.ErrPermission, "permission", "authorize delete",
			"no operator configured; set permissions.user", nil)
	}
	seen := make(map[string]struct{}, len(teams))
	for _, team := range teams {
		team = strings.TrimSpace(team)
		if team == "" {
			continue
		}
		if _, ok := seen[team]; ok {
			continue
		}
		seen[team] = struct{}{}
		members, err := g.dir.MembersOf(ctx, team)
		if err != nil {
			return fmt.Errorf("resolve team %s: %w", team, err)
		}
		if !slices.Contains(members, user) {
			logging.WarnWithContext(logging.WithContext(ctx, g.logger), "delete denied", "permission_denied",
				logging.String("user", user),
				logging.String("team", team),
				logging.String(logging.FieldImpact, "nothing deleted"))
			return services.Wrap(services.ErrPermission, "permission", "authorize delete",
				fmt.Sprintf("%s is not a member of team %s", user, team), nil)
		}
	}
	return nil
}

// AuthorizeSortingDelete authorizes deleting every sorting in records.
func (g *Guard) AuthorizeSortingDelete(ctx context.Context, user string, records ...*ledger.SortingRecord) error {
	teams := make([]string, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			teams = append(teams, rec.TeamName)
		}
	}
	return g.AuthorizeDelete(ctx, user, teams)
}
