package devseed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joblink/joblink-web/config"
	"github.com/joblink/joblink-web/internal/data"
	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
)

// RoleWriter persists a batch of role assignments atomically.
type RoleWriter interface {
	AssignMany(ctx context.Context, assignments []data.RoleAssignment) error
}

// Assignments turns the configured role lists into rows. A user listed under several
// roles keeps the highest one: admin, then company, then jobseeker.
func Assignments(cfg config.RoleConfig) []data.RoleAssignment {
	seen := make(map[string]bool)
	var out []data.RoleAssignment
	add := func(users []string, role domainauth.Role) {
		for _, id := range users {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, data.RoleAssignment{UserID: id, Role: role})
		}
	}
	add(cfg.AdminUsers, domainauth.RoleAdmin)
	add(cfg.CompanyUsers, domainauth.RoleCompany)
	add(cfg.JobseekerUsers, domainauth.RoleJobseeker)
	return out
}

// Run writes the configured assignments and reports how many were seeded.
// With devUser set and not otherwise listed, that user is seeded as admin so a
// fresh development database can reach every dashboard.
func Run(ctx context.Context, repo RoleWriter, cfg config.RoleConfig, devUser string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rows := Assignments(cfg)
	if devUser != "" && !listed(rows, devUser) {
		rows = append(rows, data.RoleAssignment{UserID: devUser, Role: domainauth.RoleAdmin})
	}
	if len(rows) == 0 {
		logger.InfoContext(ctx, "no role assignments to seed")
		return 0, nil
	}

	if err := repo.AssignMany(ctx, rows); err != nil {
		return 0, fmt.Errorf("seed role assignments: %w", err)
	}
	for _, r := range rows {
		logger.DebugContext(ctx, "seeded role", "user_id", r.UserID, "role", r.Role)
	}
	logger.InfoContext(ctx, "seeded role assignments", "count", len(rows))
	return len(rows), nil
}

func listed(rows []data.RoleAssignment, userID string) bool {
	for _, r := range rows {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
