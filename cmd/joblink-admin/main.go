package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joblink/joblink-web/config"
	redisadapter "github.com/joblink/joblink-web/internal/adapters/redis"
	"github.com/joblink/joblink-web/internal/bootstrap"
	"github.com/joblink/joblink-web/internal/data"
	"github.com/joblink/joblink-web/internal/devseed"
	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader

	// openDB and invalidate default to the real Postgres and Redis connections.
	openDB     func(ctx context.Context) (*sql.DB, error)
	invalidate func(ctx context.Context, userID string) error
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultRoleTimeout      = 30 * time.Second
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		In:     os.Stdin,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"migrate-status": {
			name:        "migrate-status",
			description: "List embedded migrations and whether each is applied",
			run:         runMigrateStatus,
		},
		"seed-roles": {
			name:        "seed-roles",
			description: "Write AUTH_ROLE_* user lists into the role table",
			run:         runSeedRoles,
		},
		"assign-role": {
			name:        "assign-role",
			description: "Assign a role to a user (--user, --role)",
			run:         runAssignRole,
		},
		"revoke-role": {
			name:        "revoke-role",
			description: "Remove a user's role assignment (--user)",
			run:         runRevokeRole,
		},
		"list-roles": {
			name:        "list-roles",
			description: "List role assignments, optionally filtered by --role",
			run:         runListRoles,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: joblink-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(w, "  %-16s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type timeoutOptions struct {
	Timeout time.Duration
}

type seedOptions struct {
	Timeout     time.Duration
	AllowRemote bool
}

type assignOptions struct {
	UserID  string
	Role    domainauth.Role
	Timeout time.Duration
}

type revokeOptions struct {
	UserID  string
	Yes     bool
	Timeout time.Duration
}

type listOptions struct {
	Role    domainauth.Role
	Timeout time.Duration
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseTimeoutFlags("migrate", args, defaultMigrationTimeout)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
	})
}

func runMigrateStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseTimeoutFlags("migrate-status", args, defaultRoleTimeout)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		migrations, statusErr := migrate.Status(ctx, db)
		if statusErr != nil {
			return fmt.Errorf("migration status: %w", statusErr)
		}
		return printMigrationStatus(cmdCtx.Out, migrations)
	})
}

func printMigrationStatus(out io.Writer, migrations []migrate.Migration) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Version\tApplied"); err != nil {
		return fmt.Errorf("write status header: %w", err)
	}
	pending := 0
	for _, m := range migrations {
		applied := "yes"
		if !m.Applied {
			applied = "no"
			pending++
		}
		if err := writef(w, "%s\t%s\n", m.Version, applied); err != nil {
			return fmt.Errorf("write status row %q: %w", m.Version, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush status: %w", err)
	}
	return writef(out, "\n%d pending\n", pending)
}

func runSeedRoles(cmdCtx *commandContext, args []string) error {
	opts, err := parseSeedFlags(args)
	if err != nil {
		return err
	}
	if guardErr := guardRemoteHost(cmdCtx, opts.AllowRemote, "write role assignments"); guardErr != nil {
		return guardErr
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return migrateErr
		}
		devUser := ""
		if cmdCtx.Config.Auth.Mode == config.AuthModeMock {
			devUser = cmdCtx.Config.Auth.DevAuth.UserID
		}
		n, seedErr := devseed.Run(ctx, data.NewRoleRepo(db), cmdCtx.Config.Auth.Roles, devUser, cmdCtx.Logger)
		if seedErr != nil {
			return seedErr
		}
		for _, a := range devseed.Assignments(cmdCtx.Config.Auth.Roles) {
			invalidateRole(ctx, cmdCtx, a.UserID)
		}
		if devUser != "" {
			invalidateRole(ctx, cmdCtx, devUser)
		}
		return writef(cmdCtx.Out, "seeded %d role assignment(s)\n", n)
	})
}

func runAssignRole(cmdCtx *commandContext, args []string) error {
	opts, err := parseAssignFlags(args)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		if assignErr := data.NewRoleRepo(db).Assign(ctx, opts.UserID, opts.Role); assignErr != nil {
			return fmt.Errorf("assign role: %w", assignErr)
		}
		invalidateRole(ctx, cmdCtx, opts.UserID)
		return writef(cmdCtx.Out, "assigned %s to %s\n", opts.Role, opts.UserID)
	})
}

func runRevokeRole(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(cmdCtx, opts.Yes, fmt.Sprintf("revoke the role of %s", opts.UserID)); confirmErr != nil {
		return confirmErr
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		if revokeErr := data.NewRoleRepo(db).Revoke(ctx, opts.UserID); revokeErr != nil {
			return fmt.Errorf("revoke role: %w", revokeErr)
		}
		invalidateRole(ctx, cmdCtx, opts.UserID)
		return writef(cmdCtx.Out, "revoked role of %s\n", opts.UserID)
	})
}

func runListRoles(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		rows, listErr := data.NewRoleRepo(db).List(ctx, opts.Role)
		if listErr != nil {
			return fmt.Errorf("list roles: %w", listErr)
		}
		return printRoles(cmdCtx.Out, rows)
	})
}

func printRoles(out io.Writer, rows []data.RoleAssignment) error {
	if len(rows) == 0 {
		return writeln(out, "(no role assignments)")
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(w, "User\tRole\tUpdated"); err != nil {
		return fmt.Errorf("write roles header: %w", err)
	}
	for _, r := range rows {
		if err := writef(w, "%s\t%s\t%s\n", r.UserID, r.Role, r.UpdatedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("write role row %q: %w", r.UserID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush roles: %w", err)
	}
	return writef(out, "\nTotal: %d\n", len(rows))
}

// invalidateRole drops a cached role so running servers pick up the change before the TTL.
// Failures only warn; the cache entry expires on its own.
func invalidateRole(ctx context.Context, cmdCtx *commandContext, userID string) {
	if cmdCtx.invalidate == nil {
		if cmdCtx.Config.Auth.Roles.CacheTTL <= 0 {
			return
		}
		cmdCtx.invalidate = redisInvalidator(cmdCtx)
	}
	if err := cmdCtx.invalidate(ctx, userID); err != nil {
		cmdCtx.Logger.Warn("role cache invalidation failed", "user_id", userID, "error", err)
	}
}

func redisInvalidator(cmdCtx *commandContext) func(context.Context, string) error {
	return func(ctx context.Context, userID string) error {
		client, err := bootstrap.ConnectRedis(ctx, cmdCtx.Config.Redis, cmdCtx.Logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := client.Close(); cerr != nil {
				cmdCtx.Logger.Warn("redis close failed", "error", cerr)
			}
		}()
		cache := redisadapter.NewRoleCache(client, nil, redisadapter.RoleCacheOptions{
			Prefix: cmdCtx.Config.Auth.SessionPrefix,
			TTL:    cmdCtx.Config.Auth.Roles.CacheTTL,
			Logger: cmdCtx.Logger,
		})
		return cache.Invalidate(ctx, userID)
	}
}

func parseTimeoutFlags(name string, args []string, def time.Duration) (timeoutOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := timeoutOptions{Timeout: def}
	fs.DurationVar(&opts.Timeout, "timeout", def, "Maximum duration to wait for the command to complete")
	if err := fs.Parse(args); err != nil {
		return timeoutOptions{}, err
	}
	if opts.Timeout <= 0 {
		return timeoutOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseSeedFlags(args []string) (seedOptions, error) {
	fs := flag.NewFlagSet("seed-roles", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := seedOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration for migrations and seeding")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Allow seeding a database host that does not look local")
	if err := fs.Parse(args); err != nil {
		return seedOptions{}, err
	}
	if opts.Timeout <= 0 {
		return seedOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseAssignFlags(args []string) (assignOptions, error) {
	fs := flag.NewFlagSet("assign-role", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var role string
	opts := assignOptions{Timeout: defaultRoleTimeout}
	fs.StringVar(&opts.UserID, "user", "", "User id to assign")
	fs.StringVar(&role, "role", "", "Role: jobseeker, company or admin")
	fs.DurationVar(&opts.Timeout, "timeout", defaultRoleTimeout, "Maximum duration for the update")
	if err := fs.Parse(args); err != nil {
		return assignOptions{}, err
	}

	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return assignOptions{}, errors.New("--user is required")
	}
	opts.Role = domainauth.Role(strings.ToLower(strings.TrimSpace(role)))
	if !opts.Role.Valid() {
		return assignOptions{}, fmt.Errorf("--role must be one of jobseeker, company, admin (got %q)", role)
	}
	if opts.Timeout <= 0 {
		return assignOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseRevokeFlags(args []string) (revokeOptions, error) {
	fs := flag.NewFlagSet("revoke-role", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := revokeOptions{Timeout: defaultRoleTimeout}
	fs.StringVar(&opts.UserID, "user", "", "User id whose assignment is removed")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	fs.DurationVar(&opts.Timeout, "timeout", defaultRoleTimeout, "Maximum duration for the update")
	if err := fs.Parse(args); err != nil {
		return revokeOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return revokeOptions{}, errors.New("--user is required")
	}
	if opts.Timeout <= 0 {
		return revokeOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseListFlags(args []string) (listOptions, error) {
	fs := flag.NewFlagSet("list-roles", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var role string
	opts := listOptions{Timeout: defaultRoleTimeout}
	fs.StringVar(&role, "role", "", "Only list users with this role")
	fs.DurationVar(&opts.Timeout, "timeout", defaultRoleTimeout, "Maximum duration for the query")
	if err := fs.Parse(args); err != nil {
		return listOptions{}, err
	}
	if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
		opts.Role = domainauth.Role(role)
		if !opts.Role.Valid() {
			return listOptions{}, fmt.Errorf("--role must be one of jobseeker, company, admin (got %q)", role)
		}
	}
	if opts.Timeout <= 0 {
		return listOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	open := cmdCtx.openDB
	if open == nil {
		open = func(ctx context.Context) (*sql.DB, error) {
			return bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
		}
	}
	db, err := open(ctx)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func guardRemoteHost(cmdCtx *commandContext, allow bool, action string) error {
	host := cmdCtx.Config.Postgres.Host
	if !isLikelyRemoteHost(host) {
		return nil
	}
	if !allow {
		return fmt.Errorf(
			"refusing to run against potentially remote database host %q; re-run with --allow-remote if this is intentional",
			host,
		)
	}
	if err := writef(cmdCtx.Out, "\nWARNING: database host %q does not look like a local address.\n", host); err != nil {
		return fmt.Errorf("print remote host warning: %w", err)
	}
	if err := writef(cmdCtx.Out, "This operation will %s.\nType %q to continue or press enter to abort: ", action, host); err != nil {
		return fmt.Errorf("print remote host prompt: %w", err)
	}
	if readLine(cmdCtx.In) != host {
		return errors.New("aborted by user")
	}
	return nil
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return false
	}
	if h == "localhost" || strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

func confirmAction(cmdCtx *commandContext, yes bool, action string) error {
	if yes {
		return nil
	}
	if err := writef(cmdCtx.Out, "About to %s. Continue? [y/N]: ", action); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	switch strings.ToLower(readLine(cmdCtx.In)) {
	case "y", "yes":
		return nil
	}
	return errors.New("aborted by user")
}

func readLine(in io.Reader) string {
	if in == nil {
		return ""
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return strings.TrimSpace(line)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}
