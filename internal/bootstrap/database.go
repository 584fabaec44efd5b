package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joblink/joblink-web/config"
	"github.com/joblink/joblink-web/internal/data"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

// ConnectDB opens the Postgres pool and verifies it with a ping.
func ConnectDB(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Role lookups are short single-row reads; a small pool is plenty.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database connected",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Name,
		)
	}
	return db, nil
}

// RunMigrations applies pending schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}

// redisMode selects which go-redis client a RedisConfig produces.
type redisMode int

const (
	redisDirect redisMode = iota
	redisSentinel
	redisCluster
)

func (m redisMode) String() string {
	switch m {
	case redisSentinel:
		return "sentinel"
	case redisCluster:
		return "cluster"
	default:
		return "direct"
	}
}

// ConnectRedis builds a direct, sentinel or cluster client and verifies it with a ping.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	mode, opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch mode {
	case redisCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case redisSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis (%s): %w", mode, pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "redis connected", "mode", mode.String(), "addr", describeRedis(mode, opts))
	}
	return client, nil
}

// redisOptions normalises RedisConfig into go-redis universal options.
// URI may be a bare host:port or a redis:// / rediss:// URL carrying credentials and TLS.
func redisOptions(cfg config.RedisConfig) (redisMode, *redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	switch {
	case cfg.UseCluster:
		opts.Addrs = normalizeAddrs(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 {
			if err := applyURI(opts, cfg.URI); err != nil {
				return 0, nil, fmt.Errorf("parse redis cluster url: %w", err)
			}
		}
		if len(opts.Addrs) == 0 {
			return 0, nil, errors.New("redis cluster configuration requires at least one address")
		}
		// Cluster mode has a single logical database.
		opts.DB = 0
		return redisCluster, opts, nil

	case cfg.UseSentinel:
		opts.Addrs = normalizeAddrs(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return 0, nil, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		opts.MasterName = strings.TrimSpace(cfg.SentinelMasterName)
		if opts.MasterName == "" {
			return 0, nil, errors.New("redis sentinel configuration requires a master name")
		}
		opts.SentinelPassword = cfg.SentinelPassword
		return redisSentinel, opts, nil

	default:
		if strings.TrimSpace(cfg.URI) == "" {
			return 0, nil, errors.New("redis direct configuration requires a URI")
		}
		if err := applyURI(opts, cfg.URI); err != nil {
			return 0, nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redisDirect, opts, nil
	}
}

func applyURI(opts *redis.UniversalOptions, raw string) error {
	uri := strings.TrimSpace(raw)
	if uri == "" {
		return nil
	}
	if !isRedisURL(uri) {
		opts.Addrs = []string{uri}
		return nil
	}
	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return err
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	if parsed.DB != 0 {
		opts.DB = parsed.DB
	}
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

func describeRedis(mode redisMode, opts *redis.UniversalOptions) string {
	if mode == redisSentinel {
		return "sentinel:" + opts.MasterName
	}
	addrs := make([]string, 0, len(opts.Addrs))
	for _, a := range opts.Addrs {
		addrs = append(addrs, redactAddr(a))
	}
	return strings.Join(addrs, ",")
}

func redactAddr(addr string) string {
	if u, err := url.Parse(addr); err == nil && u.User != nil {
		return u.Redacted()
	}
	if i := strings.LastIndex(addr, "@"); i > -1 {
		return addr[i+1:]
	}
	return addr
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}
