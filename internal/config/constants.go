package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Default rate limiting per acting user
const DefaultRateLimitPerMin = 120

// Upper bound on topK accepted from clients
const MaxTopK = 50

// Upper bound on a shared ranking run, covering every provider attempt and
// its backoff
const MatchRankBudget = 30 * time.Second

// ServiceName identifies this server in traces and metrics.
const ServiceName = "connect-server"

// Sessions marked missed per sweep
const MissedSweepBatchSize = 100
