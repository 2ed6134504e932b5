package config

import (
	"os"
	"strconv"
)

// Config is the custodian daemon configuration.
type Config struct {
	GRPCAddr     string
	TLSCert      string
	TLSKey       string
	AuthToken    string
	AuditBuffer  int
	RateLimitRPS int
	DataDir      string
	SealKey      string
	MetricsAddr  string
	Debug        bool
}

func Load() Config {
	return Config{
		GRPCAddr:     envOr("KEYLESS_GRPC_ADDR", ":50051"),
		TLSCert:      os.Getenv("KEYLESS_TLS_CERT"),
		TLSKey:       os.Getenv("KEYLESS_TLS_KEY"),
		AuthToken:    envOr("KEYLESS_AUTH_TOKEN", "dev-token"),
		AuditBuffer:  envInt("KEYLESS_AUDIT_BUFFER", 1024),
		RateLimitRPS: envInt("KEYLESS_RATE_LIMIT_RPS", 100),
		DataDir:      envOr("KEYLESS_DATA_DIR", ""),
		SealKey:      os.Getenv("KEYLESS_SEAL_KEY"),
		MetricsAddr:  envOr("KEYLESS_METRICS_ADDR", ":9090"),
		Debug:        Debug(),
	}
}

// Debug reports whether KEYLESS_DEBUG enables diagnostic logging: any
// value that is non-empty and does not start with '0'.
func Debug() bool {
	v := os.Getenv("KEYLESS_DEBUG")
	return v != "" && v[0] != '0'
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
