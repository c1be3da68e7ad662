// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string

	// RedisAddr is the Redis address used for the per-user handshake lock.
	// Empty means the in-process lock is used instead.
	RedisAddr string

	// PortalBaseURL is the portal root, e.g. "https://portal.example.edu/student".
	PortalBaseURL string

	// Config is the path to the Config file.
	Config string

	// LockTTLSeconds bounds how long a crashed handshake can hold the lock.
	LockTTLSeconds int

	// CooldownMinutes is the lockout window after repeated login failures.
	CooldownMinutes int

	// SyncTimeoutSeconds is the wall-clock budget for one full sync.
	SyncTimeoutSeconds int

	// HTTPTimeoutSeconds is the per-request timeout against the portal.
	HTTPTimeoutSeconds int
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.RedisAddr, "r", "", "redis address for session locks")
	flag.StringVar(&options.PortalBaseURL, "p", "", "portal base url")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	flag.IntVar(&options.LockTTLSeconds, "lock-ttl", 30, "handshake lock ttl in seconds")
	flag.IntVar(&options.CooldownMinutes, "cooldown", 20, "login failure cooldown in minutes")
	flag.IntVar(&options.SyncTimeoutSeconds, "sync-timeout", 45, "full sync budget in seconds")
	flag.IntVar(&options.HTTPTimeoutSeconds, "http-timeout", 20, "portal request timeout in seconds")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		options.RedisAddr = redisAddr
	}
	if portalURL := os.Getenv("PORTAL_BASE_URL"); portalURL != "" {
		options.PortalBaseURL = portalURL
	}

	return options
}

// LockTTL returns the handshake lock TTL as a duration.
func (o *Options) LockTTL() time.Duration {
	return time.Duration(o.LockTTLSeconds) * time.Second
}

// Cooldown returns the login failure cooldown window as a duration.
func (o *Options) Cooldown() time.Duration {
	return time.Duration(o.CooldownMinutes) * time.Minute
}

// SyncTimeout returns the full sync budget as a duration.
func (o *Options) SyncTimeout() time.Duration {
	return time.Duration(o.SyncTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the portal request timeout as a duration.
func (o *Options) HTTPTimeout() time.Duration {
	return time.Duration(o.HTTPTimeoutSeconds) * time.Second
}
