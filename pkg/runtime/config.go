package runtime

import (
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// Config describes how to reach PostgreSQL. URL wins over the individual
// fields when set.
type Config struct {
	URL      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
	MinConns int32

	// ConnectRetries is how many extra pings Connect makes, with backoff,
	// before giving up on a server that is still starting.
	ConnectRetries int

	// Logger receives one entry per statement when set.
	Logger *zap.Logger
	// LogLevel is a pgx trace level name (trace, debug, info, warn, error, none).
	LogLevel string
}

// DefaultConfig points at a local blog database.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "blog",
		User:     "postgres",
		SSLMode:  "prefer",
		MaxConns: 10,
		MinConns: 2,
		LogLevel: "warn",
	}
}

// ConnString returns URL, or a postgres:// URL assembled from the fields.
func (c *Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}

	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + strconv.Itoa(port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	switch {
	case c.User != "" && c.Password != "":
		u.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		u.User = url.User(c.User)
	}
	return u.String()
}
