// Package config provides functionality for managing configuration options
// for the server and the client using command-line flags, an optional JSON
// config file and environment variables, applied in that order.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Options holds the configuration values for the document store server.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address"`

	// DatabaseDSN holds the PostgreSQL connection string.
	DatabaseDSN string `json:"database_dsn"`

	// JWTSecret signs session tokens.
	JWTSecret string `json:"jwt_secret"`

	// TokenTTL is how long issued sessions stay valid.
	TokenTTL time.Duration `json:"-"`

	// AllowedOrigins lists CORS origins for browser clients.
	AllowedOrigins []string `json:"allowed_origins"`

	// TombstoneRetention is how long soft-deleted documents are kept.
	TombstoneRetention time.Duration `json:"-"`

	// TLSCert and TLSKey enable HTTPS when both are set. Missing files are
	// filled with a self-signed certificate for TLSHosts.
	TLSCert  string   `json:"tls_cert"`
	TLSKey   string   `json:"tls_key"`
	TLSHosts []string `json:"tls_hosts"`

	// LogLevel is passed to logger.Init.
	LogLevel string `json:"log_level"`

	// Config is the path to the Config file.
	Config string `json:"-"`
}

// Parse parses os.Args and the environment. It exits the process on invalid
// configuration.
func Parse() *Options {
	opts, err := ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return opts
}

// ParseArgs parses the given command-line arguments, then the JSON config
// file if one exists, then environment overrides.
func ParseArgs(args []string) (*Options, error) {
	options := &Options{}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.JWTSecret, "s", "", "jwt signing secret")
	fs.DurationVar(&options.TokenTTL, "ttl", 24*time.Hour, "session token lifetime")
	fs.DurationVar(&options.TombstoneRetention, "retention", 30*24*time.Hour, "how long deleted documents are kept")
	fs.StringVar(&options.LogLevel, "l", "info", "log level")
	fs.StringVar(&options.TLSCert, "cert", "", "TLS certificate file (enables HTTPS together with -key)")
	fs.StringVar(&options.TLSKey, "key", "", "TLS private key file")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if err := loadJSON(options.Config, options); err != nil {
		return nil, err
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		options.JWTSecret = secret
	}
	if len(options.TLSHosts) == 0 {
		options.TLSHosts = []string{"localhost", "127.0.0.1"}
	}
	if (options.TLSCert == "") != (options.TLSKey == "") {
		return nil, fmt.Errorf("tls needs both -cert and -key")
	}
	if len(options.AllowedOrigins) == 0 {
		options.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if options.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required (-s or JWT_SECRET)")
	}
	return options, nil
}

// Backend names for the client's local store.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Client holds the configuration values for the command line client.
type Client struct {
	// ServerURL is the document store base URL.
	ServerURL string `json:"url"`
	// StorePath is the local store file (JSON or SQLite database).
	StorePath string `json:"store"`
	// Backend selects the local store implementation.
	Backend string `json:"backend"`
	// SessionPath is where the login session is persisted.
	SessionPath string `json:"session"`
	// CACert is a PEM bundle trusted for an https ServerURL in addition to
	// the system roots.
	CACert string `json:"ca_cert"`
	// LogFile receives client logs; empty means stderr.
	LogFile  string `json:"log_file"`
	LogLevel string `json:"log_level"`
	// ProbeInterval is how often connectivity is checked.
	ProbeInterval time.Duration `json:"-"`
	// DrainInterval is how often the outbox is drained while online.
	DrainInterval time.Duration `json:"-"`
	// Config is the path to the Config file.
	Config string `json:"-"`
}

// DefaultClient returns client options rooted at ~/.gophspend.
func DefaultClient() *Client {
	dir := ".gophspend"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".gophspend")
	}
	return &Client{
		ServerURL:     "http://localhost:8080",
		StorePath:     filepath.Join(dir, "storage.json"),
		Backend:       BackendFile,
		SessionPath:   filepath.Join(dir, "session.json"),
		LogLevel:      "info",
		ProbeInterval: 5 * time.Second,
		DrainInterval: 30 * time.Second,
		Config:        filepath.Join(dir, "config.json"),
	}
}

// Load applies the JSON config file and then environment overrides on top
// of the values already in c.
func (c *Client) Load() error {
	if err := loadJSON(c.Config, c); err != nil {
		return err
	}
	if v := os.Getenv("GOPHSPEND_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("GOPHSPEND_STORE"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("GOPHSPEND_BACKEND"); v != "" {
		c.Backend = v
	}
	if c.Backend != BackendFile && c.Backend != BackendSQLite {
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

func loadJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}
