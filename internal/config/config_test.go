package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestParseArgs_FlagsAndEnv(t *testing.T) {
	t.Setenv("CONFIG", "")
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("JWT_SECRET", "")

	opts, err := ParseArgs([]string{"-d", "postgres://x", "-s", "secret", "-c", ""})
	if err != nil {
		t.Fatalf("ParseArgs error: %v", err)
	}
	if opts.Port != ":9090" {
		t.Errorf("Port = %q; want env override :9090", opts.Port)
	}
	if opts.DatabaseDSN != "postgres://x" {
		t.Errorf("DatabaseDSN = %q", opts.DatabaseDSN)
	}
	if opts.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL = %v; want 24h", opts.TokenTTL)
	}
	if !reflect.DeepEqual(opts.AllowedOrigins, []string{"http://localhost:3000"}) {
		t.Errorf("AllowedOrigins = %v", opts.AllowedOrigins)
	}
}

func TestParseArgs_ConfigFile(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", "")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("JWT_SECRET", "")

	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"address":"0.0.0.0:7000","database_dsn":"dsn-from-file","jwt_secret":"file-secret","allowed_origins":["https://app"]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG", path)

	opts, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs error: %v", err)
	}
	if opts.Port != "0.0.0.0:7000" || opts.DatabaseDSN != "dsn-from-file" || opts.JWTSecret != "file-secret" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if !reflect.DeepEqual(opts.AllowedOrigins, []string{"https://app"}) {
		t.Errorf("AllowedOrigins = %v", opts.AllowedOrigins)
	}
}

func TestParseArgs_MissingSecret(t *testing.T) {
	t.Setenv("CONFIG", "")
	t.Setenv("JWT_SECRET", "")
	if _, err := ParseArgs([]string{"-c", ""}); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestParseArgs_BadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG", path)
	if _, err := ParseArgs([]string{"-s", "x"}); err == nil {
		t.Fatal("expected parse error for malformed config")
	}
}

func TestClientLoad(t *testing.T) {
	dir := t.TempDir()
	c := DefaultClient()
	c.Config = filepath.Join(dir, "config.json")
	if err := os.WriteFile(c.Config, []byte(`{"url":"http://remote:1","backend":"sqlite"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOPHSPEND_URL", "")
	t.Setenv("GOPHSPEND_BACKEND", "")
	t.Setenv("GOPHSPEND_STORE", filepath.Join(dir, "db.sqlite"))

	if err := c.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if c.ServerURL != "http://remote:1" {
		t.Errorf("ServerURL = %q", c.ServerURL)
	}
	if c.Backend != BackendSQLite {
		t.Errorf("Backend = %q", c.Backend)
	}
	if c.StorePath != filepath.Join(dir, "db.sqlite") {
		t.Errorf("StorePath = %q", c.StorePath)
	}
}

func TestClientLoad_UnknownBackend(t *testing.T) {
	c := DefaultClient()
	c.Config = ""
	t.Setenv("GOPHSPEND_BACKEND", "redis")
	if err := c.Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestParseArgs_TLSNeedsBothFiles(t *testing.T) {
	t.Setenv("CONFIG", "")
	t.Setenv("JWT_SECRET", "x")
	if _, err := ParseArgs([]string{"-c", "", "-cert", "server.crt"}); err == nil {
		t.Fatal("expected error for -cert without -key")
	}

	opts, err := ParseArgs([]string{"-c", "", "-cert", "server.crt", "-key", "server.key"})
	if err != nil {
		t.Fatalf("ParseArgs error: %v", err)
	}
	if !reflect.DeepEqual(opts.TLSHosts, []string{"localhost", "127.0.0.1"}) {
		t.Errorf("TLSHosts = %v", opts.TLSHosts)
	}
}
