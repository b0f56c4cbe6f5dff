package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lobstore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Auth.Mode != AuthModeNone {
		t.Errorf("auth mode = %q", cfg.Auth.Mode)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
  shutdown_timeout: 10s
store:
  backend: file
  dir: /var/lib/lobstore
auth:
  mode: jwt
  jwt_secret: "0123456789abcdef0123456789abcdef"
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown_timeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Store.Backend != BackendFile || cfg.Store.Dir != "/var/lib/lobstore" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Auth.Mode != AuthModeJWT {
		t.Errorf("auth mode = %q", cfg.Auth.Mode)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: memory
`)
	t.Setenv("LOBSTORE_BACKEND", "file")
	t.Setenv("LOBSTORE_DIR", t.TempDir())
	t.Setenv("LOBSTORE_LISTEN_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != BackendFile {
		t.Errorf("backend = %q, want file", cfg.Store.Backend)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
}

func TestPortEnv(t *testing.T) {
	t.Setenv("PORT", "3000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":3000" {
		t.Errorf("listen_addr = %q, want :3000", cfg.Server.ListenAddr)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown backend",
			yaml: "store:\n  backend: tape\n",
			want: "oneof",
		},
		{
			name: "file backend without dir",
			yaml: "store:\n  backend: file\n",
			want: "required_if",
		},
		{
			name: "postgres backend without dsn",
			yaml: "store:\n  backend: postgres\n",
			want: "required_if",
		},
		{
			name: "s3 backend without bucket",
			yaml: "store:\n  backend: s3\n",
			want: "required_if",
		},
		{
			name: "jwt mode without secret",
			yaml: "auth:\n  mode: jwt\n",
			want: "required_if",
		},
		{
			name: "jwt secret too short",
			yaml: "auth:\n  mode: jwt\n  jwt_secret: short\n",
			want: "min",
		},
		{
			name: "bad log level",
			yaml: "log:\n  level: loud\n",
			want: "oneof",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load succeeded, want error for missing file")
	}
}
