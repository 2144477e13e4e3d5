package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/jonwraymond/dhivatar/secret"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, used, err := Load(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if used != "" {
		t.Errorf("config file used = %q, want none", used)
	}
	want := Default()
	if cfg.Server.Addr != want.Server.Addr || cfg.Cache.Dir != want.Cache.Dir {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
	if !slices.Equal(cfg.Cache.Buckets, want.Cache.Buckets) {
		t.Errorf("buckets = %v, want %v", cfg.Cache.Buckets, want.Cache.Buckets)
	}
	if cfg.Render.Timeout != want.Render.Timeout {
		t.Errorf("render.timeout = %v, want %v", cfg.Render.Timeout, want.Render.Timeout)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DHIVATAR_TEST_ROOT", dir)
	t.Setenv("DHIVATAR_SERVER_ADDR", ":9090")
	t.Setenv("DHIVATAR_CACHE_OVERFLOW", "reject")

	path := writeFile(t, dir, "dhivatar.yaml", `
server:
  addr: ":8080"
  max_name_length: 32
cache:
  dir: ${DHIVATAR_TEST_ROOT}/caches
  buckets: [64, 128]
  write_breaker:
    reset_timeout: 2m
render:
  timeout: 750ms
observe:
  log_level: debug
`)

	cfg, used, err := Load(context.Background(), Options{File: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if used != path {
		t.Errorf("config file used = %q, want %q", used, path)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("server.addr = %q, env should win", cfg.Server.Addr)
	}
	if cfg.Server.MaxNameLength != 32 {
		t.Errorf("server.max_name_length = %d", cfg.Server.MaxNameLength)
	}
	if cfg.Cache.Dir != filepath.Join(dir, "caches") {
		t.Errorf("cache.dir = %q", cfg.Cache.Dir)
	}
	if !slices.Equal(cfg.Cache.Buckets, []int{64, 128}) {
		t.Errorf("cache.buckets = %v", cfg.Cache.Buckets)
	}
	if cfg.Cache.Overflow != "reject" {
		t.Errorf("cache.overflow = %q", cfg.Cache.Overflow)
	}
	if cfg.Cache.WriteBreaker.ResetTimeout != 2*time.Minute || !cfg.Cache.WriteBreaker.Enabled {
		t.Errorf("cache.write_breaker = %+v", cfg.Cache.WriteBreaker)
	}
	if cfg.Render.Timeout != 750*time.Millisecond {
		t.Errorf("render.timeout = %v", cfg.Render.Timeout)
	}
	if cfg.Observe.LogLevel != "debug" || cfg.Observe.Metrics != "prometheus" {
		t.Errorf("observe = %+v", cfg.Observe)
	}
}

func TestLoad_ResolvesCredentials(t *testing.T) {
	dir := t.TempDir()
	secretPath := writeFile(t, dir, "jwt", "0123456789abcdef0123456789abcdef\n")
	t.Setenv("DHIVATAR_TEST_OPS_KEY", "ops-key")

	path := writeFile(t, dir, "dhivatar.yaml", `
auth:
  jwt_secret: secretref:file:`+secretPath+`
  api_keys:
    ops: ${DHIVATAR_TEST_OPS_KEY}
`)

	cfg, _, err := Load(context.Background(), Options{File: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("jwt_secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.APIKeys["ops"] != "ops-key" {
		t.Errorf("api_keys = %v", cfg.Auth.APIKeys)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"unset env in dir", "cache:\n  dir: ${DHIVATAR_TEST_NOPE}/c\n", secret.ErrMissingEnv},
		{"unknown backend", "cache:\n  backend: s3\n", ErrUnknownBackend},
		{"unknown secret provider", "auth:\n  jwt_secret: secretref:vault:x\n", secret.ErrUnknownProvider},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "c"+string(rune('a'+i))+".yaml", tt.body)
			_, _, err := Load(context.Background(), Options{File: path})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, _, err := Load(context.Background(), Options{File: filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Error("Load() with missing explicit file should fail")
	}
}

func TestLoad_FlagsOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DHIVATAR_SERVER_ADDR", ":9090")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("addr", ":8000", "")
	fs.String("cache-dir", "caches", "")
	if err := fs.Parse([]string{"--addr", ":7070"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg, _, err := Load(context.Background(), Options{Flags: map[string]*pflag.Flag{
		"server.addr": fs.Lookup("addr"),
		"cache.dir":   fs.Lookup("cache-dir"),
	}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("server.addr = %q, want flag value", cfg.Server.Addr)
	}
	if cfg.Cache.Dir != "caches" {
		t.Errorf("cache.dir = %q, unset flag should fall through", cfg.Cache.Dir)
	}
}
