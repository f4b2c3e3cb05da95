package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "usagelog.toml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write cfg: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.FlushSchedule != "@every 30s" {
		t.Fatalf("flush_schedule = %q", cfg.Client.FlushSchedule)
	}
	if cfg.Client.TokenTTL != 5*time.Minute {
		t.Fatalf("token_ttl = %v", cfg.Client.TokenTTL)
	}
	if cfg.Server.Listen != ":8080" || cfg.Server.BasePath != "/api" {
		t.Fatalf("server defaults: %+v", cfg.Server)
	}
	if cfg.Log.MaxSizeMB != 10 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 7 {
		t.Fatalf("log defaults: %+v", cfg.Log)
	}
}

func TestLoadFile(t *testing.T) {
	p := writeTOML(t, `
[client]
app = "annotator"
version = "2.1.0"
sink = "clickhouse://default:@localhost:9000/default?table=usage"
flush_schedule = "*/5 * * * *"
flush_timeout = "10s"

[server]
listen = "127.0.0.1:7000"
base_path = "/collect"
sink = "postgres://u:p@db:5432/logs?sslmode=disable"
jwt_secret = "k"
strict_types = true

[metrics]
enabled = true
listen = ":9100"

[log]
level = "debug"
format = "json"
file = "/var/log/usagelog.log"
compress = true
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.App != "annotator" || cfg.Client.Version != "2.1.0" {
		t.Fatalf("client: %+v", cfg.Client)
	}
	if cfg.Client.FlushTimeout != 10*time.Second {
		t.Fatalf("flush_timeout = %v", cfg.Client.FlushTimeout)
	}
	if !strings.HasPrefix(cfg.Client.Sink, "clickhouse://") {
		t.Fatalf("sink = %q", cfg.Client.Sink)
	}
	if cfg.Server.Listen != "127.0.0.1:7000" || !cfg.Server.StrictTypes || cfg.Server.JWTSecret != "k" {
		t.Fatalf("server: %+v", cfg.Server)
	}
	// untouched keys keep defaults
	if cfg.Server.MaxBodyBytes != 4<<20 {
		t.Fatalf("max_body_bytes = %d", cfg.Server.MaxBodyBytes)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9100" {
		t.Fatalf("metrics: %+v", cfg.Metrics)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || !cfg.Log.Compress || cfg.Log.MaxBackups != 3 {
		t.Fatalf("log: %+v", cfg.Log)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	p := writeTOML(t, "[client]\nsink = \"memory://\"\n")
	t.Setenv("USAGELOG_CLIENT_SINK", "http://collector:8080/api/logs")
	t.Setenv("USAGELOG_SERVER_JWT_SECRET", "from-env")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.Sink != "http://collector:8080/api/logs" {
		t.Fatalf("env must override file, got %q", cfg.Client.Sink)
	}
	if cfg.Server.JWTSecret != "from-env" {
		t.Fatalf("jwt_secret = %q", cfg.Server.JWTSecret)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := writeTOML(t, "[client\nsink=")
	if _, err := Load(bad); err == nil {
		t.Fatal("expected parse error")
	}

	invalid := writeTOML(t, `
[log]
level = "loud"
format = "xml"

[metrics]
enabled = true
listen = ""
`)
	_, err := Load(invalid)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log level", "log format", "metrics.listen"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q should mention %q", err, want)
		}
	}
}

func TestValidateEmptySinks(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "client.sink") || !strings.Contains(err.Error(), "server.sink") {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestLoadServerTLS(t *testing.T) {
	p := writeTOML(t, `
[server.tls]
enabled = true
dir = "/etc/usagelog/tls"
auto_generate = true
dns_names = ["collector.internal", "localhost"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tc := cfg.Server.TLS
	if !tc.Enabled || !tc.AutoGenerate || tc.Dir != "/etc/usagelog/tls" {
		t.Fatalf("tls: %+v", tc)
	}
	if tc.MinVersion != "1.2" || len(tc.DNSNames) != 2 {
		t.Fatalf("tls: %+v", tc)
	}

	broken := writeTOML(t, "[server.tls]\nenabled = true\ncert_file = \"a.crt\"\n")
	if _, err := Load(broken); err == nil || !strings.Contains(err.Error(), "key_file") {
		t.Fatalf("expected cert/key pairing error, got %v", err)
	}
}

func TestLoadExpandsVariables(t *testing.T) {
	t.Setenv("USAGELOG_TEST_PGPASS", "pa$$")
	p := writeTOML(t, `
[server]
sink = "postgres://u:${USAGELOG_TEST_PGPASS}@db:5432/logs"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Sink != "postgres://u:pa$$@db:5432/logs" {
		t.Fatalf("sink = %q", cfg.Server.Sink)
	}

	missing := writeTOML(t, "[client]\nsink = \"http://${USAGELOG_TEST_UNSET_HOST}/api/logs\"\n")
	_, err = Load(missing)
	if err == nil || !strings.Contains(err.Error(), "client.sink references undefined variable ${USAGELOG_TEST_UNSET_HOST}") {
		t.Fatalf("unexpected: %v", err)
	}
}
