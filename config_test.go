package hconn

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hwire/hconn/internal/tests"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	tests.AssertNoError(t, cfg.Validate())
	tests.AssertEqual(t, 2, cfg.MaxIdleConnsPerHost)
	tests.AssertEqual(t, true, cfg.AutoDecode)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, DefaultConfig(), cfg)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeFile(t, "hconn.yaml", `
max_idle_conns: 10
idle_conn_timeout: 45s
tls_fingerprint: chrome
force_http1: true
auto_decode: false
`)
	cfg, err := LoadConfig(path)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, 10, cfg.MaxIdleConns)
	tests.AssertEqual(t, 45*time.Second, cfg.IdleConnTimeout)
	tests.AssertEqual(t, "chrome", cfg.TLSFingerprint)
	tests.AssertEqual(t, true, cfg.ForceHTTP1)
	tests.AssertEqual(t, false, cfg.AutoDecode)
	// untouched keys keep their defaults
	tests.AssertEqual(t, 30*time.Second, cfg.DialTimeout)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "hconn.yaml", "max_idle_conns_per_host: 4\n")
	t.Setenv("HCONN_MAX_IDLE_CONNS_PER_HOST", "8")
	t.Setenv("HCONN_DIAL_TIMEOUT", "5s")

	cfg, err := LoadConfig(path)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, 8, cfg.MaxIdleConnsPerHost)
	tests.AssertEqual(t, 5*time.Second, cfg.DialTimeout)
}

func TestLoadConfigEnvFile(t *testing.T) {
	const key = "HCONN_USER_AGENT"
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s already set", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })
	envFile := writeFile(t, ".env", key+"=from-dotenv/1\n")

	cfg, err := LoadConfig("", envFile)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "from-dotenv/1", cfg.UserAgent)

	_, err = LoadConfig("", filepath.Join(t.TempDir(), "missing.env"))
	tests.AssertErrorContains(t, err, "loading env files")
}

func TestLoadConfigInvalid(t *testing.T) {
	path := writeFile(t, "hconn.yaml", "tls_fingerprint: netscape\nmax_idle_conns: -3\n")
	_, err := LoadConfig(path)
	tests.AssertErrorContains(t, err, "TLSFingerprint")
	tests.AssertErrorContains(t, err, "MaxIdleConns")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	tests.AssertErrorContains(t, err, "reading config")
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisableKeepAlives = true
	cfg.UserAgent = "cfg/1"
	c, err := NewClientFromConfig(cfg)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, false, c.keepAlive)
	tests.AssertEqual(t, "cfg/1", c.userAgent)
	tests.AssertEqual(t, -1, c.effectivePoolConfig().MaxIdlePerKey)

	cfg = DefaultConfig()
	cfg.ProxyURL = "not a url"
	_, err = NewClientFromConfig(cfg)
	tests.AssertErrorContains(t, err, "ProxyURL")
}
