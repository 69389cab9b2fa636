package hconn

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hwire/hconn/internal/http1"
	"github.com/hwire/hconn/internal/pool"
)

// EnvPrefix prefixes the environment variables read by LoadConfig, e.g.
// HCONN_MAX_IDLE_CONNS.
const EnvPrefix = "HCONN"

// Config is the file and environment form of the client settings. Durations
// accept strings such as "90s".
type Config struct {
	MaxIdleConns           int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
	MaxIdleConnsPerHost    int           `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host" validate:"gte=-1"`
	IdleConnTimeout        time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout" validate:"gte=0"`
	DialTimeout            time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" validate:"gte=0"`
	TLSHandshakeTimeout    time.Duration `mapstructure:"tls_handshake_timeout" yaml:"tls_handshake_timeout" validate:"gte=0"`
	MaxResponseHeaderBytes int           `mapstructure:"max_response_header_bytes" yaml:"max_response_header_bytes" validate:"gte=0"`
	MaxResponseHeaders     int           `mapstructure:"max_response_headers" yaml:"max_response_headers" validate:"gte=0"`
	ProxyURL               string        `mapstructure:"proxy_url" yaml:"proxy_url" validate:"omitempty,url"`
	TLSFingerprint         string        `mapstructure:"tls_fingerprint" yaml:"tls_fingerprint" validate:"omitempty,oneof=chrome firefox safari ios edge randomized"`
	InsecureSkipVerify     bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	ForceHTTP1             bool          `mapstructure:"force_http1" yaml:"force_http1"`
	DisableKeepAlives      bool          `mapstructure:"disable_keep_alives" yaml:"disable_keep_alives"`
	AutoDecode             bool          `mapstructure:"auto_decode" yaml:"auto_decode"`
	UserAgent              string        `mapstructure:"user_agent" yaml:"user_agent"`
	Debug                  bool          `mapstructure:"debug" yaml:"debug"`
}

// DefaultConfig returns the settings NewClient starts from.
func DefaultConfig() *Config {
	return &Config{
		MaxIdleConns:           100,
		MaxIdleConnsPerHost:    pool.DefaultMaxIdlePerKey,
		IdleConnTimeout:        90 * time.Second,
		DialTimeout:            30 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		MaxResponseHeaderBytes: http1.DefaultMaxHeadBytes,
		MaxResponseHeaders:     http1.DefaultMaxHeaders,
		AutoDecode:             true,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks c against its field constraints.
func (c *Config) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("hconn: invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", e.Field(), e.Tag()))
	}
	return fmt.Errorf("hconn: invalid config: %s", strings.Join(msgs, ", "))
}

// LoadConfig reads a Config from the YAML file at path, if path is not
// empty, then from the environment. Variables in envFiles are loaded into
// the environment first without overriding variables already set. Unset
// fields keep their DefaultConfig values.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("hconn: loading env files: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("hconn: reading config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("hconn: decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key with viper, which is also what lets
// AutomaticEnv find them on Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("max_idle_conns", d.MaxIdleConns)
	v.SetDefault("max_idle_conns_per_host", d.MaxIdleConnsPerHost)
	v.SetDefault("idle_conn_timeout", d.IdleConnTimeout)
	v.SetDefault("dial_timeout", d.DialTimeout)
	v.SetDefault("tls_handshake_timeout", d.TLSHandshakeTimeout)
	v.SetDefault("max_response_header_bytes", d.MaxResponseHeaderBytes)
	v.SetDefault("max_response_headers", d.MaxResponseHeaders)
	v.SetDefault("proxy_url", d.ProxyURL)
	v.SetDefault("tls_fingerprint", d.TLSFingerprint)
	v.SetDefault("insecure_skip_verify", d.InsecureSkipVerify)
	v.SetDefault("force_http1", d.ForceHTTP1)
	v.SetDefault("disable_keep_alives", d.DisableKeepAlives)
	v.SetDefault("auto_decode", d.AutoDecode)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("debug", d.Debug)
}
