// Package config loads client and development-server settings from a YAML
// file, the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Credential transports.
const (
	TransportQuery  = "query"
	TransportHeader = "header"
	TransportFrame  = "frame"
)

const (
	DefaultEndpoint   = "wss://trilex-1.onrender.com/ws/socket/"
	DefaultAPIBaseURL = "https://trilex-1.onrender.com"
)

type Reconnect struct {
	MaxAttempts     int           `yaml:"max_attempts"     env:"TRILEX_RECONNECT_MAX_ATTEMPTS"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"TRILEX_RECONNECT_INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval"     env:"TRILEX_RECONNECT_MAX_INTERVAL"`
}

type Archive struct {
	// Driver is "", "sqlite" or "mongo".
	Driver string `yaml:"driver" env:"TRILEX_ARCHIVE_DRIVER"`
	Path   string `yaml:"path"   env:"TRILEX_ARCHIVE_PATH"`

	MongoURI         string        `yaml:"mongo_uri"         env:"TRILEX_ARCHIVE_MONGO_URI"`
	MongoDatabase    string        `yaml:"mongo_database"    env:"TRILEX_ARCHIVE_MONGO_DATABASE"`
	MinPoolSize      uint64        `yaml:"min_pool_size"     env:"TRILEX_ARCHIVE_MIN_POOL_SIZE"`
	MaxPoolSize      uint64        `yaml:"max_pool_size"     env:"TRILEX_ARCHIVE_MAX_POOL_SIZE"`
	OperationTimeout time.Duration `yaml:"operation_timeout" env:"TRILEX_ARCHIVE_OPERATION_TIMEOUT"`
}

type Server struct {
	Addr string `yaml:"addr" env:"TRILEX_SERVER_ADDR"`
}

type Config struct {
	Endpoint            string        `yaml:"endpoint"             env:"TRILEX_WS_ENDPOINT"`
	APIBaseURL          string        `yaml:"api_base_url"         env:"TRILEX_API_BASE_URL"`
	Token               string        `yaml:"token"                env:"TRILEX_ACCESS_TOKEN"`
	CredentialTransport string        `yaml:"credential_transport" env:"TRILEX_CREDENTIAL_TRANSPORT"`
	HandshakeTimeout    time.Duration `yaml:"handshake_timeout"    env:"TRILEX_HANDSHAKE_TIMEOUT"`
	WriteTimeout        time.Duration `yaml:"write_timeout"        env:"TRILEX_WRITE_TIMEOUT"`
	LogLevel            string        `yaml:"log_level"            env:"TRILEX_LOG_LEVEL"`
	MetricsCSV          string        `yaml:"metrics_csv"          env:"TRILEX_METRICS_CSV"`

	Reconnect Reconnect `yaml:"reconnect"`
	Archive   Archive   `yaml:"archive"`
	Server    Server    `yaml:"server"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Endpoint:            DefaultEndpoint,
		APIBaseURL:          DefaultAPIBaseURL,
		CredentialTransport: TransportQuery,
		HandshakeTimeout:    10 * time.Second,
		WriteTimeout:        5 * time.Second,
		LogLevel:            "info",
		Reconnect: Reconnect{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
		},
		Archive: Archive{
			MongoDatabase:    "trilex",
			MaxPoolSize:      10,
			OperationTimeout: 5 * time.Second,
		},
		Server: Server{Addr: ":8080"},
	}
}

// Load reads a YAML config file over the defaults and applies the
// TRILEX_* environment overlay. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// BindFlags registers flags that override cfg in place once fs is parsed.
func BindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "realtime websocket endpoint")
	fs.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "REST API base URL")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "bearer access token")
	fs.StringVar(&cfg.CredentialTransport, "credential-transport", cfg.CredentialTransport, "query, header or frame")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.MetricsCSV, "metrics-csv", cfg.MetricsCSV, "write per-frame metrics to this CSV file")
	fs.IntVar(&cfg.Reconnect.MaxAttempts, "reconnect", cfg.Reconnect.MaxAttempts, "maximum automatic reconnect attempts (0 disables)")
	fs.StringVar(&cfg.Archive.Driver, "archive", cfg.Archive.Driver, "history archive driver: sqlite or mongo")
	fs.StringVar(&cfg.Archive.Path, "archive-path", cfg.Archive.Path, "sqlite archive file")
	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "development server listen address")
}

// ParseFlags loads the file named by -config, applies the environment and
// then the flags in args. Callers register their own flags on fs first.
func ParseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	path := configPath(args)
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	fs.String("config", path, "path to YAML config file")
	BindFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// configPath finds -config ahead of the full parse, since the file has to
// be loaded before flags override it.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--" || !strings.HasPrefix(arg, "-") {
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint scheme must be ws or wss, got %q", u.Scheme)
	}

	switch c.CredentialTransport {
	case TransportQuery, TransportHeader, TransportFrame:
	default:
		return fmt.Errorf("unknown credential transport %q", c.CredentialTransport)
	}

	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must not be negative")
	}

	switch c.Archive.Driver {
	case "":
	case "sqlite":
		if strings.TrimSpace(c.Archive.Path) == "" {
			return errors.New("archive.path is required for the sqlite archive")
		}
	case "mongo":
		if strings.TrimSpace(c.Archive.MongoURI) == "" {
			return errors.New("archive.mongo_uri is required for the mongo archive")
		}
	default:
		return fmt.Errorf("unknown archive driver %q", c.Archive.Driver)
	}
	return nil
}
