// Package ops loads the manager's process configuration: a JSON file with
// environment overrides for secrets. The config is built once in main and
// threaded through constructors.
package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

// Object store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendMinio  = "minio"
)

const (
	defaultAddr          = ":8080"
	defaultReadTimeout   = 15
	defaultWriteTimeout  = 60
	defaultShutdownGrace = 10

	defaultThetaBaseURL = "http://127.0.0.1:25510/v2"
	defaultThetaProbe   = "http://127.0.0.1:25510/v2/list/dates/stock/quote?root=AAPL"
	defaultHTTPTimeout  = 60

	defaultEarningsBaseURL = "https://api.nasdaq.com/api/calendar/earnings"

	defaultBadgerDir = "data/objects"

	defaultMinioEndpoint = "localhost:9000"
	defaultMinioBucket   = "edgelake-data"

	defaultPostgresPort = 5432

	defaultProfileServer = "http://localhost:4040"
)

// Config mirrors the JSON config layout.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Dispatch DispatchConfig `json:"dispatch"`
	Theta    ThetaConfig    `json:"theta"`
	Earnings EarningsConfig `json:"earnings"`
	Store    StoreConfig    `json:"store"`
	Catalog  CatalogConfig  `json:"catalog"`
	Retrieve RetrieveConfig `json:"retrieve"`
	Profile  ProfileConfig  `json:"profile"`
}

// ServerConfig controls the manager's HTTP listener.
type ServerConfig struct {
	Addr                 string `json:"addr"`
	ReadTimeoutSeconds   int    `json:"readTimeoutSeconds"`
	WriteTimeoutSeconds  int    `json:"writeTimeoutSeconds"`
	ShutdownGraceSeconds int    `json:"shutdownGraceSeconds"`
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

func (c ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// DispatchConfig sizes the worker pool. Zero values fall through to the
// dispatcher's own defaults.
type DispatchConfig struct {
	Workers     int `json:"workers"`
	QueueSize   int `json:"queueSize"`
	EventBuffer int `json:"eventBuffer"`
}

// ThetaConfig points at the local ThetaTerminal.
type ThetaConfig struct {
	BaseURL        string `json:"baseUrl"`
	ProbeURL       string `json:"probeUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	Attempts       int    `json:"attempts"`
}

func (c ThetaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EarningsConfig points at the earnings calendar API.
type EarningsConfig struct {
	BaseURL string `json:"baseUrl"`
}

// StoreConfig selects and configures the object store backend.
type StoreConfig struct {
	Backend string       `json:"backend"`
	Minio   MinioConfig  `json:"minio"`
	Badger  BadgerConfig `json:"badger"`
}

type MinioConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"useSsl"`
}

type BadgerConfig struct {
	Dir string `json:"dir"`
}

// CatalogConfig enables the Postgres job catalog.
type CatalogConfig struct {
	Enable   bool   `json:"enable"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// RetrieveConfig controls the retrieval scanner.
type RetrieveConfig struct {
	// OnMissing is "fail" or "skip"; empty means fail.
	OnMissing string `json:"onMissing"`
}

// ProfileConfig gates continuous profiling.
type ProfileConfig struct {
	Enable        bool   `json:"enable"`
	ServerAddress string `json:"serverAddress"`
}

// Load reads a JSON config file, applies environment overrides, fills
// defaults, and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}

	cfg.applyEnv()
	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default is the configuration a bare process starts with: local terminal,
// badger store, no catalog.
func Default() Config {
	var cfg Config
	cfg.applyEnv()

	return cfg.withDefaults()
}

// applyEnv lets secrets stay out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("EDGELAKE_MINIO_ACCESS_KEY"); v != "" {
		c.Store.Minio.AccessKey = v
	}

	if v := os.Getenv("EDGELAKE_MINIO_SECRET_KEY"); v != "" {
		c.Store.Minio.SecretKey = v
	}

	if v := os.Getenv("EDGELAKE_POSTGRES_USER"); v != "" {
		c.Catalog.User = v
	}

	if v := os.Getenv("EDGELAKE_POSTGRES_PASSWORD"); v != "" {
		c.Catalog.Password = v
	}
}

func (c Config) withDefaults() Config {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}

	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = defaultReadTimeout
	}

	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = defaultWriteTimeout
	}

	if c.Server.ShutdownGraceSeconds == 0 {
		c.Server.ShutdownGraceSeconds = defaultShutdownGrace
	}

	if c.Theta.BaseURL == "" {
		c.Theta.BaseURL = defaultThetaBaseURL
	}

	if c.Theta.ProbeURL == "" {
		c.Theta.ProbeURL = defaultThetaProbe
	}

	if c.Theta.TimeoutSeconds == 0 {
		c.Theta.TimeoutSeconds = defaultHTTPTimeout
	}

	if c.Earnings.BaseURL == "" {
		c.Earnings.BaseURL = defaultEarningsBaseURL
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendBadger
	}

	if c.Store.Badger.Dir == "" {
		c.Store.Badger.Dir = defaultBadgerDir
	}

	if c.Store.Minio.Endpoint == "" {
		c.Store.Minio.Endpoint = defaultMinioEndpoint
	}

	if c.Store.Minio.Bucket == "" {
		c.Store.Minio.Bucket = defaultMinioBucket
	}

	if c.Catalog.Port == 0 {
		c.Catalog.Port = defaultPostgresPort
	}

	if c.Profile.ServerAddress == "" {
		c.Profile.ServerAddress = defaultProfileServer
	}

	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dispatch.Workers < 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "config: workers %d", c.Dispatch.Workers)
	}

	if c.Dispatch.QueueSize < 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "config: queue size %d", c.Dispatch.QueueSize)
	}

	if c.Theta.TimeoutSeconds < 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "config: theta timeout %d", c.Theta.TimeoutSeconds)
	}

	if c.Theta.Attempts < 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "config: theta attempts %d", c.Theta.Attempts)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Store.Badger.Dir == "" {
			return errors.Wrap(exception.ErrInvalidArgument, "config: badger dir is empty")
		}
	case BackendMinio:
		if c.Store.Minio.Endpoint == "" || c.Store.Minio.Bucket == "" {
			return errors.Wrap(exception.ErrInvalidArgument, "config: minio endpoint or bucket is empty")
		}
	default:
		return errors.Wrapf(exception.ErrInvalidArgument, "config: store backend %q", c.Store.Backend)
	}

	if c.Catalog.Enable && c.Catalog.Database == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "config: catalog database is empty")
	}

	switch c.Retrieve.OnMissing {
	case "", "fail", "skip":
	default:
		return errors.Wrapf(exception.ErrInvalidArgument, "config: onMissing %q", c.Retrieve.OnMissing)
	}

	return nil
}
