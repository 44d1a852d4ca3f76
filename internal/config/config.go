package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/logging"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		IdleTimeout     time.Duration `yaml:"idleTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Database struct {
		// mysql, postgres or sqlite
		Driver   string `yaml:"driver"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		// Path is the sqlite file, ":memory:" keeps everything in memory
		Path     string `yaml:"path"`
	} `yaml:"database"`

	Storage struct {
		// local, minio or s3
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"storage"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Engine struct {
		Workers          int   `yaml:"workers"`
		QueueSize        int   `yaml:"queueSize"`
		ParseWorkers     int   `yaml:"parseWorkers"`
		MaxUploadBytes   int64 `yaml:"maxUploadBytes"`
		MaxFiles         int   `yaml:"maxFiles"`
		MaxExpandedBytes int64 `yaml:"maxExpandedBytes"`
	} `yaml:"engine"`

	Rules camrules.Thresholds `yaml:"rules"`

	Logging logging.Config `yaml:"logging"`

	RateLimit struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`
}

// Default is the configuration used when a field is left out of the file
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.ReadTimeout = 60 * time.Second
	c.Server.WriteTimeout = 60 * time.Second
	c.Server.IdleTimeout = 120 * time.Second
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Database.Driver = "sqlite"
	c.Database.Path = "data/cam.db"
	c.Database.SSLMode = "disable"
	c.Storage.Backend = "local"
	c.Storage.Path = "data/files"
	c.Minio.Region = "us-east-1"
	c.Engine.Workers = 4
	c.Engine.QueueSize = 64
	c.Engine.ParseWorkers = 4
	c.Engine.MaxUploadBytes = 100 << 20
	c.Engine.MaxFiles = 200
	c.Engine.MaxExpandedBytes = 500 << 20
	c.Rules = camrules.Defaults()
	c.Logging = logging.Config{Level: "info", Format: "json"}
	c.RateLimit.RequestsPerSecond = 10
	c.RateLimit.Burst = 20
	c.CORS.AllowedOrigins = []string{"*"}
	return &c
}

// Load reads the yaml file at path over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q: want mysql, postgres or sqlite", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case "local", "minio", "s3":
	default:
		return fmt.Errorf("storage.backend %q: want local, minio or s3", c.Storage.Backend)
	}
	if c.Engine.Workers < 1 || c.Engine.QueueSize < 1 || c.Engine.ParseWorkers < 1 {
		return fmt.Errorf("engine workers, queueSize and parseWorkers must be positive")
	}
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

// MySQLDSN builds the go-sql-driver DSN
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection URL
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}
