package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

var ErrConfigPathIsEmpty = errors.New("config path is empty")

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	redacted = "<redacted>"
)

type Config struct {
	App        `yaml:"app"`
	Logger     `yaml:"log"`
	Database   `yaml:"database"`
	Redis      `yaml:"redis"`
	HTTPServer `yaml:"http_server"`
	Kafka      `yaml:"kafka"`
	CRM        `yaml:"crm"`
	Sync       `yaml:"sync"`
}

type App struct {
	ServiceName string `yaml:"service_name"`
	Version     string `yaml:"version"`
	Env         string `yaml:"env"          env:"APP_ENV" env-default:"development"`
}

// IsProduction treats anything other than an explicit non-production value
// as production, so a typo never disables auth checks.
func (a App) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(a.Env)) {
	case EnvDevelopment, "dev", "local", "test", "staging":
		return false
	}

	return true
}

type Logger struct {
	Level      string   `yaml:"level"       env-default:"info"`
	FormatJSON bool     `yaml:"format_json"`
	Rotation   Rotation `yaml:"rotation"`
}

type Rotation struct {
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

type Database struct {
	Host      string    `yaml:"host"`
	Port      uint16    `yaml:"port"`
	User      string    `yaml:"user"`
	Password  string    `yaml:"password" env:"DB_PASSWORD"`
	Name      string    `yaml:"name"`
	SSLMode   string    `yaml:"ssl_mode"`
	MaxConns  int32     `yaml:"max_conns"`
	MinConns  int32     `yaml:"min_conns"`
	Migration Migration `yaml:"migration"`
}

type Migration struct {
	Path      string `yaml:"path"`
	AutoApply bool   `yaml:"auto_apply"`
}

type Redis struct {
	Enable      bool          `yaml:"enable"`
	Host        string        `yaml:"host"`
	Port        uint16        `yaml:"port"`
	Password    string        `yaml:"password"     env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db"`
	ReplayTTL   time.Duration `yaml:"replay_ttl"   env-default:"24h"`
	ReplayLease time.Duration `yaml:"replay_lease" env-default:"5m"`
}

type HTTPServer struct {
	Host           string  `yaml:"host"`
	Port           uint16  `yaml:"port"`
	BasePath       string  `yaml:"base_path"`
	MaxWebhookBody int64   `yaml:"max_webhook_body" env-default:"1048576"`
	Timeout        Timeout `yaml:"timeout"`
	CORS           CORS    `yaml:"cors"`
}

type Timeout struct {
	Request time.Duration `yaml:"request"`
	Read    time.Duration `yaml:"read"`
	Write   time.Duration `yaml:"write"`
	Idle    time.Duration `yaml:"idle"`
}

type CORS struct {
	Enabled          bool          `yaml:"enabled"`
	AllowAllOrigins  bool          `yaml:"allow_all_origins"`
	AllowOrigins     []string      `yaml:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

type Kafka struct {
	Enable   bool     `yaml:"enable"`
	Brokers  []string `yaml:"brokers"`
	Producer Producer `yaml:"producer"`
}

type Producer struct {
	Name  string `yaml:"name"`
	Topic string `yaml:"topic" env-default:"mentor-sync-events"`
}

type CRM struct {
	BaseURL            string        `yaml:"base_url"             env-default:"https://api.airtable.com"`
	BaseID             string        `yaml:"base_id"`
	TableID            string        `yaml:"table_id"`
	APIToken           string        `yaml:"api_token"            env:"CRM_API_TOKEN"`
	MinRequestInterval time.Duration `yaml:"min_request_interval" env-default:"200ms"`
	BatchSize          int           `yaml:"batch_size"           env-default:"10"`
	RequestTimeout     time.Duration `yaml:"request_timeout"      env-default:"30s"`
	SignatureHeader    string        `yaml:"signature_header"     env-default:"X-Crm-Signature"`
	WebhookSecret      string        `yaml:"webhook_secret"       env:"CRM_WEBHOOK_SECRET"`
}

type Sync struct {
	CronSecret      string        `yaml:"cron_secret"      env:"SYNC_CRON_SECRET"`
	BatchSize       int           `yaml:"batch_size"       env-default:"10"`
	MaxBatchSize    int           `yaml:"max_batch_size"   env-default:"50"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	WorkerCount     int           `yaml:"worker_count"     env-default:"1"`
	ProcessingStale time.Duration `yaml:"processing_stale" env-default:"10m"`
}

func MustLoadConfig() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		panic(err)
	}

	return cfg
}

func LoadConfig() (*Config, error) {
	path := fetchConfigPath()
	if path == "" {
		return nil, ErrConfigPathIsEmpty
	}

	return Load(path)
}

func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	var config Config

	if err := cleanenv.ReadConfig(path, &config); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return &config, nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	hide := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}

	hide(&c.Database.Password)
	hide(&c.Redis.Password)
	hide(&c.CRM.APIToken)
	hide(&c.CRM.WebhookSecret)
	hide(&c.Sync.CronSecret)

	return c
}

func MustPrintConfig(cfg *Config) {
	if err := PrintConfig(cfg); err != nil {
		panic(err)
	}
}

func PrintConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return err
	}

	println(string(data))

	return nil
}

func fetchConfigPath() string {
	var result string

	flag.StringVar(&result, "config", "", "Path to config file")
	flag.Parse()

	if result == "" {
		result = os.Getenv("CONFIG_PATH")
	}

	return result
}
