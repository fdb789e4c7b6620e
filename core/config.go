package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"

	ClassifierModeLLM   = "llm"
	ClassifierModeRules = "rules"

	LedgerDriverMemory   = "memory"
	LedgerDriverSQLite   = "sqlite3"
	LedgerDriverPostgres = "postgres"
)

type WebhookConfig struct {
	Secret         string `koanf:"secret" mapstructure:"secret"`
	SecretEnvelope string `koanf:"secret_envelope" mapstructure:"secret_envelope"`
	AppKey         string `koanf:"app_key" mapstructure:"app_key"`
	// AllowUnsigned skips signature verification. Only honoured in development.
	AllowUnsigned bool `koanf:"allow_unsigned" mapstructure:"allow_unsigned"`
}

type ClassifierConfig struct {
	Mode string `koanf:"mode" mapstructure:"mode"`
}

type LLMConfig struct {
	BaseURL string `koanf:"base_url" mapstructure:"base_url"`
	APIKey  string `koanf:"api_key" mapstructure:"api_key"`
	Model   string `koanf:"model" mapstructure:"model"`
}

type TaskConfig struct {
	BaseURL        string `koanf:"base_url" mapstructure:"base_url"`
	APIKey         string `koanf:"api_key" mapstructure:"api_key"`
	DocsRepository string `koanf:"docs_repository" mapstructure:"docs_repository"`
}

type LedgerConfig struct {
	Driver                string `koanf:"driver" mapstructure:"driver"`
	DSN                   string `koanf:"dsn" mapstructure:"dsn"`
	CacheTTLSeconds       int    `koanf:"cache_ttl_seconds" mapstructure:"cache_ttl_seconds"`
	ReserveBeforeDispatch bool   `koanf:"reserve_before_dispatch" mapstructure:"reserve_before_dispatch"`
	// PendingTTLSeconds is how long a pending marker blocks its key. An older
	// marker is left by a crashed attempt and may be taken over.
	PendingTTLSeconds int `koanf:"pending_ttl_seconds" mapstructure:"pending_ttl_seconds"`
}

// IntakeConfig switches the webhook endpoint to enqueue deliveries for
// background workers instead of processing them inline.
type IntakeConfig struct {
	Async       bool `koanf:"async" mapstructure:"async"`
	Workers     int  `koanf:"workers" mapstructure:"workers"`
	MaxAttempts int  `koanf:"max_attempts" mapstructure:"max_attempts"`
	// QueueCapacity bounds deliveries waiting for a worker. A full queue
	// answers 503.
	QueueCapacity int `koanf:"queue_capacity" mapstructure:"queue_capacity"`
}

type Config struct {
	ServiceName string                 `koanf:"service_name" mapstructure:"service_name"`
	Environment string                 `koanf:"environment" mapstructure:"environment"`
	Webhook     WebhookConfig          `koanf:"webhook" mapstructure:"webhook"`
	Classifier  ClassifierConfig       `koanf:"classifier" mapstructure:"classifier"`
	LLM         LLMConfig              `koanf:"llm" mapstructure:"llm"`
	Task        TaskConfig             `koanf:"task" mapstructure:"task"`
	Ledger      LedgerConfig           `koanf:"ledger" mapstructure:"ledger"`
	Intake      IntakeConfig           `koanf:"intake" mapstructure:"intake"`
	Catalog     []RepositoryDescriptor `koanf:"catalog" mapstructure:"catalog"`
	CatalogFile string                 `koanf:"catalog_file" mapstructure:"catalog_file"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "changelog-hooks",
		Environment: EnvironmentProduction,
		Classifier:  ClassifierConfig{Mode: ClassifierModeLLM},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Task: TaskConfig{
			BaseURL: "https://api.devin.ai",
		},
		Ledger: LedgerConfig{
			Driver:            LedgerDriverMemory,
			CacheTTLSeconds:   300,
			PendingTTLSeconds: 600,
		},
		Intake: IntakeConfig{
			Workers:       1,
			MaxAttempts:   5,
			QueueCapacity: 1024,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch c.environment() {
	case EnvironmentProduction, EnvironmentDevelopment:
	default:
		return fmt.Errorf("core: invalid environment %q", c.Environment)
	}
	if c.Webhook.AllowUnsigned && c.environment() != EnvironmentDevelopment {
		return fmt.Errorf("core: webhook.allow_unsigned requires environment %q", EnvironmentDevelopment)
	}
	if strings.TrimSpace(c.Webhook.SecretEnvelope) != "" && strings.TrimSpace(c.Webhook.AppKey) == "" {
		return fmt.Errorf("core: webhook.app_key is required to open webhook.secret_envelope")
	}
	switch strings.TrimSpace(strings.ToLower(c.Classifier.Mode)) {
	case ClassifierModeLLM:
		if strings.TrimSpace(c.LLM.BaseURL) == "" || strings.TrimSpace(c.LLM.Model) == "" {
			return fmt.Errorf("core: llm.base_url and llm.model are required in llm classifier mode")
		}
	case ClassifierModeRules:
	default:
		return fmt.Errorf("core: invalid classifier.mode %q", c.Classifier.Mode)
	}
	if strings.TrimSpace(c.Task.BaseURL) == "" {
		return fmt.Errorf("core: task.base_url is required")
	}
	if strings.TrimSpace(c.Task.DocsRepository) == "" {
		return fmt.Errorf("core: task.docs_repository is required")
	}
	switch strings.TrimSpace(strings.ToLower(c.Ledger.Driver)) {
	case LedgerDriverMemory:
	case LedgerDriverSQLite, LedgerDriverPostgres:
		if strings.TrimSpace(c.Ledger.DSN) == "" {
			return fmt.Errorf("core: ledger.dsn is required for driver %q", c.Ledger.Driver)
		}
	default:
		return fmt.Errorf("core: invalid ledger.driver %q", c.Ledger.Driver)
	}
	if c.Ledger.CacheTTLSeconds < 0 {
		return fmt.Errorf("core: ledger.cache_ttl_seconds must not be negative")
	}
	if c.Ledger.PendingTTLSeconds < 0 {
		return fmt.Errorf("core: ledger.pending_ttl_seconds must not be negative")
	}
	if c.Intake.Async && c.Intake.Workers < 1 {
		return fmt.Errorf("core: intake.workers must be at least 1 when intake.async is set")
	}
	if c.Intake.MaxAttempts < 0 {
		return fmt.Errorf("core: intake.max_attempts must not be negative")
	}
	if c.Intake.QueueCapacity < 0 {
		return fmt.Errorf("core: intake.queue_capacity must not be negative")
	}
	if len(c.Catalog) == 0 && strings.TrimSpace(c.CatalogFile) == "" {
		return fmt.Errorf("core: catalog or catalog_file is required")
	}
	return nil
}

// SignatureBypassEnabled is true only for an explicit development setup.
func (c Config) SignatureBypassEnabled() bool {
	return c.Webhook.AllowUnsigned && c.environment() == EnvironmentDevelopment
}

func (c Config) environment() string {
	return strings.TrimSpace(strings.ToLower(c.Environment))
}

// RepositoryCatalog resolves the inline catalog plus entries from catalog_file.
func (c Config) RepositoryCatalog() (RepositoryCatalog, error) {
	entries := append([]RepositoryDescriptor(nil), c.Catalog...)
	if path := strings.TrimSpace(c.CatalogFile); path != "" {
		fromFile, err := LoadCatalogFile(path)
		if err != nil {
			return RepositoryCatalog{}, err
		}
		entries = append(entries, fromFile...)
	}
	if len(entries) == 0 {
		return RepositoryCatalog{}, fmt.Errorf("core: repository catalog is empty")
	}
	return NewRepositoryCatalog(entries...)
}

type catalogFile struct {
	Repositories []RepositoryDescriptor `yaml:"repositories"`
}

func LoadCatalogFile(path string) ([]RepositoryDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("core: read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) ([]RepositoryDescriptor, error) {
	var parsed catalogFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("core: decode catalog: %w", err)
	}
	return parsed.Repositories, nil
}
