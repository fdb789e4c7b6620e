package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Task.DocsRepository = "acme/docs"
	cfg.Catalog = []RepositoryDescriptor{{Name: "sdk-js", URL: "https://github.com/acme/sdk-js", Category: "SDK"}}
	return cfg
}

func TestConfigValidate_Defaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
	if err := DefaultConfig().Validate(); err == nil {
		t.Fatalf("expected defaults without catalog and docs repository to be invalid")
	}
}

func TestConfigValidate_BypassRequiresDevelopment(t *testing.T) {
	cfg := validConfig()
	cfg.Webhook.AllowUnsigned = true
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected allow_unsigned in production to be rejected")
	}
	if cfg.SignatureBypassEnabled() {
		t.Fatalf("bypass must stay off in production")
	}

	cfg.Environment = EnvironmentDevelopment
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected development bypass to validate: %v", err)
	}
	if !cfg.SignatureBypassEnabled() {
		t.Fatalf("expected bypass in development with allow_unsigned")
	}
}

func TestConfigValidate_LedgerDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.Driver = LedgerDriverSQLite
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected sqlite driver without dsn to fail")
	}
	cfg.Ledger.DSN = "file:ledger.db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected sqlite config to validate: %v", err)
	}
	cfg.Ledger.Driver = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}

	cfg = validConfig()
	cfg.Ledger.PendingTTLSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative pending ttl to fail")
	}
}

func TestEnvConfigLoader_MapsVariables(t *testing.T) {
	env := map[string]string{
		"CHANGELOG_HOOKS_WEBHOOK_SECRET":                 "s3cret",
		"CHANGELOG_HOOKS_WEBHOOK_ALLOW_UNSIGNED":         "true",
		"CHANGELOG_HOOKS_ENVIRONMENT":                    "development",
		"CHANGELOG_HOOKS_LEDGER_CACHE_TTL_SECONDS":       "60",
		"CHANGELOG_HOOKS_TASK_DOCS_REPOSITORY":           "acme/docs",
		"CHANGELOG_HOOKS_LEDGER_RESERVE_BEFORE_DISPATCH": "",
		"CHANGELOG_HOOKS_LEDGER_PENDING_TTL_SECONDS":     "900",
	}
	loader := EnvConfigLoader{Lookup: func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}}
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	webhook, ok := raw["webhook"].(map[string]any)
	if !ok {
		t.Fatalf("expected webhook section, got %#v", raw)
	}
	if webhook["secret"] != "s3cret" || webhook["allow_unsigned"] != true {
		t.Fatalf("unexpected webhook section %#v", webhook)
	}
	ledger := raw["ledger"].(map[string]any)
	if ledger["cache_ttl_seconds"] != 60 {
		t.Fatalf("expected int ttl, got %#v", ledger["cache_ttl_seconds"])
	}
	if ledger["pending_ttl_seconds"] != 900 {
		t.Fatalf("expected int pending ttl, got %#v", ledger["pending_ttl_seconds"])
	}
	if _, exists := ledger["reserve_before_dispatch"]; exists {
		t.Fatalf("expected blank variables to be skipped")
	}
}

func TestEnvConfigLoader_RejectsInvalidBool(t *testing.T) {
	loader := EnvConfigLoader{Lookup: func(key string) (string, bool) {
		if key == "CHANGELOG_HOOKS_WEBHOOK_ALLOW_UNSIGNED" {
			return "perhaps", true
		}
		return "", false
	}}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestGoOptionsResolver_RuntimeOverridesConfig(t *testing.T) {
	loaded := Config{
		ServiceName: "from-config",
		Task:        TaskConfig{DocsRepository: "acme/docs", APIKey: "config-key"},
		Catalog:     []RepositoryDescriptor{{Name: "sdk-js"}},
	}
	runtime := Config{ServiceName: "from-runtime"}

	resolved, err := GoOptionsResolver{}.Resolve(DefaultConfig(), loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime service name, got %q", resolved.ServiceName)
	}
	if resolved.Task.APIKey != "config-key" {
		t.Fatalf("expected config api key, got %q", resolved.Task.APIKey)
	}
	if resolved.Task.BaseURL != DefaultConfig().Task.BaseURL {
		t.Fatalf("expected default task base url, got %q", resolved.Task.BaseURL)
	}
	if len(resolved.Catalog) != 1 || resolved.Catalog[0].Name != "sdk-js" {
		t.Fatalf("expected catalog from config, got %#v", resolved.Catalog)
	}
}

func TestLoadConfig_FromStaticLoader(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"task": map[string]any{"docs_repository": "acme/docs"},
		"catalog": []any{
			map[string]any{"name": "cli", "url": "https://github.com/acme/cli", "category": "Tooling"},
		},
		"classifier": map[string]any{"mode": "rules"},
	}})
	cfg, err := LoadConfig(context.Background(), provider, nil, Config{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Classifier.Mode != ClassifierModeRules {
		t.Fatalf("expected rules mode, got %q", cfg.Classifier.Mode)
	}
	if cfg.Ledger.Driver != LedgerDriverMemory {
		t.Fatalf("expected default memory ledger, got %q", cfg.Ledger.Driver)
	}
}

func TestConfigRepositoryCatalog_MergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "repositories:\n  - name: cli\n    url: https://github.com/acme/cli\n    category: Tooling\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cfg := validConfig()
	cfg.CatalogFile = path

	catalog, err := cfg.RepositoryCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if catalog.Len() != 2 {
		t.Fatalf("expected inline and file entries, got %d", catalog.Len())
	}
	entry, ok := catalog.Lookup("acme/cli")
	if !ok || entry.Category != "Tooling" {
		t.Fatalf("expected cli from file, got %+v ok=%v", entry, ok)
	}
}

func TestConfigValidate_IntakeWorkers(t *testing.T) {
	cfg := validConfig()
	cfg.Intake.Async = true
	cfg.Intake.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected async intake without workers to fail")
	}
	cfg.Intake.Workers = 2
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected async intake to validate: %v", err)
	}
	cfg.Intake.MaxAttempts = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative max_attempts to fail")
	}
	cfg.Intake.MaxAttempts = 5
	cfg.Intake.QueueCapacity = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative queue_capacity to fail")
	}
}

func TestEnvConfigLoader_MapsIntake(t *testing.T) {
	env := map[string]string{
		"CHANGELOG_HOOKS_INTAKE_ASYNC":          "true",
		"CHANGELOG_HOOKS_INTAKE_WORKERS":        "4",
		"CHANGELOG_HOOKS_INTAKE_QUEUE_CAPACITY": "16",
	}
	loader := EnvConfigLoader{Prefix: EnvPrefix, Lookup: func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}}
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	intake, ok := raw["intake"].(map[string]any)
	if !ok {
		t.Fatalf("expected intake section, got %v", raw)
	}
	if intake["async"] != true || intake["workers"] != 4 || intake["queue_capacity"] != 16 {
		t.Fatalf("unexpected intake section %v", intake)
	}
}
