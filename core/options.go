package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

const EnvPrefix = "CHANGELOG_HOOKS_"

type envBinding struct {
	path []string
	kind string
}

var envBindings = map[string]envBinding{
	"SERVICE_NAME":                   {path: []string{"service_name"}},
	"ENVIRONMENT":                    {path: []string{"environment"}},
	"WEBHOOK_SECRET":                 {path: []string{"webhook", "secret"}},
	"WEBHOOK_SECRET_ENVELOPE":        {path: []string{"webhook", "secret_envelope"}},
	"WEBHOOK_APP_KEY":                {path: []string{"webhook", "app_key"}},
	"WEBHOOK_ALLOW_UNSIGNED":         {path: []string{"webhook", "allow_unsigned"}, kind: "bool"},
	"CLASSIFIER_MODE":                {path: []string{"classifier", "mode"}},
	"LLM_BASE_URL":                   {path: []string{"llm", "base_url"}},
	"LLM_API_KEY":                    {path: []string{"llm", "api_key"}},
	"LLM_MODEL":                      {path: []string{"llm", "model"}},
	"TASK_BASE_URL":                  {path: []string{"task", "base_url"}},
	"TASK_API_KEY":                   {path: []string{"task", "api_key"}},
	"TASK_DOCS_REPOSITORY":           {path: []string{"task", "docs_repository"}},
	"LEDGER_DRIVER":                  {path: []string{"ledger", "driver"}},
	"LEDGER_DSN":                     {path: []string{"ledger", "dsn"}},
	"LEDGER_CACHE_TTL_SECONDS":       {path: []string{"ledger", "cache_ttl_seconds"}, kind: "int"},
	"LEDGER_RESERVE_BEFORE_DISPATCH": {path: []string{"ledger", "reserve_before_dispatch"}, kind: "bool"},
	"LEDGER_PENDING_TTL_SECONDS":     {path: []string{"ledger", "pending_ttl_seconds"}, kind: "int"},
	"INTAKE_ASYNC":                   {path: []string{"intake", "async"}, kind: "bool"},
	"INTAKE_WORKERS":                 {path: []string{"intake", "workers"}, kind: "int"},
	"INTAKE_MAX_ATTEMPTS":            {path: []string{"intake", "max_attempts"}, kind: "int"},
	"INTAKE_QUEUE_CAPACITY":          {path: []string{"intake", "queue_capacity"}, kind: "int"},
	"CATALOG_FILE":                   {path: []string{"catalog_file"}},
}

// EnvConfigLoader maps CHANGELOG_HOOKS_* variables onto the raw config tree.
type EnvConfigLoader struct {
	Prefix string
	Lookup func(key string) (string, bool)
}

func NewEnvConfigLoader() EnvConfigLoader {
	return EnvConfigLoader{Prefix: EnvPrefix, Lookup: os.LookupEnv}
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := l.Prefix
	if strings.TrimSpace(prefix) == "" {
		prefix = EnvPrefix
	}
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for suffix, binding := range envBindings {
		value, ok := lookup(prefix + suffix)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		var typed any = value
		switch binding.kind {
		case "bool":
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("core: %s%s: %w", prefix, suffix, err)
			}
			typed = parsed
		case "int":
			parsed, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("core: %s%s: %w", prefix, suffix, err)
			}
			typed = parsed
		}
		setPath(raw, binding.path, typed)
	}
	return raw, nil
}

func setPath(root map[string]any, path []string, value any) {
	current := root
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig layers DefaultConfig, the provider output and runtime overrides.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(NewEnvConfigLoader())
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, Config{})
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)
	putString(layer, "environment", cfg.Environment, includeZero)
	putString(layer, "catalog_file", cfg.CatalogFile, includeZero)

	webhook := map[string]any{}
	putString(webhook, "secret", cfg.Webhook.Secret, includeZero)
	putString(webhook, "secret_envelope", cfg.Webhook.SecretEnvelope, includeZero)
	putString(webhook, "app_key", cfg.Webhook.AppKey, includeZero)
	if includeZero || cfg.Webhook.AllowUnsigned {
		webhook["allow_unsigned"] = cfg.Webhook.AllowUnsigned
	}
	putSection(layer, "webhook", webhook)

	classifier := map[string]any{}
	putString(classifier, "mode", cfg.Classifier.Mode, includeZero)
	putSection(layer, "classifier", classifier)

	llm := map[string]any{}
	putString(llm, "base_url", cfg.LLM.BaseURL, includeZero)
	putString(llm, "api_key", cfg.LLM.APIKey, includeZero)
	putString(llm, "model", cfg.LLM.Model, includeZero)
	putSection(layer, "llm", llm)

	task := map[string]any{}
	putString(task, "base_url", cfg.Task.BaseURL, includeZero)
	putString(task, "api_key", cfg.Task.APIKey, includeZero)
	putString(task, "docs_repository", cfg.Task.DocsRepository, includeZero)
	putSection(layer, "task", task)

	ledger := map[string]any{}
	putString(ledger, "driver", cfg.Ledger.Driver, includeZero)
	putString(ledger, "dsn", cfg.Ledger.DSN, includeZero)
	if includeZero || cfg.Ledger.CacheTTLSeconds != 0 {
		ledger["cache_ttl_seconds"] = cfg.Ledger.CacheTTLSeconds
	}
	if includeZero || cfg.Ledger.PendingTTLSeconds != 0 {
		ledger["pending_ttl_seconds"] = cfg.Ledger.PendingTTLSeconds
	}
	if includeZero || cfg.Ledger.ReserveBeforeDispatch {
		ledger["reserve_before_dispatch"] = cfg.Ledger.ReserveBeforeDispatch
	}
	putSection(layer, "ledger", ledger)

	intake := map[string]any{}
	if includeZero || cfg.Intake.Async {
		intake["async"] = cfg.Intake.Async
	}
	if includeZero || cfg.Intake.Workers != 0 {
		intake["workers"] = cfg.Intake.Workers
	}
	if includeZero || cfg.Intake.MaxAttempts != 0 {
		intake["max_attempts"] = cfg.Intake.MaxAttempts
	}
	if includeZero || cfg.Intake.QueueCapacity != 0 {
		intake["queue_capacity"] = cfg.Intake.QueueCapacity
	}
	putSection(layer, "intake", intake)

	if includeZero || len(cfg.Catalog) > 0 {
		entries := make([]any, 0, len(cfg.Catalog))
		for _, entry := range cfg.Catalog {
			entries = append(entries, map[string]any{
				"name":     entry.Name,
				"url":      entry.URL,
				"category": entry.Category,
			})
		}
		layer["catalog"] = entries
	}
	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
