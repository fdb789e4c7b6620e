// Package hooks assembles the changelog webhook pipeline from a Config.
//
// New wires the verifier, classifier, ledger, synthesizer and dispatcher and
// exposes an http.Handler. With intake.async set the handler only enqueues
// deliveries and RunWorkers drains them through the same pipeline.
package hooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-changelog-hooks/adapters/gocommand"
	"github.com/goliatone/go-changelog-hooks/adapters/gojob"
	"github.com/goliatone/go-changelog-hooks/adapters/gologger"
	"github.com/goliatone/go-changelog-hooks/classify"
	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/dispatch"
	"github.com/goliatone/go-changelog-hooks/ledger"
	"github.com/goliatone/go-changelog-hooks/llm"
	"github.com/goliatone/go-changelog-hooks/pipeline"
	"github.com/goliatone/go-changelog-hooks/ratelimit"
	"github.com/goliatone/go-changelog-hooks/security"
	sqlstore "github.com/goliatone/go-changelog-hooks/store/sql"
	"github.com/goliatone/go-changelog-hooks/synth"
	"github.com/goliatone/go-changelog-hooks/webhooks"
)

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}

type Option func(*builder)

type builder struct {
	logger      glog.Logger
	provider    glog.LoggerProvider
	metrics     core.MetricsRecorder
	persistence *persistence.Client
	kv          core.KVStore
	cache       repositorycache.CacheService
	transport   core.TransportAdapter
}

func WithLogger(logger glog.Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(b *builder) {
		b.provider = provider
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(b *builder) {
		b.metrics = metrics
	}
}

// WithPersistenceClient backs the ledger with the changelog_kv_entries table.
// Required for the sqlite3 and postgres ledger drivers unless WithKVStore is
// given.
func WithPersistenceClient(client *persistence.Client) Option {
	return func(b *builder) {
		b.persistence = client
	}
}

// WithKVStore overrides the ledger key-value store regardless of driver.
func WithKVStore(kv core.KVStore) Option {
	return func(b *builder) {
		b.kv = kv
	}
}

func WithCacheService(cache repositorycache.CacheService) Option {
	return func(b *builder) {
		b.cache = cache
	}
}

// WithTransport replaces the REST adapter used for the capability service
// and the task service.
func WithTransport(adapter core.TransportAdapter) Option {
	return func(b *builder) {
		b.transport = adapter
	}
}

type App struct {
	Config       Config
	Observer     core.Observer
	Ledger       *ledger.Store
	Orchestrator *pipeline.Orchestrator
	// Queue is set only when intake.async is enabled.
	Queue *gojob.MemoryQueue

	verifier pipeline.Verifier
	provider glog.LoggerProvider
	metrics  core.MetricsRecorder
}

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	b := &builder{}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	catalog, err := cfg.RepositoryCatalog()
	if err != nil {
		return nil, err
	}

	provider, _ := gologger.Resolve(cfg.ServiceName, b.provider, b.logger)
	observe := func(component string) core.Observer {
		return gologger.ComponentObserver(provider, component, b.metrics)
	}

	secret, err := security.ResolveWebhookSecret(ctx, cfg.Webhook)
	if err != nil {
		return nil, err
	}
	if secret == "" && !cfg.SignatureBypassEnabled() {
		// Requests still fail closed; this only surfaces the defect at startup.
		observe("webhooks").Log(ctx, core.LogLevelWarn, "webhook shared secret is not configured", nil)
	}

	kv, err := b.resolveKV(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	store := ledger.New(kv,
		ledger.WithReservations(cfg.Ledger.ReserveBeforeDispatch),
		ledger.WithPendingTTL(time.Duration(cfg.Ledger.PendingTTLSeconds)*time.Second),
		ledger.WithObserver(observe("ledger")),
	)

	extractor, generator := b.capabilities(cfg)
	dispatchOpts := []dispatch.Option{
		dispatch.WithObserver(observe("dispatch")),
		dispatch.WithRateLimit(ratelimit.NewAdaptivePolicy(nil)),
	}
	if b.transport != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithTransport(b.transport))
	}

	verifier := webhooks.NewSignatureVerifier(secret,
		webhooks.WithObserver(observe("webhooks")),
		webhooks.WithBypass(cfg.SignatureBypassEnabled()),
	)
	orchestrator, err := pipeline.New(pipeline.Dependencies{
		Verifier:    verifier,
		Classifier:  classify.New(extractor, catalog, classify.WithObserver(observe("classify"))),
		Store:       store,
		Synthesizer: synth.New(generator, catalog, cfg.Task.DocsRepository, synth.WithObserver(observe("synth"))),
		Dispatcher:  dispatch.New(cfg.Task, dispatchOpts...),
	}, pipeline.WithObserver(observe("pipeline")))
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:       cfg,
		Observer:     observe("app"),
		Ledger:       store,
		Orchestrator: orchestrator,
		verifier:     verifier,
		provider:     provider,
		metrics:      b.metrics,
	}
	if cfg.Intake.Async {
		app.Queue = gojob.NewMemoryQueue(gojob.WithCapacity(cfg.Intake.QueueCapacity))
	}
	return app, nil
}

func (b *builder) resolveKV(cfg core.LedgerConfig) (core.KVStore, error) {
	kv := b.kv
	if kv == nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
		case core.LedgerDriverMemory, "":
			return ledger.NewMemoryKV(), nil
		case core.LedgerDriverSQLite, core.LedgerDriverPostgres:
			if b.persistence == nil {
				return nil, fmt.Errorf("hooks: ledger driver %q requires a persistence client", cfg.Driver)
			}
			factory, err := sqlstore.NewRepositoryFactoryFromPersistence(b.persistence)
			if err != nil {
				return nil, err
			}
			kv = factory.KVStore()
		default:
			return nil, fmt.Errorf("hooks: unsupported ledger driver %q", cfg.Driver)
		}
	}
	if cfg.CacheTTLSeconds <= 0 {
		return kv, nil
	}
	cache := b.cache
	if cache == nil {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
		service, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("hooks: ledger cache: %w", err)
		}
		cache = service
	}
	return ledger.NewCachedKV(kv, cache)
}

func (b *builder) capabilities(cfg Config) (core.StructuredExtractor, core.TextGenerator) {
	if strings.EqualFold(strings.TrimSpace(cfg.Classifier.Mode), core.ClassifierModeRules) {
		return classify.RuleExtractor{}, synth.TemplateGenerator{}
	}
	var clientOpts []llm.Option
	if b.transport != nil {
		clientOpts = append(clientOpts, llm.WithTransport(b.transport))
	}
	client := llm.NewClient(cfg.LLM, clientOpts...)
	return client, client
}

// Handler serves the webhook endpoint: inline processing, or verify then
// enqueue when intake is async.
func (a *App) Handler() http.Handler {
	if a.Queue != nil {
		return gojob.NewIntakeHandler(a.Queue, a.verifier, a.Observer)
	}
	return pipeline.NewHandler(a.Orchestrator)
}

// Process runs one delivery inline regardless of the intake mode.
func (a *App) Process(ctx context.Context, event core.InboundEvent) pipeline.Outcome {
	return a.Orchestrator.Process(ctx, event)
}

// SubscribeCommands exposes the pipeline on the go-command dispatcher.
func (a *App) SubscribeCommands() (gocommand.Subscriptions, error) {
	return gocommand.RegisterPipeline(gocommand.NewRegistryAdapter(nil), a.Orchestrator, a.Ledger)
}

// RunWorkers drains the intake queue with intake.workers workers until ctx is
// done or the queue is closed. It returns immediately for synchronous intake.
func (a *App) RunWorkers(ctx context.Context) error {
	if a.Queue == nil {
		return nil
	}
	workers := a.Config.Intake.Workers
	if workers < 1 {
		workers = 1
	}
	maxAttempts := a.Config.Intake.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = gojob.DefaultMaxAttempts
	}
	hook := gojob.ObserverHook{Observer: gologger.ComponentObserver(a.provider, "intake", a.metrics)}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		w, err := gojob.NewWorker(a.Queue, a.Orchestrator,
			gojob.WithHook(hook),
			gojob.WithObserver(hook.Observer),
			gojob.WithRetryPolicy(gojob.RetryPolicy{
				MaxAttempts:     maxAttempts,
				MaxDelay:        gojob.DefaultMaxDelay,
				DeadLetterOnMax: true,
			}),
		)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	return <-errs
}

// Close stops accepting queued deliveries.
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
}
