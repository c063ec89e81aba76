package main

import (
	"context"
	"fmt"

	"github.com/trackerflow/automation-engine/infrastructure/config"
	svcerrors "github.com/trackerflow/automation-engine/infrastructure/errors"
	"github.com/trackerflow/automation-engine/infrastructure/logging"
	"github.com/trackerflow/automation-engine/infrastructure/telemetry"
	"github.com/trackerflow/automation-engine/services/automation/audit"
	"github.com/trackerflow/automation-engine/services/automation/condition"
	"github.com/trackerflow/automation-engine/services/automation/engine"
	"github.com/trackerflow/automation-engine/services/automation/executor"
	"github.com/trackerflow/automation-engine/services/automation/health"
	"github.com/trackerflow/automation-engine/services/automation/permission"
	"github.com/trackerflow/automation-engine/services/automation/schema"
	"github.com/trackerflow/automation-engine/services/automation/tracker"
	"github.com/trackerflow/automation-engine/services/automation/webhook"
)

// app bundles the wired Engine and its collaborators that subcommands
// need beyond the Engine's own exported surface (the schema cache for
// `health` reporting, the registry for `integration` management).
type app struct {
	engine     *engine.Engine
	registry   *webhook.Registry
	dispatch   *webhook.Dispatcher
	schema     *schema.Cache
	monitor    *health.Monitor
	logger     *logging.Logger
	listenAddr string
}

// schemaFetcher adapts tracker.Client's create-metadata lookup to the
// schema.Fetcher interface, compressing the tracker's raw field schema
// types into the cache's smaller FieldType enum.
type schemaFetcher struct{ tracker *tracker.Client }

func (f schemaFetcher) FetchFields(ctx context.Context, projectKey string) ([]schema.FieldSchema, error) {
	fields, err := f.tracker.ProjectFields(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	out := make([]schema.FieldSchema, len(fields))
	for i, fm := range fields {
		out[i] = schema.FieldSchema{
			ID:            fm.ID,
			Name:          fm.Name,
			Type:          compressFieldType(fm.Type),
			Required:      fm.Required,
			AllowedValues: fm.Allowed,
		}
	}
	return out, nil
}

func compressFieldType(trackerType string) schema.FieldType {
	switch trackerType {
	case "number":
		return schema.TypeNumber
	case "array":
		return schema.TypeArray
	case "option", "issuetype", "priority", "user":
		return schema.TypeOption
	case "date":
		return schema.TypeDate
	case "datetime":
		return schema.TypeDateTime
	default:
		return schema.TypeString
	}
}

// buildApp loads configuration from the environment and constructs every
// component the Engine needs, in the same dependency order a caller would
// have to follow by hand: tracker client first (everything else is a
// tracker collaborator or is independent of it), then the cache/gate/
// evaluator/executor/dispatcher, then the Engine itself, then the health
// monitor wired against the Engine's and cache's own data.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, svcerrors.ConfigInvalid("engine", err.Error())
	}

	logger := logging.NewFromEnv("automation-engine")

	trackerClient, err := tracker.New(tracker.Config{
		BaseURL:        cfg.TrackerBaseURL,
		Email:          cfg.TrackerEmail,
		APIToken:       cfg.TrackerAPIToken,
		OAuthToken:     cfg.TrackerOAuthToken,
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("construct tracker client: %w", err)
	}

	schemaCache := schema.New(schemaFetcher{tracker: trackerClient}, 0)
	evaluator := condition.New(trackerClient, nil)
	exec := executor.NewWithTracker(trackerClient, newDefaultHTTPClient(), nil)

	var auditSink *audit.Sink
	if cfg.AuditEnabled {
		auditSink, err = audit.New(cfg.AuditDir)
		if err != nil {
			return nil, fmt.Errorf("construct audit sink: %w", err)
		}
	}

	// The CLI is a single-operator administrative surface, not a
	// multi-tenant API; the default policy allows everything and relies
	// on the audit trail rather than a deny-by-default ACL.
	gate := permission.New(permission.DefaultPolicy{AllowAll: true})

	registry := webhook.NewRegistry()
	dispatch := webhook.New(registry, newDefaultHTTPClient(), logger)

	collector := telemetry.New()

	engCfg := engine.DefaultConfig()
	engCfg.MaxConcurrentExecutions = cfg.MaxConcurrentExecutions
	engCfg.ExecutionTimeout = cfg.ExecutionTimeout
	engCfg.RetentionDays = cfg.RetentionDays
	engCfg.EventsSharedSecret = cfg.EventsSharedSecret

	eng := engine.New(engCfg, evaluator, exec, dispatch, registry, gate, auditSink, trackerClient, logger, collector)

	monitor := health.New(collector)
	registerDefaultProbes(monitor, eng, schemaCache)

	if cfg.EventsSharedSecret == "" && logger != nil {
		logger.Warn(context.Background(), "EVENTS_SHARED_SECRET is empty; the /events relay will accept unsigned requests", nil)
	}

	return &app{
		engine:     eng,
		registry:   registry,
		dispatch:   dispatch,
		schema:     schemaCache,
		monitor:    monitor,
		logger:     logger,
		listenAddr: cfg.ListenAddr,
	}, nil
}

func (a *app) Close() {
	a.engine.Shutdown()
}

// registerDefaultProbes wires three of the four built-in health probes against
// real data sources: the process's own heap stats, the engine's rule
// failure-rate aggregate, and the schema cache's hit rate. No scheduler-
// lag source is wired since this CLI process does not run a persistent
// cron ticker between invocations; an operator running automation-cli as
// a long-lived health-check daemon would register one against the
// Trigger Manager's own tick timestamps.
func registerDefaultProbes(monitor *health.Monitor, eng *engine.Engine, cache *schema.Cache) {
	monitor.Register(health.Check{
		Name: "heap_usage", Critical: false,
		Probe: health.HeapUsageProbe(0.8, 0.95),
	})
	monitor.Register(health.Check{
		Name: "rule_error_rate", Critical: false,
		Probe: health.ErrorRateProbe(0.25, 1, func() float64 { return aggregateFailureRate(eng) }),
	})
	monitor.Register(health.Check{
		Name: "schema_cache_hit_rate", Critical: false,
		Probe: health.CacheHitRateProbe(0.5, cache.HitRate),
	})
}

// aggregateFailureRate folds every rule's metrics into one failure
// fraction; an engine with no executions yet reports 0, not an error.
func aggregateFailureRate(eng *engine.Engine) float64 {
	ms, err := eng.GetMetrics("")
	if err != nil || len(ms) == 0 {
		return 0
	}
	var total, failed int
	for _, m := range ms {
		total += m.ExecutionCount
		failed += m.FailureCount
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
