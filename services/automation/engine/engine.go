// Package engine implements the Automation Engine (C10): the rule registry
// and the internal execution pipeline that binds the Trigger Manager, the
// Condition Evaluator, the Action Executor, the Smart-Value Resolver, the
// Webhook Dispatcher, the Permission Gate, and the Audit Sink into one
// coherent lifecycle per rule firing.
package engine

import (
	"context"
	"sync"
	"time"

	svcerrors "github.com/trackerflow/automation-engine/infrastructure/errors"
	"github.com/trackerflow/automation-engine/infrastructure/logging"
	"github.com/trackerflow/automation-engine/infrastructure/telemetry"

	"github.com/trackerflow/automation-engine/domain/bulkop"
	"github.com/trackerflow/automation-engine/domain/execution"
	"github.com/trackerflow/automation-engine/domain/metrics"
	"github.com/trackerflow/automation-engine/domain/rule"
	"github.com/trackerflow/automation-engine/services/automation/audit"
	"github.com/trackerflow/automation-engine/services/automation/condition"
	"github.com/trackerflow/automation-engine/services/automation/executor"
	"github.com/trackerflow/automation-engine/services/automation/permission"
	"github.com/trackerflow/automation-engine/services/automation/tracker"
	"github.com/trackerflow/automation-engine/services/automation/trigger"
	"github.com/trackerflow/automation-engine/services/automation/webhook"
)

// Config holds the Engine's tunables; all carry spec-mandated defaults when
// left at zero value (see New).
type Config struct {
	MaxConcurrentExecutions int
	FireQueueDepth          int
	ExecutionTimeout        time.Duration
	RetentionDays           int
	EventsSharedSecret      string
}

// DefaultConfig returns the Engine's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentExecutions: 10,
		FireQueueDepth:          100,
		ExecutionTimeout:        5 * time.Minute,
		RetentionDays:           30,
	}
}

type fireRequest struct {
	ruleID string
	ectx   *execution.Context
}

// RuleFilter narrows get_rules; zero-value matches everything.
type RuleFilter struct {
	ProjectKey string
	Tag        string
	Enabled    *bool
}

// ExecutionFilter narrows get_executions; zero-value matches everything.
type ExecutionFilter struct {
	RuleID string
	Status execution.Status
}

// Engine is the Automation Engine: owner of the rule registry, the
// execution/bulk-operation history, and the concurrency-bounded firing
// pipeline. Engine itself is the trigger.FireFunc bound to its
// *trigger.Manager.
type Engine struct {
	mu         sync.RWMutex
	rules      map[string]*rule.Rule
	metrics    map[string]*metrics.Metrics
	executions []*execution.Execution
	bulkProg   map[string]*bulkop.Progress

	cfg Config

	triggers  *trigger.Manager
	evaluator *condition.Evaluator
	executor  *executor.Executor
	dispatch  *webhook.Dispatcher
	registry  *webhook.Registry
	gate      *permission.Gate
	audit     *audit.Sink
	trackerC  *tracker.Client
	logger    *logging.Logger
	telemetry *telemetry.Collector

	sem       chan struct{}
	fireQueue chan fireRequest
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stopOnce  sync.Once
	closed    bool

	now func() time.Time
}

// New wires the Engine and starts its bounded fire-queue worker. evaluator,
// exec, dispatcher, gate, auditSink, and trackerClient are all constructed
// by the caller (the cmd entrypoint) and handed in fully configured.
func New(cfg Config, evaluator *condition.Evaluator, exec *executor.Executor, dispatch *webhook.Dispatcher, registry *webhook.Registry, gate *permission.Gate, auditSink *audit.Sink, trackerC *tracker.Client, logger *logging.Logger, collector *telemetry.Collector) *Engine {
	if cfg.MaxConcurrentExecutions <= 0 {
		cfg.MaxConcurrentExecutions = DefaultConfig().MaxConcurrentExecutions
	}
	if cfg.FireQueueDepth <= 0 {
		cfg.FireQueueDepth = DefaultConfig().FireQueueDepth
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = DefaultConfig().ExecutionTimeout
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultConfig().RetentionDays
	}

	e := &Engine{
		rules:     make(map[string]*rule.Rule),
		metrics:   make(map[string]*metrics.Metrics),
		bulkProg:  make(map[string]*bulkop.Progress),
		cfg:       cfg,
		evaluator: evaluator,
		executor:  exec,
		dispatch:  dispatch,
		registry:  registry,
		gate:      gate,
		audit:     auditSink,
		trackerC:  trackerC,
		logger:    logger,
		telemetry: collector,
		sem:       make(chan struct{}, cfg.MaxConcurrentExecutions),
		fireQueue: make(chan fireRequest, cfg.FireQueueDepth),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
	e.triggers = trigger.New(e.fire)

	e.wg.Add(1)
	go e.queueWorker()

	return e
}

// fire is the trigger.FireFunc: it attempts a non-blocking semaphore
// acquisition for an immediate goroutine, falling back to the bounded
// fire-queue, and finally to a dropped/blocked audit event (severity
// medium) when both are saturated. Grounded on the teacher's
// tryAcquireTriggerSlot/releaseTriggerSlot non-blocking semaphore.
func (e *Engine) fire(ctx context.Context, ruleID string, ectx *execution.Context) {
	select {
	case e.sem <- struct{}{}:
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() { <-e.sem }()
			e.runPipeline(context.Background(), ruleID, ectx, "event")
		}()
		return
	default:
	}

	select {
	case e.fireQueue <- fireRequest{ruleID: ruleID, ectx: ectx}:
	default:
		if e.audit != nil {
			e.audit.Record(audit.KindToolExecution, audit.OutcomeBlocked, "", "rule_fire", ruleID, "",
				map[string]any{"reason": "fire queue saturated"})
		}
		if e.logger != nil {
			e.logger.Warn(ctx, "dropped rule firing: fire queue saturated", map[string]any{"rule_id": ruleID})
		}
	}
}

func (e *Engine) queueWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case req := <-e.fireQueue:
			select {
			case e.sem <- struct{}{}:
				e.wg.Add(1)
				go func(req fireRequest) {
					defer e.wg.Done()
					defer func() { <-e.sem }()
					e.runPipeline(context.Background(), req.ruleID, req.ectx, "event")
				}(req)
			case <-e.stopCh:
				return
			}
		}
	}
}

// InletServer returns an http.Handler serving the Trigger Manager's
// webhook inlets, ready to mount in the CLI's HTTP server command.
func (e *Engine) InletServer() *trigger.InletServer {
	return trigger.NewInletServer(e.triggers, e.registry).WithAudit(e.audit).WithEventsSecret(e.cfg.EventsSharedSecret)
}

// Shutdown is idempotent: it stops the cron scheduler and queue worker,
// marks every RUNNING execution CANCELLED, and waits for in-flight
// pipeline goroutines to finish.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.triggers.Shutdown()

		e.mu.Lock()
		e.closed = true
		for _, ex := range e.executions {
			if ex.Status == execution.StatusRunning {
				ex.Status = execution.StatusCancelled
			}
		}
		e.mu.Unlock()

		e.wg.Wait()
	})
}

// checkNotClosed is the guard every mutating method (CreateRule,
// UpdateRule, DeleteRule, ExecuteRule) calls first: the Engine rejects
// mutation once Shutdown has been called, rather than racing in-flight
// work against a half-torn-down pipeline.
func (e *Engine) checkNotClosed() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return svcerrors.EngineShutdown()
	}
	return nil
}

// Cleanup deletes executions and bulk-operation progress records older
// than cfg.RetentionDays, per the retention sweep contract.
func (e *Engine) Cleanup() {
	cutoff := e.now().AddDate(0, 0, -e.cfg.RetentionDays)

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.executions[:0]
	for _, ex := range e.executions {
		if ex.TriggeredAt.After(cutoff) {
			kept = append(kept, ex)
		}
	}
	e.executions = kept

	for id, p := range e.bulkProg {
		if p.StartedAt.Before(cutoff) {
			delete(e.bulkProg, id)
		}
	}
}

