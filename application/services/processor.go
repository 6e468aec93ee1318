package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"fedbox/application/ports"
	"fedbox/domain/rdf"
	"fedbox/domain/vocab"
	"fedbox/pkg/extensions"
)

// ActivityProcessor is the background runner for deferred side
// effects. Ingestion responds to the caller first; this loop scans
// for activities still marked processed=false, carries them out and,
// for outbox activities, pushes them to their resolved audience.
// A crash mid-run leaves processed=false, which is exactly the signal
// that a re-run is safe.
type ActivityProcessor struct {
	store      ports.GraphStore
	activities *ActivityService
	federation *FederationService
	hooks      *extensions.HookManager
	logger     *zap.Logger

	interval   time.Duration
	maxRetries int

	mu       sync.Mutex
	attempts map[rdf.Term]int

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewActivityProcessor creates the processor.
func NewActivityProcessor(
	store ports.GraphStore,
	activities *ActivityService,
	federation *FederationService,
	hooks *extensions.HookManager,
	interval time.Duration,
	logger *zap.Logger,
) *ActivityProcessor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ActivityProcessor{
		store:       store,
		activities:  activities,
		federation:  federation,
		hooks:       hooks,
		logger:      logger,
		interval:    interval,
		maxRetries:  3,
		attempts:    make(map[rdf.Term]int),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start begins the background processing loop.
func (p *ActivityProcessor) Start(ctx context.Context) {
	p.logger.Info("starting activity processor",
		zap.Duration("interval", p.interval))
	go p.processLoop(ctx)
}

// Stop gracefully stops the processor. An in-flight run finishes; it
// is never cancelled mid-activity.
func (p *ActivityProcessor) Stop() {
	close(p.stopChan)
	<-p.stoppedChan
	p.logger.Info("activity processor stopped")
}

func (p *ActivityProcessor) processLoop(ctx context.Context) {
	defer close(p.stoppedChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if err := p.ProcessPending(ctx); err != nil {
				p.logger.Error("processing sweep failed", zap.Error(err))
			}
		}
	}
}

// ProcessPending carries out every unprocessed activity once. A
// handler error never crashes the loop: it is logged, and the
// activity is retried on later sweeps up to the retry budget.
func (p *ActivityProcessor) ProcessPending(ctx context.Context) error {
	pending, err := p.store.Subjects(ctx, vocab.Processed, rdf.BoolLiteral(false))
	if err != nil {
		return err
	}
	for _, activity := range pending {
		if p.exhausted(activity) {
			continue
		}
		p.processOne(ctx, activity)
	}
	return nil
}

func (p *ActivityProcessor) processOne(ctx context.Context, activity rdf.Term) {
	if err := p.activities.CarryOut(ctx, activity); err != nil {
		n := p.recordAttempt(activity)
		if n >= p.maxRetries {
			p.logger.Warn("activity permanently failed",
				zap.String("activity", activity.Value),
				zap.Int("attempts", n),
				zap.Error(err))
		} else {
			p.logger.Debug("activity will be retried",
				zap.String("activity", activity.Value),
				zap.Int("attempts", n),
				zap.Error(err))
		}
		return
	}
	p.clearAttempts(activity)

	// Outbox activities fan out to their audience after the side
	// effects ran. Partial delivery failure is reported, not fatal.
	box, err := p.store.Value(ctx, activity, vocab.ReceivedIn)
	if err != nil || box.IsZero() {
		return
	}
	isOutbox, err := p.store.Has(ctx, nil, &vocab.Outbox, &box)
	if err != nil || !isOutbox {
		return
	}
	succeeded, failed, err := p.federation.Push(ctx, activity)
	if err != nil {
		p.logger.Error("push failed",
			zap.String("activity", activity.Value),
			zap.Error(err))
		return
	}
	if p.hooks != nil {
		event := extensions.ActivityEvent{
			ActivityIRI: activity.Value,
			Result:      deliveryResult(succeeded, failed),
		}
		if herr := p.hooks.Execute(ctx, extensions.HookDeliveryCompleted, event); herr != nil {
			p.logger.Warn("delivery hook failed", zap.Error(herr))
		}
	}
	p.logger.Info("activity delivered",
		zap.String("activity", activity.Value),
		zap.Int("succeeded", len(succeeded)),
		zap.Int("failed", len(failed)))
}

func deliveryResult(succeeded, failed []rdf.Term) string {
	return fmt.Sprintf("delivered to %d of %d inboxes", len(succeeded), len(succeeded)+len(failed))
}

func (p *ActivityProcessor) exhausted(activity rdf.Term) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[activity] >= p.maxRetries
}

func (p *ActivityProcessor) recordAttempt(activity rdf.Term) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[activity]++
	return p.attempts[activity]
}

func (p *ActivityProcessor) clearAttempts(activity rdf.Term) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attempts, activity)
}
