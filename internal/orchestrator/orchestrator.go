// Package orchestrator drains the pending-account queue through a bounded
// worker pool and reports each account's outcome as it completes.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/activation"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
)

// AccountSource provides the pending batch and accepts per-account outcome
// reports. The Airtable client satisfies this.
type AccountSource interface {
	FetchPending(ctx context.Context, maxRecords int) ([]activation.AccountRecord, error)
	Report(ctx context.Context, handle string, status activation.Status) error
}

// Activator runs one account through the full browser flow.
type Activator interface {
	Activate(ctx context.Context, account activation.AccountRecord) activation.ActivationResult
}

// Orchestrator owns the batch lifecycle: fetch, fan out under a concurrency
// cap, and report results in completion order.
type Orchestrator struct {
	cfg       *config.Config
	source    AccountSource
	activator Activator
	logger    *zap.Logger
}

// resultMsg carries one finished account down the collector channel. skipped
// marks accounts the run was cancelled before starting; these get no report.
type resultMsg struct {
	res     activation.ActivationResult
	skipped bool
}

// New creates an Orchestrator with its dependencies provided as interfaces.
func New(cfg *config.Config, source AccountSource, activator Activator, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil || source == nil || activator == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:       cfg,
		source:    source,
		activator: activator,
		logger:    logger.Named("orchestrator"),
	}, nil
}

// Run processes one batch. A fetch failure aborts the run; an empty batch is
// a successful no-op. Every account that starts produces exactly one report,
// even when the run context is cancelled mid-flight.
func (o *Orchestrator) Run(ctx context.Context) error {
	accounts, err := o.source.FetchPending(ctx, o.cfg.Activation.MaxAccounts)
	if err != nil {
		o.logger.Error("Could not fetch the pending batch.", zap.Error(err))
		return fmt.Errorf("fetching pending accounts: %w", err)
	}
	if len(accounts) == 0 {
		o.logger.Info("No accounts pending activation.")
		return nil
	}

	o.logger.Info("Processing batch.",
		zap.Int("accounts", len(accounts)),
		zap.Int("max_workers", o.cfg.Activation.MaxWorkers))

	sem := semaphore.NewWeighted(int64(o.cfg.Activation.MaxWorkers))
	results := make(chan resultMsg, len(accounts))

	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(1)
		go func(account activation.AccountRecord) {
			defer wg.Done()
			results <- o.process(ctx, sem, account)
		}(account)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var succeeded, failed, skipped int
	for msg := range results {
		if msg.skipped {
			skipped++
			continue
		}
		if msg.res.Outcome == activation.OutcomeSuccess {
			succeeded++
		} else {
			failed++
		}
		o.report(msg.res)
	}

	o.logger.Info("Batch complete.",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped))
	return nil
}

// process runs one account under the pool cap. Cancellation before the slot
// is acquired skips the account entirely; once the account starts, it runs to
// conclusion on a detached context so shutdown never strands a half-toggled
// mailbox.
func (o *Orchestrator) process(ctx context.Context, sem *semaphore.Weighted, account activation.AccountRecord) resultMsg {
	if err := sem.Acquire(ctx, 1); err != nil {
		o.logger.Info("Skipping account, run cancelled before start.",
			zap.String("email", account.Email))
		return resultMsg{skipped: true}
	}
	defer sem.Release(1)

	if ctx.Err() != nil {
		o.logger.Info("Skipping account, run cancelled before start.",
			zap.String("email", account.Email))
		return resultMsg{skipped: true}
	}

	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Activation.AccountTimeout)
	defer cancel()

	return resultMsg{res: o.activate(workCtx, account)}
}

// activate shields the pool from a panicking attempt. A panic becomes a
// Failure result so the account still gets its report.
func (o *Orchestrator) activate(ctx context.Context, account activation.AccountRecord) (res activation.ActivationResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Activation panicked.",
				zap.String("email", account.Email),
				zap.Any("panic", r))
			res = activation.ActivationResult{
				Handle:  account.Handle,
				Email:   account.Email,
				Outcome: activation.OutcomeFailure,
				Detail:  fmt.Sprintf("internal error: %v", r),
			}
		}
	}()
	return o.activator.Activate(ctx, account)
}

// report pushes one outcome to the record store. Reporting runs on a fresh
// context so late results still land after the run context is cancelled.
func (o *Orchestrator) report(res activation.ActivationResult) {
	status := activation.StatusEnabled
	if res.Outcome != activation.OutcomeSuccess {
		status = activation.StatusError
	}

	reportCtx, cancel := context.WithTimeout(context.Background(), o.cfg.Airtable.ReportTimeout)
	defer cancel()

	if err := o.source.Report(reportCtx, res.Handle, status); err != nil {
		o.logger.Error("Could not report account outcome.",
			zap.String("email", res.Email),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}

	o.logger.Info("Reported account outcome.",
		zap.String("email", res.Email),
		zap.String("status", string(status)),
		zap.String("detail", res.Detail))
}
