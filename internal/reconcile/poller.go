package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/fiscalstream/emissor/internal/authority"
	"github.com/fiscalstream/emissor/internal/document"
	"github.com/fiscalstream/emissor/internal/store"
)

// StatusQuerier is the slice of the authority client the poller needs.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, authorityID string, t document.Type) (authority.StatusResponse, error)
}

// PollConfig holds the cadence knobs. The grace window is operational
// tuning, not a semantic contract, so it is configurable rather than
// hard-coded.
type PollConfig struct {
	// FastInterval applies while any processing document is younger than
	// FreshThreshold.
	FastInterval time.Duration
	// SlowInterval applies once every processing document is older.
	SlowInterval time.Duration
	// FreshThreshold is the age below which a document is "fresh".
	FreshThreshold time.Duration
	// NotFoundGrace tolerates authority-side "no record" right after
	// submission, before the authority has indexed the document.
	NotFoundGrace time.Duration
}

// DefaultPollConfig returns the production cadence.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		FastInterval:   5 * time.Second,
		SlowInterval:   30 * time.Second,
		FreshThreshold: 60 * time.Second,
		NotFoundGrace:  10 * time.Second,
	}
}

// Poller drives the pull half of reconciliation. One Run loop owns all
// polling; nothing is tied to an operator session staying open.
type Poller struct {
	store   *store.Store
	querier StatusQuerier
	rec     *Reconciler
	clock   Clock
	cfg     PollConfig

	// kick wakes an idle loop after a new submission. Buffered so a kick
	// during an active cycle coalesces instead of blocking the submitter.
	kick chan struct{}
}

// NewPoller wires a poller over the store, authority client, and reconciler.
func NewPoller(s *store.Store, q StatusQuerier, rec *Reconciler, clock Clock, cfg PollConfig) *Poller {
	return &Poller{
		store:   s,
		querier: q,
		rec:     rec,
		clock:   clock,
		cfg:     cfg,
		kick:    make(chan struct{}, 1),
	}
}

// Kick wakes the poller for an immediate cycle. Called after every
// submission so fresh documents get fast feedback.
// Thread-safe: may be called from any goroutine.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run polls until the context is cancelled. When no document is processing
// the loop idles at the slow cadence; Kick wakes it immediately.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("poller starting",
		"fast_interval", p.cfg.FastInterval,
		"slow_interval", p.cfg.SlowInterval,
	)

	for {
		docs, err := p.store.ListProcessing(ctx)
		if err != nil {
			// Store read failures are retried after the slow interval;
			// document state is untouched.
			slog.Error("poller failed to list processing documents", "error", err)
			docs = nil
		}

		if len(docs) == 0 {
			// Idle, or the list failed. A kick wakes the loop immediately,
			// but the slow-cadence timer stays armed as a backstop:
			// submissions from other processes and transient store failures
			// must not suspend polling indefinitely.
			select {
			case <-ctx.Done():
				slog.Info("poller stopping: context cancelled")
				return ctx.Err()
			case <-p.clock.After(p.cfg.SlowInterval):
			case <-p.kick:
			}
			continue
		}

		p.PollSet(ctx, docs)

		select {
		case <-ctx.Done():
			slog.Info("poller stopping: context cancelled")
			return ctx.Err()
		case <-p.clock.After(p.Interval(docs)):
		case <-p.kick:
		}
	}
}

// Interval picks the cadence for the given processing set.
func (p *Poller) Interval(docs []document.FiscalDocument) time.Duration {
	now := p.clock.Now()
	for _, d := range docs {
		if now.Sub(d.CreatedAt) < p.cfg.FreshThreshold {
			return p.cfg.FastInterval
		}
	}
	return p.cfg.SlowInterval
}

// PollSet queries the authority for every document in the set and feeds the
// responses through the reconciler.
func (p *Poller) PollSet(ctx context.Context, docs []document.FiscalDocument) {
	for _, doc := range docs {
		p.pollOne(ctx, doc)
	}
}

// PollDocument refreshes a single document, used by the operator-initiated
// status command. Unlike the background loop it surfaces errors.
func (p *Poller) PollDocument(ctx context.Context, doc document.FiscalDocument) error {
	st, err := p.querier.QueryStatus(ctx, doc.AuthorityID, doc.Type)
	if err != nil {
		return err
	}
	_, err = p.rec.Apply(ctx, doc, UpdateFromStatus(st))
	return err
}

// pollOne is the background variant: every failure short of a malformed
// response is swallowed and retried next tick, because a failed poll
// reflects client-authority connectivity, not document validity.
func (p *Poller) pollOne(ctx context.Context, doc document.FiscalDocument) {
	st, err := p.querier.QueryStatus(ctx, doc.AuthorityID, doc.Type)
	switch {
	case err == nil:
		if _, err := p.rec.Apply(ctx, doc, UpdateFromStatus(st)); err != nil {
			slog.Error("poll result could not be persisted",
				"document_id", doc.ID, "error", err)
		}

	case document.IsNotFound(err):
		age := p.clock.Now().Sub(doc.CreatedAt)
		if age <= p.cfg.NotFoundGrace {
			// The authority has not indexed the submission yet.
			slog.Debug("authority record not indexed yet",
				"document_id", doc.ID, "age", age)
		} else {
			// Escalate for manual review, but never mutate the document:
			// absence of a record is a consistency concern, not a rejection.
			slog.Warn("authority has no record past grace window",
				"document_id", doc.ID,
				"authority_id", doc.AuthorityID,
				"age", age,
			)
		}

	case document.IsTransient(err) || document.IsAuth(err):
		slog.Debug("poll failed, retrying next tick",
			"document_id", doc.ID, "error", err)

	default:
		slog.Warn("unexpected poll failure",
			"document_id", doc.ID, "error", err)
	}
}
