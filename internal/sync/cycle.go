package sync

import (
	"context"
	"log/slog"

	"github.com/coveyapp/covey/internal/hlc"
	"github.com/coveyapp/covey/internal/store"
)

// Counts summarizes one sync cycle.
type Counts struct {
	// Downloaded is the number of remote operations that mutated local
	// state this cycle.
	Downloaded int
	// Uploaded is the number of local operations published.
	Uploaded int
	// Failures counts remote files or directories skipped this cycle.
	// They are retried next cycle.
	Failures int
}

// Engine orchestrates one synchronization cycle: download and apply
// remote operations first, then upload the local pending queue.
type Engine struct {
	store    *store.Store
	clock    *hlc.Clock
	applier  *Applier
	protocol *Protocol
	logger   *slog.Logger
}

// NewEngine assembles a cycle engine. protocol may be nil when no
// remote is configured; cycles then no-op.
func NewEngine(st *store.Store, clock *hlc.Clock, protocol *Protocol, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:    st,
		clock:    clock,
		applier:  NewApplier(st, logger),
		protocol: protocol,
		logger:   logger,
	}
}

// RunCycle executes one full cycle. With no remote configured it
// returns zero counts and no error, so callers need no special case
// for the local-only install.
func (e *Engine) RunCycle(ctx context.Context) (Counts, error) {
	if e.protocol == nil {
		e.logger.Debug("sync not configured, skipping cycle")

		return Counts{}, nil
	}

	disc, err := e.protocol.Discover(ctx)
	if err != nil {
		return Counts{}, err
	}

	applied, err := e.applier.Apply(ctx, disc.Ops)
	if err != nil {
		return Counts{}, err
	}

	// Observing the highest remote clock keeps every op captured from
	// here on ordered after everything just applied.
	e.observeRemote(disc)

	// The manifest is saved only after the batch committed. A crash in
	// between refetches the files next cycle; the ledger drops the
	// duplicates.
	if len(disc.Manifest) > 0 {
		if err := e.store.SaveManifest(ctx, disc.Manifest); err != nil {
			return Counts{}, err
		}
	}

	uploaded, err := e.protocol.UploadPending(ctx)
	if err != nil {
		return Counts{Downloaded: applied, Uploaded: uploaded, Failures: disc.Failures}, err
	}

	counts := Counts{Downloaded: applied, Uploaded: uploaded, Failures: disc.Failures}

	e.logger.Info("sync cycle complete",
		slog.Int("downloaded", counts.Downloaded),
		slog.Int("uploaded", counts.Uploaded),
		slog.Int("failures", counts.Failures),
	)

	return counts, nil
}

// observeRemote merges the highest clock seen in the discovery into
// the local clock.
func (e *Engine) observeRemote(disc *Discovery) {
	var maxStamp hlc.Stamp

	for i := range disc.Ops {
		if hlc.Compare(disc.Ops[i].Clock, maxStamp) > 0 {
			maxStamp = disc.Ops[i].Clock
		}
	}

	if !maxStamp.IsZero() {
		e.clock.Observe(maxStamp)
	}
}
