package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coveyapp/covey/internal/op"
	"github.com/coveyapp/covey/internal/store"
	"github.com/coveyapp/covey/internal/webdav"
)

// Concurrency and batching limits for remote traffic.
const (
	listWorkers    = 4
	uploadWorkers  = 4
	maxOpsPerBatch = 200
)

// ObjectStore is the slice of the WebDAV client the protocol needs.
type ObjectStore interface {
	List(ctx context.Context, path string) ([]webdav.Entry, error)
	Get(ctx context.Context, path string) (data []byte, etag string, err error)
	Put(ctx context.Context, path string, data []byte) error
	Mkcol(ctx context.Context, path string) error
}

// Protocol speaks the batch-file layout on the remote: discovery of
// other devices' operation files and upload of locally captured ones.
type Protocol struct {
	remote   ObjectStore
	store    *store.Store
	deviceID string
	logger   *slog.Logger

	// now is injectable for tests that pin the upload month directory.
	now func() time.Time
}

// NewProtocol wires the protocol over a remote and the local store.
func NewProtocol(remote ObjectStore, st *store.Store, deviceID string, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}

	return &Protocol{
		remote:   remote,
		store:    st,
		deviceID: deviceID,
		logger:   logger,
		now:      time.Now,
	}
}

// Discovery is the result of one download pass.
type Discovery struct {
	// Ops pools every operation from every new or changed batch file,
	// in file order. The applier re-sorts before applying.
	Ops []op.Operation
	// Manifest holds the etags of the files that contributed to Ops,
	// to be saved once the batch has been applied.
	Manifest []store.ManifestEntry
	// Failures counts files, months, and device directories that could
	// not be listed or fetched this pass. Their content is retried on
	// the next pass because the manifest was never updated for them.
	Failures int
}

// Discover walks sync/ops/<device>/<month>/ on the remote and fetches
// every batch file whose etag differs from the local manifest. Faults
// below the top-level listing are isolated: the failing file, month,
// or device is skipped and counted, and the rest of the pass proceeds.
func (p *Protocol) Discover(ctx context.Context) (*Discovery, error) {
	manifest, err := p.store.Manifest(ctx)
	if err != nil {
		return nil, err
	}

	devices, err := p.remote.List(ctx, OpsDir)
	if err != nil {
		// A remote that has never been uploaded to has no ops tree.
		if errors.Is(err, webdav.ErrNotFound) {
			return &Discovery{}, nil
		}

		return nil, fmt.Errorf("sync: listing %s: %w", OpsDir, err)
	}

	var (
		mu  sync.Mutex
		out Discovery
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listWorkers)

	for _, dev := range devices {
		if !dev.IsDir || dev.Name == p.deviceID {
			continue
		}

		g.Go(func() error {
			fail := p.discoverDevice(gctx, dev.Name, manifest, &mu, &out)
			mu.Lock()
			out.Failures += fail
			mu.Unlock()

			return nil
		})
	}

	// Goroutines report faults through the Failures counter, never as
	// errors, so Wait only observes context cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("sync: discovery canceled: %w", ctx.Err())
	}

	return &out, nil
}

// discoverDevice walks one device's month directories and fetches its
// new batch files. Returns the number of isolated failures.
func (p *Protocol) discoverDevice(ctx context.Context, deviceID string, manifest map[string]string, mu *sync.Mutex, out *Discovery) int {
	months, err := p.remote.List(ctx, DeviceOpsDir(deviceID))
	if err != nil {
		p.logger.Warn("skipping device directory",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)

		return 1
	}

	var failures int

	for _, month := range months {
		if !month.IsDir {
			continue
		}

		files, err := p.remote.List(ctx, MonthDir(deviceID, month.Name))
		if err != nil {
			p.logger.Warn("skipping month directory",
				slog.String("device_id", deviceID),
				slog.String("month", month.Name),
				slog.String("error", err.Error()),
			)

			failures++

			continue
		}

		for _, file := range files {
			if file.IsDir {
				continue
			}

			path := fmt.Sprintf("%s/%s/%s/%s", OpsDir, deviceID, month.Name, file.Name)

			// Batch files are immutable; a known etag means known content.
			if etag, ok := manifest[path]; ok && etag == file.ETag && etag != "" {
				continue
			}

			failures += p.fetchFile(ctx, path, mu, out)
		}
	}

	return failures
}

// fetchFile downloads and parses one batch file into the pool.
// Malformed lines are logged and skipped; the file's etag still enters
// the manifest so the bad lines are not refetched forever.
func (p *Protocol) fetchFile(ctx context.Context, path string, mu *sync.Mutex, out *Discovery) int {
	data, etag, err := p.remote.Get(ctx, path)
	if err != nil {
		p.logger.Warn("skipping batch file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return 1
	}

	var ops []op.Operation

	for _, line := range op.SplitLines(data) {
		o, err := op.DecodeLine(line)
		if err != nil {
			p.logger.Warn("skipping malformed batch line",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)

			continue
		}

		ops = append(ops, o)
	}

	mu.Lock()
	out.Ops = append(out.Ops, ops...)
	out.Manifest = append(out.Manifest, store.ManifestEntry{Path: path, ETag: etag})
	mu.Unlock()

	return 0
}

// UploadPending publishes every queued local operation as immutable
// batch files under this device's directory for the current month.
// Successfully uploaded operations leave the queue; a failed chunk
// stays queued for the next cycle.
func (p *Protocol) UploadPending(ctx context.Context) (int, error) {
	pending, err := p.store.LoadPending(ctx)
	if err != nil {
		return 0, err
	}

	if len(pending) == 0 {
		return 0, nil
	}

	month := YearMonth(p.now())
	p.ensureDirs(ctx, month)

	totalChunks := (len(pending) + maxOpsPerBatch - 1) / maxOpsPerBatch

	var (
		mu       sync.Mutex
		uploaded int
		failed   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadWorkers)

	for start := 0; start < len(pending); start += maxOpsPerBatch {
		chunk := pending[start:min(start+maxOpsPerBatch, len(pending))]

		g.Go(func() error {
			if err := p.uploadChunk(gctx, month, chunk); err != nil {
				p.logger.Warn("batch upload failed",
					slog.Int("ops", len(chunk)),
					slog.String("error", err.Error()),
				)

				mu.Lock()
				failed++
				mu.Unlock()

				return nil
			}

			mu.Lock()
			uploaded += len(chunk)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return uploaded, err
	}

	if ctx.Err() != nil {
		return uploaded, fmt.Errorf("sync: upload canceled: %w", ctx.Err())
	}

	if failed > 0 {
		return uploaded, fmt.Errorf("sync: %d of %d batch uploads failed", failed, totalChunks)
	}

	return uploaded, nil
}

// uploadChunk writes one batch file and dequeues its ops on success.
func (p *Protocol) uploadChunk(ctx context.Context, month string, chunk []store.PendingOp) error {
	ops := make([]op.Operation, len(chunk))
	seqs := make([]int64, len(chunk))

	for i, pnd := range chunk {
		ops[i] = pnd.Op
		seqs[i] = pnd.Seq
	}

	data, err := op.MarshalBatch(ops)
	if err != nil {
		return err
	}

	path := BatchPath(p.deviceID, month, op.NewID())

	if err := p.remote.Put(ctx, path, data); err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}

	if err := p.store.DeletePending(ctx, seqs); err != nil {
		return fmt.Errorf("dequeuing after upload of %s: %w", path, err)
	}

	p.logger.Debug("uploaded batch file",
		slog.String("path", path),
		slog.Int("ops", len(ops)),
	)

	return nil
}

// ensureDirs creates the directory chain for this device's current
// month. Best effort: servers that auto-create parents, or chains that
// already exist, make these no-ops, and a real failure surfaces on the
// PUT anyway.
func (p *Protocol) ensureDirs(ctx context.Context, month string) {
	for _, dir := range []string{SyncBase, OpsDir, DeviceOpsDir(p.deviceID), MonthDir(p.deviceID, month)} {
		if err := p.remote.Mkcol(ctx, dir); err != nil {
			p.logger.Debug("mkcol failed",
				slog.String("path", dir),
				slog.String("error", err.Error()),
			)
		}
	}
}
