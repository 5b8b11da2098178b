package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coveyapp/covey/internal/config"
	"github.com/coveyapp/covey/internal/hlc"
	"github.com/coveyapp/covey/internal/store"
	"github.com/coveyapp/covey/internal/sync"
	"github.com/coveyapp/covey/internal/webdav"
)

// Meta keys recording the last cycle for the status command.
const (
	metaLastSyncTime   = "last_sync_time"
	metaLastSyncResult = "last_sync_result"
)

func newSyncCmd() *cobra.Command {
	var (
		watch bool
		now   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync cycle",
		Long: "Downloads and applies operations from other devices, then uploads " +
			"locally captured operations. With --watch, keeps syncing in the " +
			"background until interrupted. With --now, asks an already running " +
			"watcher to run a cycle immediately instead of starting one here.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if now && watch {
				return fmt.Errorf("--now and --watch are mutually exclusive")
			}

			if now {
				return requestSyncNow()
			}

			logger := buildLogger()

			st, engine, err := buildEngine(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if watch {
				return runWatch(cmd.Context(), st, engine, logger)
			}

			return runOnce(cmd.Context(), st, engine)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep syncing until interrupted")
	cmd.Flags().BoolVar(&now, "now", false, "signal a running watcher to sync immediately")

	return cmd
}

// requestSyncNow nudges the running watcher over its PID file.
func requestSyncNow() error {
	if err := signalWatcher(watchPIDPath()); err != nil {
		return err
	}

	if !flagQuiet {
		fmt.Println("Requested an immediate cycle from the running watcher")
	}

	return nil
}

// buildEngine assembles the store, clock, and cycle engine from the
// loaded config. With no server configured the engine gets no
// protocol and cycles no-op.
func buildEngine(ctx context.Context, logger *slog.Logger) (*store.Store, *sync.Engine, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, nil, err
	}

	deviceID, err := st.DeviceID(ctx)
	if err != nil {
		st.Close()

		return nil, nil, err
	}

	clock := hlc.New(deviceID)

	var protocol *sync.Protocol

	if loadedCfg.Configured() && loadedCfg.Sync.Enabled {
		client := webdav.NewClient(
			remoteBaseURL(loadedCfg),
			loadedCfg.Server.Username,
			loadedCfg.Server.AppPassword,
			defaultHTTPClient(),
			logger,
		)
		protocol = sync.NewProtocol(client, st, deviceID, logger)
	}

	return st, sync.NewEngine(st, clock, protocol, logger), nil
}

// remoteBaseURL joins the server URL and the remote root.
func remoteBaseURL(cfg *config.Config) string {
	base := strings.TrimSuffix(cfg.Server.URL, "/")

	root := strings.Trim(cfg.Remote.Root, "/")
	if root == "" {
		return base
	}

	return base + "/" + root
}

// runOnce executes a single cycle and prints its counts.
func runOnce(ctx context.Context, st *store.Store, engine *sync.Engine) error {
	counts, err := engine.RunCycle(ctx)

	recordLastSync(ctx, st, counts, err)

	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(counts)
	}

	if !flagQuiet {
		fmt.Printf("Downloaded %d, uploaded %d", counts.Downloaded, counts.Uploaded)

		if counts.Failures > 0 {
			fmt.Printf(" (%d remote files skipped, will retry)", counts.Failures)
		}

		fmt.Println()
	}

	return nil
}

// runWatch runs the scheduler until SIGINT or SIGTERM. SIGHUP triggers
// an immediate cycle on top of the schedule.
func runWatch(ctx context.Context, st *store.Store, engine *sync.Engine, logger *slog.Logger) error {
	cleanup, err := writePIDFile(watchPIDPath())
	if err != nil {
		return err
	}
	defer cleanup()

	interval := loadedCfg.Sync.IntervalDuration()
	retry := loadedCfg.Sync.RetryIntervalDuration()

	sched := sync.NewScheduler(engine, interval, retry, logger)

	ctx = shutdownContext(ctx, logger)
	hup := syncNowSignals(ctx)

	sched.Start(ctx)

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-hup:
			logger.Info("immediate cycle requested by signal")

			if _, err := sched.SyncNow(ctx); err != nil {
				logger.Warn("signaled cycle failed", slog.String("error", err.Error()))
			}
		}
	}

	sched.Stop()

	// Persist the final cycle outcome for the status command.
	if log := sched.Log(); len(log) > 0 {
		last := log[len(log)-1]

		var lastErr error
		if last.Err != "" {
			lastErr = fmt.Errorf("%s", last.Err)
		}

		recordLastSync(context.Background(), st, last.Counts, lastErr)
	}

	return nil
}

// recordLastSync stores the cycle outcome in the meta table, best
// effort.
func recordLastSync(ctx context.Context, st *store.Store, counts sync.Counts, cycleErr error) {
	result := fmt.Sprintf("downloaded %d, uploaded %d, %d failures",
		counts.Downloaded, counts.Uploaded, counts.Failures)
	if cycleErr != nil {
		result = "error: " + cycleErr.Error()
	}

	_ = st.SetMeta(ctx, metaLastSyncTime, time.Now().UTC().Format(time.RFC3339))
	_ = st.SetMeta(ctx, metaLastSyncResult, result)
}

// watchPIDPath is the lock file preventing two concurrent watchers.
func watchPIDPath() string {
	dir := config.DefaultDataDir()
	if dir == "" {
		dir = os.TempDir()
	}

	return filepath.Join(dir, "covey-watch.pid")
}
