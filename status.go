package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coveyapp/covey/internal/store"
)

// statusReport is the JSON shape of `covey status --json`.
type statusReport struct {
	DeviceID       string `json:"device_id"`
	Configured     bool   `json:"configured"`
	SyncEnabled    bool   `json:"sync_enabled"`
	PendingOps     int    `json:"pending_ops"`
	AppliedOps     int    `json:"applied_ops"`
	KnownFiles     int    `json:"known_remote_files"`
	LastSyncTime   string `json:"last_sync_time,omitempty"`
	LastSyncResult string `json:"last_sync_result,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := buildLogger()

			dbPath, err := databasePath()
			if err != nil {
				return err
			}

			st, err := store.Open(ctx, dbPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := collectStatus(cmd, st)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(report)
			}

			printStatus(report)

			return nil
		},
	}
}

func collectStatus(cmd *cobra.Command, st *store.Store) (*statusReport, error) {
	ctx := cmd.Context()

	deviceID, err := st.DeviceID(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := st.PendingCount(ctx)
	if err != nil {
		return nil, err
	}

	applied, err := st.LedgerSize(ctx)
	if err != nil {
		return nil, err
	}

	known, err := st.ManifestSize(ctx)
	if err != nil {
		return nil, err
	}

	lastTime, err := st.GetMeta(ctx, metaLastSyncTime)
	if err != nil {
		return nil, err
	}

	lastResult, err := st.GetMeta(ctx, metaLastSyncResult)
	if err != nil {
		return nil, err
	}

	return &statusReport{
		DeviceID:       deviceID,
		Configured:     loadedCfg.Configured(),
		SyncEnabled:    loadedCfg.Sync.Enabled,
		PendingOps:     pending,
		AppliedOps:     applied,
		KnownFiles:     known,
		LastSyncTime:   lastTime,
		LastSyncResult: lastResult,
	}, nil
}

func printStatus(r *statusReport) {
	fmt.Printf("Device ID:        %s\n", r.DeviceID)
	fmt.Printf("Server:           %s\n", configuredWord(r.Configured))
	fmt.Printf("Background sync:  %s\n", enabledWord(r.SyncEnabled))
	fmt.Printf("Pending ops:      %d\n", r.PendingOps)
	fmt.Printf("Applied ops:      %d\n", r.AppliedOps)
	fmt.Printf("Known files:      %d\n", r.KnownFiles)

	if r.LastSyncTime != "" {
		fmt.Printf("Last sync:        %s (%s)\n", r.LastSyncTime, r.LastSyncResult)
	}
}

func configuredWord(ok bool) string {
	if ok {
		return "configured"
	}

	return "not configured"
}

func enabledWord(ok bool) string {
	if ok {
		return "enabled"
	}

	return "disabled"
}
