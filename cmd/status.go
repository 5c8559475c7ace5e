package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/swarmchat/internal/adapters/render/status"
	"github.com/bnema/swarmchat/internal/domain"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show node, session and moderation state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.oneShot(cmd.Context(), domain.ExplicitAuth{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.connect(cmd.Context()); err != nil {
				app.logger.Debug().Err(err).Msg("status without session")
			}

			report, err := buildReport(cmd, rt)
			if err != nil {
				return err
			}
			return writeReport(cmd, app, report, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func buildReport(cmd *cobra.Command, rt *runtime) (statusadapter.Report, error) {
	snapshot := rt.monitor.Snapshot()
	report := statusadapter.Report{
		Node:        snapshot.Status,
		NodeReady:   snapshot.Ready,
		ObservedAt:  snapshot.ObservedAt,
		Session:     rt.sessions.Session(),
		ListsLoaded: true,
	}
	if snapshot.Err != nil {
		report.ProbeError = snapshot.Err.Error()
	}

	var err error
	if report.Blocked, err = rt.moderation.Get(cmd.Context(), domain.ListBlocked); err != nil {
		return statusadapter.Report{}, fmt.Errorf("load blocked list: %w", err)
	}
	if report.Muted, err = rt.moderation.Get(cmd.Context(), domain.ListMuted); err != nil {
		return statusadapter.Report{}, fmt.Errorf("load muted list: %w", err)
	}

	return report, nil
}

func writeReport(cmd *cobra.Command, app *app, report statusadapter.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	rendered, err := app.statusRenderer(report, statusadapter.RenderOptions{
		Now:        app.now(),
		StaleAfter: 2*app.cfg.Monitor.HeartbeatInterval + time.Second,
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
