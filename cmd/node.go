package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/swarmchat/internal/adapters/node/httpapi"
	"github.com/bnema/swarmchat/internal/application"
	"github.com/bnema/swarmchat/internal/domain"
)

const shutdownTimeout = 10 * time.Second

func newNodeCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Inspect and control the local node",
	}

	cmd.AddCommand(
		newNodeStatusCmd(app),
		newNodeStartCmd(app),
		newNodeStopCmd(app),
		newNodeServeCmd(app),
		newNodeLogsCmd(app),
	)
	return cmd
}

func newNodeStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe the node supervisor once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			monitor := application.NewNodeMonitor(app.supervisorClient(), app.monitorConfig(), nil, app.logger)
			defer monitor.Close()

			snapshot, err := monitor.Refresh(cmd.Context())
			if err != nil {
				app.logger.Debug().Err(err).Msg("node probe failed")
			}
			return writeNodeSnapshot(cmd.OutOrStdout(), snapshot, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newNodeStartCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the node and wait until it is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNodeTransition(cmd, app, (*application.NodeMonitor).StartNode)
		},
	}
}

func newNodeStopCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the node and wait until it has exited",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNodeTransition(cmd, app, (*application.NodeMonitor).StopNode)
		},
	}
}

func runNodeTransition(cmd *cobra.Command, app *app, transition func(*application.NodeMonitor, context.Context) error) error {
	monitor := application.NewNodeMonitor(app.supervisorClient(), app.monitorConfig(), nil, app.logger)
	defer monitor.Close()

	if err := transition(monitor, cmd.Context()); err != nil {
		return err
	}
	return writeNodeSnapshot(cmd.OutOrStdout(), monitor.Snapshot(), false)
}

func writeNodeSnapshot(out io.Writer, snapshot application.NodeSnapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot.Status)
	}

	status := snapshot.Status
	lines := []string{fmt.Sprintf("state: %s", status.State)}
	if status.PID != nil {
		lines = append(lines, fmt.Sprintf("pid: %d", *status.PID))
	}
	if status.UptimeSeconds != nil {
		lines = append(lines, fmt.Sprintf("uptime: %s", time.Duration(*status.UptimeSeconds)*time.Second))
	}
	if status.HasPort() {
		lines = append(lines, fmt.Sprintf("client port: %d", *status.ClientPort))
	}
	if status.ErrorMessage != "" {
		lines = append(lines, "error: "+status.ErrorMessage)
	}
	lines = append(lines, fmt.Sprintf("ready: %t", snapshot.Ready))

	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func newNodeServeCmd(app *app) *cobra.Command {
	var listen string
	var start bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Supervise the node binary and expose the supervisor API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = app.cfg.Node.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			supervisor := app.newSupervisor()
			api := httpapi.NewServer(supervisor, supervisor, app.logger)
			server := &http.Server{
				Addr:              listen,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				app.logger.Info().Str("listen", listen).Msg("supervisor api listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve supervisor api: %w", err)
				}
				return nil
			})
			if start {
				group.Go(func() error {
					if err := supervisor.Start(groupCtx); err != nil {
						app.logger.Warn().Err(err).Msg("start node")
					}
					return nil
				})
			}
			group.Go(func() error {
				<-groupCtx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				api.Close()
				errs := []error{server.Shutdown(shutdownCtx)}
				errs = append(errs, supervisor.Close(shutdownCtx))
				return errors.Join(errs...)
			})

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "supervisor api on http://%s\n", listen)
			return group.Wait()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Supervisor API address (default node.listen)")
	cmd.Flags().BoolVar(&start, "start", true, "Start the node right away")
	return cmd
}

func newNodeLogsCmd(app *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Follow the node's output and port detection events",
		Long:  "Follow the node's output and port detection events. With --output, write the supervisor's recent log backlog to a file and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "" {
				events, err := app.supervisorClient().FetchBacklog(cmd.Context())
				if err != nil {
					return err
				}
				if err := exportLogs(output, events, time.Now()); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d log events to %s\n", len(events), output)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			sub := app.supervisorClient().SubscribeLogs(func(ev domain.NodeLogEvent) {
				_, _ = fmt.Fprintln(out, formatLogEvent(ev))
			})
			defer sub.Close()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the log backlog to this file instead of following")
	return cmd
}

// exportLogs writes a readable diagnostics file for events.
func exportLogs(path string, events []domain.NodeLogEvent, now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# swarmchat node logs exported %s\n", now.UTC().Format(time.RFC3339))
	if len(events) == 0 {
		b.WriteString("No captured logs available.\n")
	}
	for _, ev := range events {
		b.WriteString(formatLogEvent(ev))
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write log export: %w", err)
	}
	return nil
}

func formatLogEvent(ev domain.NodeLogEvent) string {
	if ev.Stream == domain.NodeLogPort {
		return fmt.Sprintf("[port] client port detected: %d", ev.Port)
	}
	return fmt.Sprintf("[%s] %s", ev.Stream, ev.Line)
}
