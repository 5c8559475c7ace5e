package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/swarmchat/internal/adapters/tui"
	"github.com/bnema/swarmchat/internal/domain"
)

func newChatCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			probe, owned := app.nodeControl(ctx)
			if owned != nil {
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
					defer cancel()
					if err := owned.Close(shutdownCtx); err != nil {
						app.logger.Warn().Err(err).Msg("stop node")
					}
				}()
			}

			rt, err := app.startRuntime(ctx, probe, runtimeOptions{poll: true, autoConnect: app.cfg.Session.AutoConnect})
			if err != nil {
				return err
			}
			defer rt.Close()

			group, groupCtx := errgroup.WithContext(ctx)
			groupCtx, cancel := context.WithCancel(groupCtx)
			defer cancel()
			if owned != nil {
				group.Go(func() error {
					if err := rt.monitor.StartNode(groupCtx); err != nil && !errors.Is(err, domain.ErrNodeAlreadyRunning) {
						app.logger.Warn().Err(err).Msg("start node")
					}
					return nil
				})
			}
			group.Go(func() error {
				defer cancel()
				return tui.Run(groupCtx, tui.Deps{
					Timeline:   rt.timeline,
					Moderation: rt.moderation,
					Sessions:   rt.sessions,
					Now:        app.now,
				}, tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
			})

			return group.Wait()
		},
	}
}
