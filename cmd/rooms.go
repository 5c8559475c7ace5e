package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/swarmchat/internal/adapters/render/status"
	"github.com/bnema/swarmchat/internal/domain"
)

func newRoomsCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List joined rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.oneShot(cmd.Context(), domain.ExplicitAuth{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.connect(cmd.Context()); err != nil {
				return err
			}

			rooms, err := rt.timeline.Rooms(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rooms)
			}
			for _, room := range rooms {
				line := room.ID
				if room.Name != "" {
					line += "\t" + room.Name
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newHistoryCmd(app *app) *cobra.Command {
	var roomID string
	var asJSON bool
	var showBlocked bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a room's recent messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.oneShot(cmd.Context(), domain.ExplicitAuth{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.connect(cmd.Context()); err != nil {
				return err
			}
			if err := rt.timeline.SelectRoom(cmd.Context(), roomID); err != nil {
				return err
			}

			messages := rt.timeline.Visible()
			if showBlocked {
				messages = rt.timeline.Messages()
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(messages)
			}

			rendered, err := statusadapter.RenderMessages(roomID, messages, statusadapter.RenderOptions{
				Now:  app.now(),
				Self: rt.sessions.Session().UserID,
			})
			if err != nil {
				return fmt.Errorf("render history: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "Room ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&showBlocked, "show-blocked", false, "Include messages from blocked senders")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func newSendCmd(app *app) *cobra.Command {
	var roomID string
	var body string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a text message to a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.oneShot(cmd.Context(), domain.ExplicitAuth{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.connect(cmd.Context()); err != nil {
				return err
			}
			if err := rt.timeline.SelectRoom(cmd.Context(), roomID); err != nil {
				return err
			}

			msg, err := rt.timeline.SendMessage(cmd.Context(), body)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
			return err
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "Room ID")
	cmd.Flags().StringVar(&body, "body", "", "Message text")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}
