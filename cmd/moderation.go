package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/swarmchat/internal/domain"
)

// newListCmd builds the add/remove/list group for one moderation list.
func newListCmd(app *app, use string, kind domain.ListKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Manage the %s users list", kind),
	}

	edit := func(verb string, apply func(*runtime, *cobra.Command, string) ([]string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   verb + " <user-id>",
			Short: fmt.Sprintf("%s a user %s the %s list", verb, map[string]string{"add": "to", "remove": "from"}[verb], kind),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := domain.ValidateUserID(args[0]); err != nil {
					return err
				}

				rt, err := openModeration(cmd, app)
				if err != nil {
					return err
				}
				defer rt.Close()

				ids, err := apply(rt, cmd, args[0])
				if err != nil {
					return err
				}
				return writeIDs(cmd, ids, false)
			},
		}
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("Print the %s list", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openModeration(cmd, app)
			if err != nil {
				return err
			}
			defer rt.Close()

			ids, err := rt.moderation.Get(cmd.Context(), kind)
			if err != nil {
				return err
			}
			return writeIDs(cmd, ids, asJSON)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	cmd.AddCommand(
		edit("add", func(rt *runtime, cmd *cobra.Command, id string) ([]string, error) {
			return rt.moderation.Add(cmd.Context(), kind, id)
		}),
		edit("remove", func(rt *runtime, cmd *cobra.Command, id string) ([]string, error) {
			return rt.moderation.Remove(cmd.Context(), kind, id)
		}),
		list,
	)
	return cmd
}

// openModeration wires a runtime and connects when the node allows it. The
// lists fall back to the local cache otherwise.
func openModeration(cmd *cobra.Command, app *app) (*runtime, error) {
	rt, err := app.oneShot(cmd.Context(), domain.ExplicitAuth{})
	if err != nil {
		return nil, err
	}
	if err := rt.connect(cmd.Context()); err != nil {
		app.logger.Debug().Err(err).Msg("moderation without session")
	}
	return rt, nil
}

func writeIDs(cmd *cobra.Command, ids []string, asJSON bool) error {
	if asJSON {
		if ids == nil {
			ids = []string{}
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(ids)
	}
	for _, id := range ids {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
			return err
		}
	}
	return nil
}
