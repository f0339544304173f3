package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragcorpus/internal/app"
)

var (
	collectionsJSON bool
	collectionID    string
)

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"corpus"},
	Short:   "Manage collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections with their source counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app.App) error {
			cols, err := a.Service.ListCollections(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if collectionsJSON {
				return printJSON(out, cols)
			}
			if len(cols) == 0 {
				fmt.Fprintln(out, "No collections yet.")
				return nil
			}
			for _, c := range cols {
				fmt.Fprintf(out, "%s  %s %s\n", dim(c.ID), bold(c.Name), dim(fmt.Sprintf("(%d sources)", c.Sources)))
			}
			return nil
		})
	},
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			c, err := a.Service.CreateCollection(cmd.Context(), collectionID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okMark, bold(c.Name), dim(c.ID))
			return nil
		})
	},
}

var collectionsRenameCmd = &cobra.Command{
	Use:   "rename <collection> <new-name>",
	Short: "Rename a collection; memberships are kept",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			c, err := a.Service.RenameCollection(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okMark, bold(c.Name), dim(c.ID))
			return nil
		})
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <collection>",
	Short: "Delete a collection; its sources are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			if err := a.Service.DeleteCollection(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", okMark, args[0])
			return nil
		})
	},
}

func init() {
	collectionsListCmd.Flags().BoolVar(&collectionsJSON, "json", false, "output as JSON")
	collectionsCreateCmd.Flags().StringVar(&collectionID, "id", "", "explicit collection id (default: random UUID)")
	collectionsCmd.AddCommand(collectionsListCmd, collectionsCreateCmd, collectionsRenameCmd, collectionsDeleteCmd)
	rootCmd.AddCommand(collectionsCmd)
}
