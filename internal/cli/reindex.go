package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragcorpus/internal/app"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Mirror every stored fragment into the configured vector index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app.App) error {
			n, err := a.Service.SyncIndex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s mirrored %d fragments\n", okMark, n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
