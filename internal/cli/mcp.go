package cli

import (
	"github.com/spf13/cobra"

	"ragcorpus/internal/app"
	"ragcorpus/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the corpus to AI assistants over MCP (stdio)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app.App) error {
			srv, err := mcp.NewServer(a.Service)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
