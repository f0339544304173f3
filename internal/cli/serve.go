package cli

import (
	"time"

	"github.com/spf13/cobra"

	"ragcorpus/internal/app"
	"ragcorpus/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app.App) error {
			sc := cfg.Server
			if serveAddr != "" {
				sc.Addr = serveAddr
			}
			srv := server.New(a.Service, server.Config{
				Addr:           sc.Addr,
				CORSOrigins:    sc.CORSOrigins,
				RequestTimeout: time.Duration(sc.RequestTimeoutSecs) * time.Second,
				MaxUploadBytes: sc.MaxUploadBytes,
			})
			return srv.Run(cmd.Context())
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
