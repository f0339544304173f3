package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ragcorpus/internal/app"
	"ragcorpus/internal/watcher"
)

var (
	watchCollection string
	watchScan       bool
	watchDebounce   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Keep a directory's files ingested",
	Long: `Watches a directory and ingests files as they are created or modified.
A modified file replaces its previous source; a removed file deletes it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			w := watcher.New(args[0], watchCollection, a.Service)
			w.SetDebounce(watchDebounce)
			w.OnChange = func(c watcher.Change) {
				switch {
				case c.Err != nil:
					fmt.Fprintf(out, "%s %s: %v\n", errMark, c.Path, c.Err)
				case c.Kind == watcher.ChangeRemoved:
					fmt.Fprintf(out, "%s removed %s\n", okMark, c.Path)
				default:
					fmt.Fprintf(out, "%s %s\n", okMark, describeSource(c.Source))
				}
			}

			if watchScan {
				if err := w.Scan(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", accent(args[0]))
			err := w.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchCollection, "corpus", "c", "", "collection to add new sources to")
	watchCmd.Flags().BoolVar(&watchScan, "scan", false, "ingest files already present before watching")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a changed file is ingested")
	rootCmd.AddCommand(watchCmd)
}
