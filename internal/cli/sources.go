package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ragcorpus/internal/app"
)

var (
	sourcesTree  bool
	sourcesJSON  bool
	exportOutput string
)

var sourcesCmd = &cobra.Command{
	Use:     "sources",
	Aliases: []string{"source"},
	Short:   "Manage ingested documents and websites",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app.App) error {
			ctx := cmd.Context()
			sources, err := a.Service.ListSources(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sourcesJSON {
				return printJSON(out, sources)
			}
			if sourcesTree {
				cols, err := a.Service.ListCollections(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(out, sourceTree(sources, cols))
				return nil
			}
			if len(sources) == 0 {
				fmt.Fprintln(out, "No sources yet.")
				return nil
			}
			for _, s := range sources {
				fmt.Fprintf(out, "%s  %s\n", dim(s.ID), describeSource(s))
			}
			return nil
		})
	},
}

var sourcesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			s, err := a.Service.GetSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		})
	},
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete sources and their chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			res, err := a.Service.BulkDelete(cmd.Context(), args)
			if err != nil {
				return err
			}
			printBulk(cmd.OutOrStdout(), res)
			if res.Failed > 0 {
				return fmt.Errorf("%d source(s) not deleted", res.Failed)
			}
			return nil
		})
	},
}

var sourcesAssignCmd = &cobra.Command{
	Use:   "assign <collection> <id>...",
	Short: "Add sources to a collection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			res, err := a.Service.BulkAssign(cmd.Context(), args[1:], args[0])
			if err != nil {
				return err
			}
			printBulk(cmd.OutOrStdout(), res)
			if res.Failed > 0 {
				return fmt.Errorf("%d source(s) not assigned", res.Failed)
			}
			return nil
		})
	},
}

var sourcesUnassignCmd = &cobra.Command{
	Use:   "unassign <id> <collection>",
	Short: "Remove a source from a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			s, err := a.Service.UnassignCollection(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okMark, describeSource(s))
			return nil
		})
	},
}

var sourcesExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write a document's original upload to stdout or a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			rc, info, err := a.Service.OpenFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer rc.Close()

			var w io.Writer = cmd.OutOrStdout()
			if exportOutput != "" {
				f, err := os.Create(exportOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if _, err := io.Copy(w, rc); err != nil {
				return fmt.Errorf("export %s: %w", info.Name, err)
			}
			return nil
		})
	},
}

func init() {
	sourcesListCmd.Flags().BoolVar(&sourcesTree, "tree", false, "group sources under their collections")
	sourcesListCmd.Flags().BoolVar(&sourcesJSON, "json", false, "output as JSON")
	sourcesExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
	sourcesCmd.AddCommand(sourcesListCmd, sourcesShowCmd, sourcesDeleteCmd, sourcesAssignCmd, sourcesUnassignCmd, sourcesExportCmd)
	rootCmd.AddCommand(sourcesCmd)
}
