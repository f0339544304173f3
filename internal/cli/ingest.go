package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ragcorpus/internal/app"
)

var (
	ingestCorpus string
	fetchCorpus  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest local files as documents",
	Long: `Extracts, chunks and embeds each file and stores it as a document source.
Directories are walked recursively; hidden files are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Index a web page as a website source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			v, err := a.Service.IngestURL(cmd.Context(), args[0], fetchCorpus)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okMark, describeSource(v))
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestCorpus, "corpus", "c", "", "collection id or name to add the sources to")
	fetchCmd.Flags().StringVarP(&fetchCorpus, "corpus", "c", "", "collection id or name to add the source to")
	rootCmd.AddCommand(ingestCmd, fetchCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	paths, err := expandPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files found")
	}
	return withApp(func(a *app.App) error {
		ctx := cmd.Context()
		if ingestCorpus != "" {
			if _, err := a.Service.ResolveCollection(ctx, ingestCorpus); err != nil {
				return err
			}
		}
		out := cmd.OutOrStdout()
		failed := 0
		for _, p := range paths {
			v, err := a.Service.IngestPath(ctx, p, ingestCorpus)
			if err != nil {
				failed++
				fmt.Fprintf(out, "%s %s: %v\n", errMark, p, err)
				continue
			}
			fmt.Fprintf(out, "%s %s\n", okMark, describeSource(v))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d file(s) failed", failed, len(paths))
		}
		return nil
	})
}

// expandPaths replaces directories with the regular files beneath them.
func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != arg && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
