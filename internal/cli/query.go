package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragcorpus/internal/app"
	"ragcorpus/internal/service"
)

type queryFlags struct {
	corpus string
	sites  []string
	k      int
	json   bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.corpus, "corpus", "c", "", "restrict retrieval to a collection (id or name)")
	cmd.Flags().StringSliceVar(&f.sites, "site", nil, "restrict retrieval to website domains")
	cmd.Flags().IntVarP(&f.k, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	cmd.Flags().BoolVar(&f.json, "json", false, "output as JSON")
}

func (f *queryFlags) input(question string) service.QueryInput {
	return service.QueryInput{Question: question, K: f.k, Collection: f.corpus, Domains: f.sites}
}

var (
	askFlags    queryFlags
	searchFlags queryFlags
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			ans, err := a.Service.Ask(cmd.Context(), askFlags.input(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if askFlags.json {
				return printJSON(out, ans)
			}
			fmt.Fprintln(out, ans.Answer)
			if len(ans.Sources) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, dim(fmt.Sprintf("Sources (%d chunks):", ans.UsedChunks)))
				for _, s := range ans.Sources {
					fmt.Fprintf(out, "  - %s %s\n", s.Name, dim(s.URL))
				}
			}
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the chunks most similar to a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			res, err := a.Service.Search(cmd.Context(), searchFlags.input(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if searchFlags.json {
				return printJSON(out, res)
			}
			if len(res.Hits) == 0 {
				fmt.Fprintln(out, "No results found.")
				return nil
			}
			for i, h := range res.Hits {
				fmt.Fprintf(out, "[%d] %s %s\n", i+1, bold(h.SourceName), accent(fmt.Sprintf("(%.3f)", h.Score)))
				fmt.Fprintf(out, "    %s\n", snippet(h.Content, 200))
			}
			return nil
		})
	},
}

func init() {
	askFlags.register(askCmd)
	searchFlags.register(searchCmd)
	rootCmd.AddCommand(askCmd, searchCmd)
}
