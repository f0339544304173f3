package cli

import (
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ragcorpus/internal/app"
	"ragcorpus/internal/tui"
)

var chatCollection string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("chat needs an interactive terminal; use 'rag ask' instead")
		}
		return withApp(func(a *app.App) error {
			ctx := cmd.Context()
			scope := ""
			if chatCollection != "" {
				c, err := a.Service.ResolveCollection(ctx, chatCollection)
				if err != nil {
					return err
				}
				scope = c.ID
			}
			p := tea.NewProgram(tui.New(ctx, a.Service, scope), tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatCollection, "corpus", "c", "", "restrict answers to this collection")
	rootCmd.AddCommand(chatCmd)
}
