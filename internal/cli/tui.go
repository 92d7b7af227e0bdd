package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragstack/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Ask questions in a full-screen terminal console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		eng, err := a.engine()
		if err != nil {
			return err
		}
		summary := fmt.Sprintf("collection %s (%s, dim %d)",
			a.cfg.Collection.Name, a.cfg.Store.Type, a.cfg.Collection.Dimension)
		m := tui.New(eng, summary)
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}
