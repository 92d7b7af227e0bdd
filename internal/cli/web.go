package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ragstack/internal/web"
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve a read-only browser view of the indexed records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		srv := web.NewServer(a.store, a.cfg.Collection.Name, a.log)
		return srv.ListenAndServe(ctx, a.cfg.Web.Addr)
	},
}
