package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragstack/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <url-or-path>",
	Short: "Fetch, embed and index one content source",
	Long: `Ingest downloads or reads the given source (an HTTP(S) URL, a file,
or a directory of files), splits it into chunks, embeds each chunk and
stores the result. A source is indexed atomically: on any failure
nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		emb, err := a.embedder()
		if err != nil {
			return err
		}
		ch, err := a.chunker()
		if err != nil {
			return err
		}
		p := ingest.New(a.fetcher(), ch, emb, a.store, a.collection(), ingest.Options{
			Workers: a.cfg.Ingest.WorkerCount,
			Dedup:   a.cfg.Ingest.Dedup,
		}, a.log)

		n, err := p.Ingest(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d record(s) from %s\n", n, args[0])
		return nil
	},
}
