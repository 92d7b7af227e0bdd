package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Ask questions interactively over the indexed documents",
	Long: `Query starts a read-eval loop: each line is answered with
retrieval-augmented generation over the configured collection.
Type "quit" to exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		eng, err := a.engine()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "Ask a question: ")
			if !scanner.Scan() {
				break
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				continue
			}
			if strings.EqualFold(question, "quit") {
				break
			}
			res, err := eng.Answer(ctx, question)
			if err != nil {
				// one failed question must not end the session
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				fmt.Fprintln(out, strings.Repeat("-", 50))
				continue
			}
			fmt.Fprintln(out, res.Answer)
			fmt.Fprintln(out, strings.Repeat("-", 50))
		}
		return scanner.Err()
	},
}
