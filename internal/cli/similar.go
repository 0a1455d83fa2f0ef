package cli

import "github.com/spf13/cobra"

func newSimilarCmd(a *app) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "similar <log-id>",
		Short: "List historical errors similar to a stored log record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.client().Similar(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			return a.printer().Analysis(out)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of matches (server default when 0)")
	return cmd
}
