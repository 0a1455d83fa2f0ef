package cli

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newResolveCmd(a *app) *cobra.Command {
	var (
		req      ResolveRequest
		useStdin bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Suggest a root cause and fix for a log error",
		Example: `  resolverctl resolve --log-id 3f0c...
  resolverctl resolve --text "ERROR [payments] connection refused" --top-k 3
  kubectl logs deploy/api | tail -n 20 | resolverctl resolve --stdin --service api`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if useStdin {
				buf, err := io.ReadAll(io.LimitReader(a.stdin, 64<<10))
				if err != nil {
					return err
				}
				req.LogText = string(buf)
			}
			if strings.TrimSpace(req.LogID) == "" && strings.TrimSpace(req.LogText) == "" {
				return errors.New("one of --log-id, --text or --stdin is required")
			}

			out, err := a.client().Resolve(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printer().Outcome(out)
		},
	}
	cmd.Flags().StringVar(&req.LogID, "log-id", "", "resolve a stored log record")
	cmd.Flags().StringVar(&req.LogText, "text", "", "resolve ad-hoc log text")
	cmd.Flags().BoolVar(&useStdin, "stdin", false, "read ad-hoc log text from stdin")
	cmd.Flags().StringVar(&req.ServiceName, "service", "", "service name for ad-hoc text")
	cmd.Flags().IntVar(&req.TopK, "top-k", 0, "number of similar errors to use (server default when 0)")
	cmd.MarkFlagsMutuallyExclusive("log-id", "text", "stdin")
	return cmd
}
