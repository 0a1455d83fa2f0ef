// Package cli implements the resolverctl command tree.
package cli

import (
	"io"
	"os"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/logging"
	"github.com/spf13/cobra"
)

const (
	defaultServer  = "http://localhost:8080"
	defaultTimeout = 2 * time.Minute
)

type app struct {
	server   string
	apiKey   string
	output   string
	timeout  time.Duration
	logLevel string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (a *app) client() *Client {
	return NewClient(a.server, a.apiKey, a.timeout)
}

func (a *app) printer() *printer {
	return newPrinter(a.stdout, a.output)
}

// NewRootCommand builds resolverctl with the process's standard streams.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithIO(os.Stdin, os.Stdout, os.Stderr)
}

// NewRootCommandWithIO builds resolverctl with the given streams.
func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "resolverctl",
		Short:         "Resolve log errors against historical incidents",
		Long:          "resolverctl talks to a LogResolver server: ingest error logs, find similar historical errors, and ask for a root cause and fix.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := logging.Init(a.stderr, logging.Text, a.logLevel); err != nil {
				return err
			}
			return validFormat(a.output)
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.server, "server", envOr("RESOLVER_URL", defaultServer), "LogResolver server URL (env RESOLVER_URL)")
	cmd.PersistentFlags().StringVar(&a.apiKey, "api-key", os.Getenv("RESOLVER_API_KEY"), "API key (env RESOLVER_API_KEY)")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", formatText, "output format: text, json, yaml")
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", defaultTimeout, "request timeout")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level for diagnostics on stderr: debug, info, warn, error")

	cmd.AddCommand(
		newResolveCmd(a),
		newIngestCmd(a),
		newSimilarCmd(a),
		newSeedCmd(a),
	)
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
