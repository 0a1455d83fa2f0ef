package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kiranshivaraju/logresolver/internal/ingest"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/spf13/cobra"
)

func newIngestCmd(a *app) *cobra.Command {
	var file, text, service string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Store error logs as resolution history",
		Long: `Store error logs as resolution history.

With --file every non-empty line is one log. Lines that are JSON objects are
sent as structured logs (service_name, error_level, error_message, raw_text,
metadata); anything else is sent as unstructured text. Use --file - for stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := a.client()
			switch {
			case text != "":
				rec, err := client.IngestText(cmd.Context(), text, service)
				if err != nil {
					return err
				}
				return a.printer().Records([]*models.LogRecord{rec})
			case file != "":
				r := a.stdin
				if file != "-" {
					f, err := os.Open(file)
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				recs, err := ingestLines(cmd.Context(), client, r, service)
				if perr := a.printer().Records(recs); perr != nil && err == nil {
					err = perr
				}
				return err
			default:
				return errors.New("one of --file or --text is required")
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one log per line, - for stdin")
	cmd.Flags().StringVar(&text, "text", "", "a single unstructured log line")
	cmd.Flags().StringVar(&service, "service", "", "service name for unstructured lines")
	cmd.MarkFlagsMutuallyExclusive("file", "text")
	return cmd
}

// ingestLines sends each line and stops at the first failure. Records
// stored before the failure are returned with the error.
func ingestLines(ctx context.Context, c *Client, r io.Reader, service string) ([]*models.LogRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), ingest.MaxTextBytes+1)

	var (
		recs   []*models.LogRecord
		lineNo int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var (
			rec *models.LogRecord
			err error
		)
		if strings.HasPrefix(line, "{") {
			var in ingest.StructuredLog
			if err := json.Unmarshal([]byte(line), &in); err != nil {
				return recs, fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
			}
			if in.ServiceName == "" {
				in.ServiceName = service
			}
			rec, err = c.IngestStructured(ctx, in)
		} else {
			rec, err = c.IngestText(ctx, line, service)
		}
		if err != nil {
			return recs, fmt.Errorf("line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return recs, fmt.Errorf("reading input: %w", err)
	}
	return recs, nil
}
