package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kiranshivaraju/logresolver/internal/resolver"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q: must be one of text, json, yaml", f)
	}
}

// printer renders command results in the selected format.
type printer struct {
	w      io.Writer
	format string

	title  lipgloss.Style
	label  lipgloss.Style
	dim    lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	danger lipgloss.Style
}

func newPrinter(w io.Writer, format string) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:      w,
		format: format,
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		label:  r.NewStyle().Bold(true),
		dim:    r.NewStyle().Faint(true),
		good:   r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("11")),
		danger: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// structured writes v as JSON or YAML. YAML goes through JSON so both
// formats use the same field names.
func (p *printer) structured(v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if p.format == formatJSON {
		_, err = fmt.Fprintln(p.w, string(buf))
		return err
	}
	var generic any
	if err := json.Unmarshal(buf, &generic); err != nil {
		return err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return err
	}
	_, err = p.w.Write(out)
	return err
}

func (p *printer) confidence(c float64) string {
	s := fmt.Sprintf("%.0f%%", c*100)
	switch {
	case c >= 0.7:
		return p.good.Render(s)
	case c >= 0.5:
		return p.warn.Render(s)
	default:
		return p.danger.Render(s)
	}
}

func (p *printer) Outcome(o *resolver.Outcome) error {
	if p.format != formatText {
		return p.structured(o)
	}

	var b strings.Builder
	fmt.Fprintln(&b, p.title.Render("Resolution"))
	if o.LogID != nil {
		fmt.Fprintf(&b, "%s %s\n", p.label.Render("Log:"), o.LogID)
	}
	fmt.Fprintf(&b, "%s %s", p.label.Render("Confidence:"), p.confidence(o.ConfidenceScore))
	if o.Degraded {
		fmt.Fprintf(&b, " %s", p.warn.Render("(degraded: model output could not be parsed)"))
	}
	fmt.Fprintln(&b)
	if o.Pattern.Detected {
		fmt.Fprintf(&b, "%s %s\n", p.label.Render("Pattern:"),
			p.warn.Render(fmt.Sprintf("recurring, %d similar historical errors", o.Pattern.Frequency)))
	}

	fmt.Fprintf(&b, "\n%s\n%s\n", p.label.Render("Root cause"), o.RootCause)
	fmt.Fprintf(&b, "\n%s\n", p.label.Render("Recommended fix"))
	if len(o.FixSteps) > 0 {
		for i, step := range o.FixSteps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	} else {
		fmt.Fprintln(&b, o.RecommendedFix)
	}

	if len(o.SimilarMatches) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.label.Render("Similar errors"))
		writeMatches(&b, p, o.SimilarMatches)
	}
	if o.ResolutionID != nil {
		fmt.Fprintf(&b, "\n%s\n", p.dim.Render("saved as resolution "+o.ResolutionID.String()))
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}

func (p *printer) Analysis(a *resolver.Analysis) error {
	if p.format != formatText {
		return p.structured(a)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", p.title.Render("Similar errors for"), a.LogID)
	if a.Pattern.Detected {
		fmt.Fprintln(&b, p.warn.Render(fmt.Sprintf("Recurring pattern: %d close matches", a.Pattern.Frequency)))
	}
	if len(a.SimilarLogs) == 0 {
		fmt.Fprintln(&b, p.dim.Render("no similar errors found"))
	}
	writeMatches(&b, p, a.SimilarLogs)
	_, err := io.WriteString(p.w, b.String())
	return err
}

func (p *printer) Records(recs []*models.LogRecord) error {
	if p.format != formatText {
		return p.structured(recs)
	}
	for _, r := range recs {
		fmt.Fprintf(p.w, "%s %s %s %s\n", p.good.Render("ingested"), r.ID, p.dim.Render("["+r.ServiceName+"]"), r.ErrorLevel)
	}
	return nil
}

func writeMatches(b *strings.Builder, p *printer, matches []models.SimilarityMatch) {
	for i, m := range matches {
		fmt.Fprintf(b, "  %d. %s %s %s %s\n     %s\n",
			i+1,
			p.confidence(m.Score),
			p.dim.Render("["+m.ServiceName+"]"),
			m.ErrorLevel,
			p.dim.Render(m.LogID.String()),
			m.ErrorMessage,
		)
	}
}
