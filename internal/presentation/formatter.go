package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text or json)", s)
	}
}

var (
	successColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#696969"}
	accentColor  = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
)

type styles struct {
	heading lipgloss.Style
	muted   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	key     lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{heading: plain, muted: plain, ok: plain, warn: plain, bad: plain, key: plain}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		heading: r.NewStyle().Bold(true).Foreground(accentColor),
		muted:   r.NewStyle().Foreground(mutedColor),
		ok:      r.NewStyle().Foreground(successColor),
		warn:    r.NewStyle().Foreground(warningColor),
		bad:     r.NewStyle().Foreground(errorColor).Bold(true),
		key:     r.NewStyle().Bold(true),
	}
}

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	format Format
	styles styles
}

// NewFormatter creates a new formatter. Color only affects text output.
func NewFormatter(writer io.Writer, format Format, color bool) *Formatter {
	return &Formatter{
		writer: writer,
		format: format,
		styles: newStyles(writer, color),
	}
}

// FormatRun writes a run report.
func (f *Formatter) FormatRun(run RunDTO) error {
	if f.format == FormatJSON {
		return f.encode(run)
	}
	_, err := io.WriteString(f.writer, f.renderRun(run))
	return err
}

// FormatManifest writes a manifest summary.
func (f *Formatter) FormatManifest(m ManifestDTO) error {
	if f.format == FormatJSON {
		return f.encode(m)
	}
	_, err := io.WriteString(f.writer, f.renderManifest(m))
	return err
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (f *Formatter) outcome(o string) string {
	switch o {
	case "registered", "removed", "cleared":
		return f.styles.ok.Render(o)
	case "refused":
		return f.styles.bad.Render(o)
	default:
		return f.styles.warn.Render(o)
	}
}

func (f *Formatter) renderRun(run RunDTO) string {
	s := f.styles
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s  %s %s\n",
		s.heading.Render("run"), run.RunID,
		s.muted.Render("manifest"), run.Manifest)
	fmt.Fprintf(&b, "%s\n\n", s.muted.Render(fmt.Sprintf("started %s, took %.3fms", run.StartedAt, run.DurationMS)))

	b.WriteString(s.heading.Render("Steps") + "\n")
	for _, st := range run.Steps {
		line := fmt.Sprintf("  %3d  %-13s %-16s %s", st.Index, st.Action, st.Target, f.outcome(st.Outcome))
		if st.Count > 0 {
			line += s.muted.Render(fmt.Sprintf(" (%d)", st.Count))
		}
		b.WriteString(line + "\n")
		if st.Error != "" {
			b.WriteString("       " + s.bad.Render(st.Error) + "\n")
		}
	}

	fmt.Fprintf(&b, "\n%s %s\n", s.heading.Render("Members"), s.muted.Render(fmt.Sprintf("(%d)", len(run.Members))))
	for _, m := range run.Members {
		b.WriteString("  " + m + "\n")
	}

	b.WriteString("\n" + s.heading.Render("Components") + "\n")
	for _, c := range run.Components {
		state := s.muted.Render("absent")
		if c.Present {
			state = s.ok.Render("present")
		}
		sat := s.ok.Render("satisfied")
		if !c.Satisfied {
			sat = s.warn.Render("pending")
		}
		fmt.Fprintf(&b, "  %s %s  %s, %s\n", s.key.Render(c.Handle), s.muted.Render(c.Key), state, sat)
		for _, sl := range c.Slots {
			b.WriteString("    " + f.renderSlot(sl) + "\n")
		}
		if len(c.Seen) > 0 {
			b.WriteString("    " + s.muted.Render("seen: "+strings.Join(c.Seen, ", ")) + "\n")
		}
	}

	if len(run.Events) > 0 {
		b.WriteString("\n" + s.heading.Render("Events") + "\n")
		for _, e := range run.Events {
			line := "  " + e.Type
			if e.Component != "" {
				line += " " + e.Component
			}
			if e.Error != "" {
				line += " " + s.muted.Render("("+e.Error+")")
			}
			b.WriteString(line + "\n")
		}
	}

	if run.Refused > 0 {
		fmt.Fprintf(&b, "\n%s\n", s.bad.Render(fmt.Sprintf("%d removal(s) refused", run.Refused)))
	}
	return b.String()
}

func (f *Formatter) renderSlot(sl SlotDTO) string {
	kind := "maybe"
	if sl.Strict {
		kind = "must"
	}
	target := sl.Descriptor
	if sl.Named != "" {
		target += "/" + sl.Named
	}
	occupant := f.styles.muted.Render("(empty)")
	if sl.Occupant != "" {
		occupant = sl.Occupant
	} else if sl.Strict {
		occupant = f.styles.warn.Render("(empty)")
	}
	return fmt.Sprintf("%-5s %s -> %s", kind, target, occupant)
}

func (f *Formatter) renderManifest(m ManifestDTO) string {
	s := f.styles
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n\n", s.heading.Render("manifest"), m.Name)
	fmt.Fprintf(&b, "%s %s\n", s.heading.Render("Components"), s.muted.Render(fmt.Sprintf("(%d)", len(m.Components))))
	for _, c := range m.Components {
		id := c.Identity
		if c.Parent != "" {
			id += " under " + c.Parent
		}
		fmt.Fprintf(&b, "  %s %s\n", s.key.Render(c.Handle), s.muted.Render(fmt.Sprintf("%s %s (%s)", c.Category, c.Label, id)))
		for _, d := range c.Depends {
			b.WriteString("    " + f.renderSlot(SlotDTO{Descriptor: d.Category, Named: d.Named, Strict: d.Strict, Occupant: "-"}) + "\n")
		}
	}

	fmt.Fprintf(&b, "\n%s %s\n", s.heading.Render("Steps"), s.muted.Render(fmt.Sprintf("(%d)", len(m.Steps))))
	for i, st := range m.Steps {
		fmt.Fprintf(&b, "  %3d  %s %s\n", i, st.Action, st.Target)
	}
	return b.String()
}
