// Package render turns workbench analysis results into markdown reports and
// renders them for terminals.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/wricardo/mechanism-workbench/workbench/engine"
)

const defaultWidth = 80

// Markdown builds the analysis report for a snapshot
func Markdown(title string, snap *engine.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "System state: **%s**\n\n", snap.SystemState)
	if snap.Status.Message != "" {
		fmt.Fprintf(&b, "> %s\n\n", snap.Status.Message)
	}

	b.WriteString("## Components\n\n")
	if len(snap.Components) == 0 {
		b.WriteString("_Workspace is empty._\n\n")
	} else {
		b.WriteString("| ID | Kind | Position | Rotation | State |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, c := range snap.Components {
			fmt.Fprintf(&b, "| %d | %s | (%.0f, %.0f) | %.2f rad | %s |\n",
				c.ID, c.Kind, c.Position.X, c.Position.Y, c.Rotation, c.State)
		}
		b.WriteString("\n")
	}

	if len(snap.Engagements) > 0 {
		b.WriteString("## Engagements\n\n")
		for _, e := range snap.Engagements {
			fmt.Fprintf(&b, "- #%d → #%d (%s)\n", e.From, e.To, e.Kind)
		}
		b.WriteString("\n")
	}

	if len(snap.Constraints) > 0 {
		b.WriteString("## Constraints\n\n")
		for _, c := range snap.Constraints {
			fmt.Fprintf(&b, "- %s\n", c.Message)
		}
		b.WriteString("\n")
	}

	m := snap.Metrics
	b.WriteString("## Stress\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Rotation | %.0f |\n", m.RotationStress)
	fmt.Fprintf(&b, "| Friction | %.0f |\n", m.FrictionStress)
	fmt.Fprintf(&b, "| Mass | %.0f |\n", m.MassStress)
	fmt.Fprintf(&b, "| Contact | %.0f |\n", m.ContactStress)
	fmt.Fprintf(&b, "| Spring | %.0f |\n", m.SpringStress)
	b.WriteString("\n")

	f := m.Forces
	if f != (engine.Forces{}) {
		b.WriteString("## Forces\n\n")
		fmt.Fprintf(&b, "- Spring force: %.2f N\n", f.SpringForce)
		fmt.Fprintf(&b, "- Velocity: %.2f m/s\n", f.Velocity)
		fmt.Fprintf(&b, "- Impact energy: %.3f J\n", f.ImpactEnergy)
		fmt.Fprintf(&b, "- Contact force: %.2f N\n\n", f.ContactForce)
	}

	b.WriteString(FailuresMarkdown(snap.Failures))
	return b.String()
}

// FailuresMarkdown renders the ranked failure list
func FailuresMarkdown(failures []engine.FailureReport) string {
	var b strings.Builder
	b.WriteString("## Failure analysis\n\n")
	if len(failures) == 0 {
		b.WriteString("No failure modes detected.\n")
		return b.String()
	}
	for _, f := range failures {
		fmt.Fprintf(&b, "- **%s** %s: %s\n", f.Severity, f.Component, f.Reason)
	}
	return b.String()
}

// Style picks a glamour style for out: plain text when out is not a
// terminal, otherwise dark or light from the terminal background.
func Style(out io.Writer) string {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "notty"
	}
	if termenv.NewOutput(f).HasDarkBackground() {
		return "dark"
	}
	return "light"
}

// Width returns the terminal width of out, or a default
func Width(out io.Writer) int {
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return defaultWidth
}

// Terminal renders markdown with glamour in the given style
func Terminal(markdown, style string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}

// Write renders markdown for out, picking style and width from it
func Write(out io.Writer, markdown string) error {
	rendered, err := Terminal(markdown, Style(out), Width(out))
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, rendered)
	return err
}
