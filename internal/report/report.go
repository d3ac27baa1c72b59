// Package report prints styled terminal summaries of the block palette and
// of stored documents.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/storage"
)

type theme struct {
	title    lipgloss.Style
	subtitle lipgloss.Style
	muted    lipgloss.Style
	text     lipgloss.Style
	accent   lipgloss.Style
	panel    lipgloss.Style
}

func newTheme() theme {
	return theme{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		subtitle: lipgloss.NewStyle().Bold(true),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		text:     lipgloss.NewStyle(),
		accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}
}

// Templates writes the palette: one panel per template with its fields.
func Templates(w io.Writer, reg *blocks.Registry) error {
	th := newTheme()
	parts := []string{th.title.Render("Block palette")}
	for _, tpl := range reg.Templates() {
		lines := []string{
			th.subtitle.Render(tpl.Title) + " " + th.muted.Render(fmt.Sprintf("%s · %s", tpl.Type, tpl.Icon)),
		}
		for _, f := range blocks.SchemaFor(tpl.Type).Fields {
			lines = append(lines, th.text.Render("  "+describeField(f)))
		}
		parts = append(parts, th.panel.Render(strings.Join(lines, "\n")))
	}
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, parts...))
	return err
}

func describeField(f blocks.Field) string {
	switch f.Kind {
	case blocks.KindEnum:
		return fmt.Sprintf("%s (%s: %s, default %v)", f.Label, f.Kind, strings.Join(f.Options, "|"), f.Default)
	case blocks.KindInteger:
		return fmt.Sprintf("%s (%s %d..%d)", f.Label, f.Kind, f.Min, f.Max)
	default:
		return fmt.Sprintf("%s (%s)", f.Label, f.Kind)
	}
}

// Document writes a summary of snap: each block with its non-empty fields,
// then the connections between blocks.
func Document(w io.Writer, key storage.Key, snap canvas.Snapshot, reg *blocks.Registry) error {
	th := newTheme()
	parts := []string{
		th.title.Render(key.String()),
		th.muted.Render(fmt.Sprintf("%d blocks · %d connections", len(snap.Nodes), len(snap.Edges))),
	}

	labels := make(map[string]string, len(snap.Nodes))
	for _, n := range snap.Nodes {
		label := n.Label
		if label == "" {
			if tpl, err := reg.Lookup(n.BlockType); err == nil {
				label = tpl.Title
			}
		}
		labels[n.ID] = label

		lines := []string{
			th.subtitle.Render(label) + " " +
				th.muted.Render(fmt.Sprintf("%s @ (%.0f, %.0f)", n.BlockType, n.Position.X, n.Position.Y)),
		}
		for _, f := range blocks.Render(n.BlockType, n.Content) {
			if s, ok := f.Value.(string); ok && s == "" {
				continue
			}
			lines = append(lines, th.text.Render(fmt.Sprintf("  %s: %v", f.Label, f.Value)))
		}
		parts = append(parts, th.panel.Render(strings.Join(lines, "\n")))
	}

	if len(snap.Edges) > 0 {
		parts = append(parts, th.subtitle.Render("Connections"))
		for _, e := range snap.Edges {
			parts = append(parts, "  "+th.text.Render(labels[e.Source])+th.accent.Render(" → ")+th.text.Render(labels[e.Target]))
		}
	}

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, parts...))
	return err
}
