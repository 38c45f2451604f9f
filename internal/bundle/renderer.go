package bundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	versionSentinel = "<!-- tabsession-bundle-version: 1 -->"
	dataPrefix      = "<!-- tabsession-data: "
	dataSuffix      = " -->"
)

// BundleRenderer serializes a SessionBundle to bytes.
type BundleRenderer interface {
	Render(bundle *SessionBundle) ([]byte, error)
}

// RendererFor returns the renderer for format ("json", "markdown" or "text").
func RendererFor(format string) (BundleRenderer, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "text", "":
		return &TextRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want text, json or markdown)", format)
}

// JSONRenderer renders a SessionBundle as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(bundle *SessionBundle) ([]byte, error) {
	return json.MarshalIndent(bundle, "", "  ")
}

// MarkdownRenderer renders a SessionBundle as human-readable Markdown with
// an embedded base64 JSON payload for lossless round-trip parsing.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(bundle *SessionBundle) ([]byte, error) {
	jsonBytes, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder

	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	fmt.Fprintf(&sb, "# Session %s\n\n", bundle.Meta.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Data dir: %s\n", bundle.Meta.DataDir)
	fmt.Fprintf(&sb, "- Windows: %d\n", len(bundle.Windows))
	fmt.Fprintf(&sb, "- Tabs: %d\n", bundle.TabCount())
	fmt.Fprintf(&sb, "- Recently closed: %d\n", len(bundle.Recent))
	sb.WriteString("\n")

	sb.WriteString("## Windows\n\n")
	if len(bundle.Windows) == 0 {
		sb.WriteString("_No windows to restore._\n")
	}
	for i, w := range bundle.Windows {
		fmt.Fprintf(&sb, "### Window %d (id %d, %s)\n\n", i+1, w.ID, w.Type)
		writeMarkdownTabs(&sb, w.Tabs, w.SelectedTabIndex)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Recently Closed\n\n")
	if len(bundle.Recent) == 0 {
		sb.WriteString("_Nothing recently closed._\n")
	}
	for _, e := range bundle.Recent {
		switch e.Kind {
		case KindWindow:
			fmt.Fprintf(&sb, "- Window with %d tabs\n", len(e.Tabs))
		default:
			if len(e.Tabs) > 0 {
				fmt.Fprintf(&sb, "- [%s](%s)\n", mdEscape(e.Tabs[0].CurrentTitle()), e.Tabs[0].CurrentURL())
			}
		}
	}
	sb.WriteString("\n")

	return []byte(sb.String()), nil
}

func writeMarkdownTabs(sb *strings.Builder, tabs []Tab, selected int) {
	if len(tabs) == 0 {
		sb.WriteString("_No tabs._\n")
		return
	}
	sb.WriteString("| # | Title | URL | History |\n")
	sb.WriteString("|---|-------|-----|---------|\n")
	for i, t := range tabs {
		mark := ""
		if i == selected {
			mark = " *"
		}
		fmt.Fprintf(sb, "| %d%s | %s | %s | %d |\n",
			i+1, mark, mdEscape(t.CurrentTitle()), t.CurrentURL(), len(t.Navigations))
	}
}

func mdEscape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

// TextRenderer renders a plain-text summary for terminals and pipes.
type TextRenderer struct{}

func (r *TextRenderer) Render(bundle *SessionBundle) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d windows, %d tabs, %d recently closed\n",
		len(bundle.Windows), bundle.TabCount(), len(bundle.Recent))

	for i, w := range bundle.Windows {
		state := ""
		if w.Maximized {
			state = ", maximized"
		}
		fmt.Fprintf(&sb, "\nWindow %d  id=%d  %dx%d%s\n", i+1, w.ID, w.Bounds.Width, w.Bounds.Height, state)
		for j, t := range w.Tabs {
			mark := " "
			if j == w.SelectedTabIndex {
				mark = "*"
			}
			fmt.Fprintf(&sb, "  %s %2d. %s\n", mark, j+1, t.CurrentURL())
		}
	}

	if len(bundle.Recent) > 0 {
		sb.WriteString("\nRecently closed\n")
		for i, e := range bundle.Recent {
			if e.Kind == KindWindow {
				fmt.Fprintf(&sb, "  %2d. window (%d tabs)\n", i+1, len(e.Tabs))
				continue
			}
			if len(e.Tabs) > 0 {
				fmt.Fprintf(&sb, "  %2d. %s\n", i+1, e.Tabs[0].CurrentURL())
			}
		}
	}
	return []byte(sb.String()), nil
}
