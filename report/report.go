// Package report renders a joined run for people to read.
package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/quii/guardedcounter/service"
)

// Formats accepted by [Render].
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatNone     = "none"
)

// ErrUnknownFormat indicates a report format that [Render] does not support.
var ErrUnknownFormat = errors.New("unknown report format")

// CheckFormat returns an error wrapping [ErrUnknownFormat] if [Render]
// does not support format.
func CheckFormat(format string) error {
	switch format {
	case FormatMarkdown, FormatHTML, FormatNone, "":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Render renders s in the given format. [FormatNone] renders nothing.
func Render(s service.Summary, format string) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(Markdown(s)), nil
	case FormatHTML:
		return HTML(s), nil
	default:
		return nil, CheckFormat(format)
	}
}

// Markdown renders s as a markdown document. The output depends only on s.
func Markdown(s service.Summary) string {
	b := strings.Builder{}

	fmt.Fprintf(&b, "# Run %s\n\n", s.ID)

	b.WriteString("| Field | Value |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(&b, "| Initial | %d |\n", s.Initial)
	fmt.Fprintf(&b, "| Final | %d |\n", s.Final)
	fmt.Fprintf(&b, "| Workers | %d |\n", s.Spawned)
	fmt.Fprintf(&b, "| Completed | %d |\n", s.Completed)
	fmt.Fprintf(&b, "| Failed | %d |\n", s.Failed)
	fmt.Fprintf(&b, "| Duration | %s |\n", s.Duration)
	fmt.Fprintf(&b, "| Trustworthy | %s |\n", yesNo(s.Trustworthy))

	if !s.Trustworthy {
		fmt.Fprintf(&b, "\n> %d of %d worker(s) failed. The final value is not trustworthy.\n",
			s.Failed, s.Spawned)
	}

	if len(s.Workers) == 0 {
		return b.String()
	}

	b.WriteString("\n## Workers\n\n")
	b.WriteString("| Worker | State | Error |\n")
	b.WriteString("| --- | --- | --- |\n")

	for _, w := range s.Workers {
		fmt.Fprintf(&b, "| %d | %s | %s |\n", w.ID, w.State, cell(w.Error))
	}

	return b.String()
}

// HTML renders s as an HTML fragment.
func HTML(s service.Summary) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})

	return markdown.ToHTML([]byte(Markdown(s)), p, r)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

// cell makes s safe to place in a single table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)

	return strings.Join(strings.Fields(s), " ")
}
