// ABOUTME: Writes a pair's conversation to a transcript file, as raw lines or rendered HTML
// ABOUTME: File names follow <self>_<contact>_<timestamp>.<ext> in the configured directory

package export

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/pairwise/internal/conversation"
	"github.com/2389/pairwise/internal/identity"
)

// Supported formats.
const (
	FormatText = "text"
	FormatHTML = "html"
)

// Exporter writes transcripts into a directory.
type Exporter struct {
	dir    string
	format string
	md     goldmark.Markdown
	logger *slog.Logger
}

// New creates an Exporter. An empty format means FormatText.
func New(dir, format string, logger *slog.Logger) (*Exporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatHTML:
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	return &Exporter{
		dir:    dir,
		format: format,
		md:     goldmark.New(),
		logger: logger.With("component", "export"),
	}, nil
}

// FileName returns "<self>_<contact>_<yyyyMMddHHmmssSSS>.<ext>".
func FileName(self, contact identity.User, now time.Time, ext string) string {
	stamp := now.Format("20060102150405") + fmt.Sprintf("%03d", now.Nanosecond()/int(time.Millisecond))
	return strings.Join([]string{sanitize(self.Name), sanitize(contact.Name), stamp}, "_") + "." + ext
}

// sanitize keeps names from escaping the export directory.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '-'
		}
		return r
	}, name)
}

// Write exports msgs and returns the path written. Text output has one encoded
// message per line, exactly as archived.
func (e *Exporter) Write(self, contact identity.User, msgs []*conversation.Message, now time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	var (
		body []byte
		err  error
		ext  = "txt"
	)
	if e.format == FormatHTML {
		ext = "html"
		body, err = e.renderHTML(self, contact, msgs)
	} else {
		body, err = renderText(msgs)
	}
	if err != nil {
		return "", err
	}

	path := filepath.Join(e.dir, FileName(self, contact, now, ext))
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("writing transcript: %w", err)
	}

	e.logger.Info("transcript exported", "path", path, "messages", len(msgs), "format", e.format)
	return path, nil
}

func renderText(msgs []*conversation.Message) ([]byte, error) {
	var buf bytes.Buffer
	for _, m := range msgs {
		line, err := m.Encode()
		if err != nil {
			return nil, err
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// renderHTML builds a markdown transcript and converts it with goldmark.
// Raw HTML in message text is not passed through.
func (e *Exporter) renderHTML(self, contact identity.User, msgs []*conversation.Message) ([]byte, error) {
	var md bytes.Buffer
	fmt.Fprintf(&md, "# %s and %s\n\n", escapeMarkdown(self.String()), escapeMarkdown(contact.String()))
	if len(msgs) == 0 {
		md.WriteString("_No messages._\n")
	}
	for _, m := range msgs {
		fmt.Fprintf(&md, "**%s** · %s\n\n", escapeMarkdown(m.From.Name), m.CreatedAt.UTC().Format(time.RFC3339))
		for _, line := range strings.Split(m.Text, "\n") {
			fmt.Fprintf(&md, "> %s\n", line)
		}
		md.WriteString("\n")
	}

	var rendered bytes.Buffer
	if err := e.md.Convert(md.Bytes(), &rendered); err != nil {
		return nil, fmt.Errorf("rendering transcript: %w", err)
	}

	var out bytes.Buffer
	title := html.EscapeString(self.Name + " and " + contact.Name)
	fmt.Fprintf(&out, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", title)
	out.Write(rendered.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "#", `\#`, "<", "&lt;", ">", "&gt;",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
