// Package formscan extracts text and labeled fields from scanned paper-form
// PDFs so the intake worker can turn them into structured check-in rows.
package formscan

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractText reads PDF bytes and returns plain text, one page per block.
func ExtractText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// ExtractFromReader drains the reader before passing along to ExtractText.
func ExtractFromReader(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	return ExtractText(data)
}

// ParseFields pulls "Label: value" pairs out of extracted form text. Labels
// are lower-cased with spaces collapsed to underscores; the first occurrence
// of a label wins. Lines without a colon are ignored.
func ParseFields(text string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		label := normalizeLabel(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if label == "" || value == "" {
			continue
		}
		if _, seen := fields[label]; !seen {
			fields[label] = value
		}
	}
	return fields
}

func normalizeLabel(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.Join(strings.Fields(label), "_")
	// Colons inside long prose lines produce junk labels; cap what we accept.
	if len(label) > 48 {
		return ""
	}
	return label
}
