package stub

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/kalambet/resrun/internal/report"
)

// renderPDF writes a single-page PDF with the report text. It is a
// deliberately minimal writer: one Helvetica font, one content stream, ASCII
// text only. Real deployments have a proper renderer behind this endpoint.
func renderPDF(title string, sections []report.Section) []byte {
	var lines []string
	lines = append(lines, title, "")
	for _, sec := range sections {
		lines = append(lines, sec.Heading)
		lines = append(lines, strings.Split(sec.Body, "\n")...)
		lines = append(lines, "")
	}

	var content bytes.Buffer
	content.WriteString("BT\n/F1 12 Tf\n14 TL\n72 760 Td\n")
	for _, line := range lines {
		fmt.Fprintf(&content, "(%s) Tj\nT*\n", escapePDFText(line))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return out.Bytes()
}

// escapePDFText makes a line safe for a PDF literal string. Characters
// outside printable ASCII are replaced; the report's bullet and dash
// separators get plain equivalents.
func escapePDFText(s string) string {
	s = strings.ReplaceAll(s, "•", "*")
	s = strings.ReplaceAll(s, "—", "-")

	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			if r < 0x20 || r > 0x7e {
				b.WriteByte('?')
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
