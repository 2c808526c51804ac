package report

import "strings"

// Markdown renders the document as portable markdown-ish text: a title line,
// then each section as a heading line followed by its body. Consumers can
// paste this anywhere without caring about the export service.
func (d Document) Markdown() string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(d.Title)
	b.WriteString("\n")
	for _, sec := range d.Sections {
		b.WriteString("\n## ")
		b.WriteString(sec.Heading)
		b.WriteString("\n\n")
		b.WriteString(sec.Body)
		b.WriteString("\n")
	}
	return b.String()
}

// IsEmpty reports whether the document carries no sections at all.
func (d Document) IsEmpty() bool {
	return len(d.Sections) == 0
}
