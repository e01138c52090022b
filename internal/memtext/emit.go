package memtext

import (
	"bytes"
)

// Emit renders a Document back to .memmap text. Sections keep their
// order; a blank line separates them.
func Emit(doc *Document) []byte {
	var buf bytes.Buffer
	for i, s := range doc.Sections {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(SectionOpenBracket)
		buf.WriteString(s.Heading())
		buf.WriteString(SectionCloseBracket)
		buf.WriteByte('\n')
		for _, kv := range s.Pairs {
			buf.WriteString(kv.Key)
			buf.WriteString(" " + KeyAssignment + " ")
			buf.WriteString(kv.Value)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}
