// Package memtext parses and emits .memmap machine layout text.
//
// A .memmap file is a line-oriented section/key format:
//
//	[image]
//	frames = 4096
//
//	[pool kernel]
//	base = 0
//	frames = 2MB
//	metadata = self
//
// Sections appear in declaration order; the package keeps that order
// because later sections may refer to earlier ones by name. Parsing is
// purely syntactic; mem/boot gives headings and keys their meaning.
package memtext

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// KeyValue is a single key = value pair with its source line.
type KeyValue struct {
	Key   string
	Value string
	Line  int
}

// Section is one [heading] block and its pairs.
type Section struct {
	Name  string // section kind: "image", "pool", ...
	Arg   string // heading argument: the pool or window name, "" if none
	Line  int
	Pairs []KeyValue
}

// Heading reconstructs the text inside the brackets.
func (s *Section) Heading() string {
	if s.Arg == "" {
		return s.Name
	}
	return s.Name + " " + s.Arg
}

// Lookup returns the value of the last pair with the given key.
func (s *Section) Lookup(key string) (string, bool) {
	for i := len(s.Pairs) - 1; i >= 0; i-- {
		if s.Pairs[i].Key == key {
			return s.Pairs[i].Value, true
		}
	}
	return "", false
}

// Document is a parsed .memmap file, sections in declaration order.
type Document struct {
	Sections []*Section
}

// First returns the first section of the given kind, or nil.
func (d *Document) First(name string) *Section {
	for _, s := range d.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// All returns every section of the given kind, in order.
func (d *Document) All(name string) []*Section {
	var out []*Section
	for _, s := range d.Sections {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// ParseDocument reads .memmap text into a Document.
//
// Layout files written by older exporters arrive in the platform code
// page rather than UTF-8; the reader is wrapped with a Windows-1252
// decoder so pool and window names survive the trip.
func ParseDocument(r io.Reader) (*Document, error) {
	decoder := charmap.Windows1252.NewDecoder()
	utf8Reader := transform.NewReader(r, decoder)

	scanner := bufio.NewScanner(utf8Reader)
	buf := make([]byte, 0, ScannerInitialBufferSize)
	scanner.Buffer(buf, ScannerMaxLineSize)

	doc := &Document{Sections: make([]*Section, 0, InitialSectionCapacity)}
	var current *Section
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, CommentSemicolon) || strings.HasPrefix(line, CommentHash) {
			continue
		}

		// Section: [name] or [name arg]
		if strings.HasPrefix(line, SectionOpenBracket) {
			if !strings.HasSuffix(line, SectionCloseBracket) {
				return nil, fmt.Errorf("memtext: line %d: unterminated section heading %q", lineNo, line)
			}
			heading := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, SectionOpenBracket), SectionCloseBracket))
			if heading == "" {
				return nil, fmt.Errorf("memtext: line %d: empty section heading", lineNo)
			}
			name, arg := heading, ""
			if i := strings.IndexAny(heading, " \t"); i >= 0 {
				name, arg = heading[:i], strings.TrimSpace(heading[i+1:])
			}
			current = &Section{Name: name, Arg: arg, Line: lineNo}
			doc.Sections = append(doc.Sections, current)
			continue
		}

		// Pair: key = value
		eq := strings.Index(line, KeyAssignment)
		if eq < 0 {
			return nil, fmt.Errorf("memtext: line %d: expected key = value, got %q", lineNo, line)
		}
		if current == nil {
			return nil, fmt.Errorf("memtext: line %d: key %q outside any section", lineNo, line)
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if key == "" {
			return nil, fmt.Errorf("memtext: line %d: empty key", lineNo)
		}
		current.Pairs = append(current.Pairs, KeyValue{Key: key, Value: value, Line: lineNo})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning .memmap file: %w", err)
	}

	return doc, nil
}
