package section

import (
	"fmt"
	"io"

	"github.com/meigma/ewf/internal/ewftype"
)

// List is the ordered run of sections of one segment file, in on-disk order.
type List struct {
	records []Record
}

// Append adds rec to the end of the list.
func (l *List) Append(rec Record) {
	l.records = append(l.records, rec)
}

// Len returns the number of sections.
func (l *List) Len() int {
	return len(l.records)
}

// Records returns the sections in on-disk order. The slice must not be modified.
func (l *List) Records() []Record {
	return l.records
}

// FindFirst returns the first section of type t. The boolean is false when no
// such section exists, which is a normal condition for optional sections.
func (l *List) FindFirst(t Type) (Record, bool) {
	for _, rec := range l.records {
		if rec.Type == t {
			return rec, true
		}
	}
	return Record{}, false
}

// FindAll returns every section of type t in on-disk order.
func (l *List) FindAll(t Type) []Record {
	var out []Record
	for _, rec := range l.records {
		if rec.Type == t {
			out = append(out, rec)
		}
	}
	return out
}

// Last returns the final section of the list.
func (l *List) Last() (Record, bool) {
	if len(l.records) == 0 {
		return Record{}, false
	}
	return l.records[len(l.records)-1], true
}

// Terminal returns the type of the terminal section, or "" when the list does
// not end in one.
func (l *List) Terminal() Type {
	last, ok := l.Last()
	if !ok || !last.Type.Terminal() {
		return ""
	}
	return last.Type
}

// Before returns the last section of type t that precedes rec.
func (l *List) Before(rec Record, t Type) (Record, bool) {
	var found Record
	ok := false
	for _, r := range l.records {
		if r.Offset >= rec.Offset {
			break
		}
		if r.Type == t {
			found, ok = r, true
		}
	}
	return found, ok
}

// Walk follows the section chain of a file starting at start. The chain must
// move strictly forward and stay inside fileSize. When requireTerminal is set
// the chain must end in a done or next section that is also the last thing
// in the file; otherwise it may also end exactly at end of file.
func Walk(r io.ReaderAt, fileSize, start int64, requireTerminal bool) (*List, error) {
	list := &List{}
	off := start
	for {
		if off == fileSize && !requireTerminal {
			return list, nil
		}
		rec, err := Read(r, off, fileSize)
		if err != nil {
			return nil, err
		}
		list.Append(rec)
		if rec.Type.Terminal() {
			if end := rec.Offset + DescriptorSize; requireTerminal && end != fileSize {
				return nil, ewftype.AtOffset(
					fmt.Errorf("%w: %d bytes follow the %s section", ewftype.ErrMalformedSegment, fileSize-end, rec.Type), off)
			}
			return list, nil
		}
		switch {
		case rec.Next == 0:
			return nil, ewftype.AtOffset(
				fmt.Errorf("%w: %s section has no successor and no terminal section follows",
					ewftype.ErrMalformedSegment, rec.Type), off)
		case rec.Next <= off:
			return nil, ewftype.AtOffset(
				fmt.Errorf("%w: %s section links back to offset %d", ewftype.ErrMalformedSegment, rec.Type, rec.Next), off)
		case rec.Next < rec.End():
			return nil, ewftype.AtOffset(
				fmt.Errorf("%w: %s section links into its own payload", ewftype.ErrMalformedSegment, rec.Type), off)
		case rec.Next > fileSize:
			return nil, ewftype.AtOffset(
				fmt.Errorf("%w: %s section links past end of file to %d", ewftype.ErrMalformedSegment, rec.Type, rec.Next), off)
		case rec.Next == fileSize && requireTerminal:
			return nil, ewftype.AtOffset(
				fmt.Errorf("%w: missing terminal section", ewftype.ErrMalformedSegment), off)
		}
		off = rec.Next
	}
}
