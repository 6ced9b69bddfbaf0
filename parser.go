package gitfilter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Parser is a state machine over the exporter's line-oriented output. The
// single escape hatch from line orientation is the data window: a
// "data <N>" line is followed by exactly N opaque payload bytes and a
// terminating newline. Bytes inside the window are never interpreted.
type Parser struct {
	r      *bufio.Reader
	offset int64
	// one line of lookahead for records terminated by the next header
	pending     []byte
	havePending bool
}

// NewParser wraps the exporter output. Wrap r in the debug tee before
// constructing the parser when a verbatim capture is wanted.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReaderSize(r, 1<<16)}
}

// Offset is the number of bytes consumed so far, for error context.
func (p *Parser) Offset() int64 {
	return p.offset
}

func (p *Parser) formatErr(line []byte, cause error) error {
	return fmt.Errorf("%w at byte %d: %q", cause, p.offset, line)
}

// readLine returns the next line without its trailing newline. io.EOF only
// when no bytes remain.
func (p *Parser) readLine() ([]byte, error) {
	if p.havePending {
		p.havePending = false
		return p.pending, nil
	}
	line, err := p.r.ReadBytes('\n')
	p.offset += int64(len(line))
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return line, nil
		}
		return nil, err
	}
	return line[:len(line)-1], nil
}

func (p *Parser) unreadLine(line []byte) {
	p.pending = line
	p.havePending = true
}

// readData consumes a data window given its header line.
func (p *Parser) readData(header []byte) ([]byte, error) {
	sizeBytes, ok := bytes.CutPrefix(header, []byte("data "))
	if !ok {
		return nil, p.formatErr(header, ErrInvalidDataHeader)
	}
	n, err := strconv.ParseUint(string(bytes.TrimSpace(sizeBytes)), 10, 63)
	if err != nil {
		return nil, p.formatErr(header, ErrInvalidDataHeader)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(p.r, payload); err != nil {
		return nil, fmt.Errorf("%w at byte %d: %v", ErrShortDataWindow, p.offset, err)
	}
	p.offset += int64(n)
	// terminating newline of the window
	if b, err := p.r.ReadByte(); err == nil {
		if b != '\n' {
			_ = p.r.UnreadByte()
		} else {
			p.offset++
		}
	} else if !errors.Is(err, io.EOF) {
		return nil, err
	}
	return payload, nil
}

// Next returns the next record, or io.EOF after the last one.
func (p *Parser) Next() (Record, error) {
	for {
		line, err := p.readLine()
		if err != nil {
			return nil, err
		}
		switch {
		case len(line) == 0:
			// stray blank between records
			continue
		case bytes.Equal(line, []byte("blob")):
			return p.parseBlob()
		case bytes.HasPrefix(line, []byte("commit ")):
			return p.parseCommit(line[len("commit "):])
		case bytes.HasPrefix(line, []byte("tag ")):
			return p.parseTag(line[len("tag "):])
		case bytes.HasPrefix(line, []byte("reset ")):
			return p.parseReset(line[len("reset "):])
		case bytes.Equal(line, []byte("done")):
			return &DoneRecord{}, nil
		case bytes.HasPrefix(line, []byte("feature ")),
			bytes.HasPrefix(line, []byte("option ")),
			bytes.HasPrefix(line, []byte("progress ")),
			bytes.Equal(line, []byte("checkpoint")):
			return &LineRecord{Line: append(dup(line), '\n')}, nil
		default:
			return nil, p.formatErr(line, ErrUnexpectedRecord)
		}
	}
}

func (p *Parser) parseBlob() (Record, error) {
	b := &BlobRecord{}
	for {
		line, err := p.readLine()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated blob at byte %d", ErrUnexpectedRecord, p.offset)
		}
		switch {
		case bytes.HasPrefix(line, []byte("mark :")):
			b.Mark = parseMark(line[len("mark "):])
		case bytes.HasPrefix(line, []byte("original-oid ")):
			b.OriginalOID = bytes.ToLower(dup(line[len("original-oid "):]))
		case bytes.HasPrefix(line, []byte("data ")):
			b.Data, err = p.readData(line)
			if err != nil {
				return nil, err
			}
			return b, nil
		default:
			return nil, p.formatErr(line, ErrUnexpectedRecord)
		}
	}
}

func parseParentOperand(operand []byte) (Mark, []byte) {
	if m := parseMark(operand); m != 0 {
		return m, nil
	}
	return 0, dup(operand)
}

func (p *Parser) parseCommit(ref []byte) (Record, error) {
	c := &CommitRecord{Ref: dup(ref)}
	sawData := false
	for {
		line, err := p.readLine()
		if err != nil {
			if err == io.EOF && sawData {
				return c, nil
			}
			return nil, fmt.Errorf("%w: truncated commit at byte %d", ErrUnexpectedRecord, p.offset)
		}

		if !sawData {
			switch {
			case bytes.HasPrefix(line, []byte("mark :")):
				c.Mark = parseMark(line[len("mark "):])
			case bytes.HasPrefix(line, []byte("original-oid ")):
				c.OriginalOID = bytes.ToLower(dup(line[len("original-oid "):]))
			case bytes.HasPrefix(line, []byte("author ")):
				c.Author = dup(line[len("author "):])
			case bytes.HasPrefix(line, []byte("committer ")):
				c.Committer = dup(line[len("committer "):])
			case bytes.HasPrefix(line, []byte("encoding ")):
				c.Encoding = dup(line[len("encoding "):])
			case bytes.HasPrefix(line, []byte("data ")):
				c.Message, err = p.readData(line)
				if err != nil {
					return nil, err
				}
				sawData = true
			default:
				return nil, p.formatErr(line, ErrUnexpectedRecord)
			}
			continue
		}

		switch {
		case len(line) == 0:
			// terminal blank line
			return c, nil
		case bytes.HasPrefix(line, []byte("from ")):
			c.From, c.FromRef = parseParentOperand(line[len("from "):])
		case bytes.HasPrefix(line, []byte("merge ")):
			m, r := parseParentOperand(line[len("merge "):])
			c.Merges = append(c.Merges, ParentRef{Mark: m, Ref: r})
		default:
			fc, err := parseFileChange(line)
			if err != nil {
				return nil, p.formatErr(line, err)
			}
			if fc == nil {
				// next record begins; commit had no terminal blank
				p.unreadLine(line)
				return c, nil
			}
			fc.Path = dup(fc.Path)
			fc.Src = dup(fc.Src)
			fc.Mode = dup(fc.Mode)
			fc.Ref = dup(fc.Ref)
			if fc.IsInline() {
				dataLine, err := p.readLine()
				if err != nil || !bytes.HasPrefix(dataLine, []byte("data ")) {
					return nil, fmt.Errorf("%w: inline modify without data at byte %d", ErrUnexpectedRecord, p.offset)
				}
				fc.Inline, err = p.readData(dataLine)
				if err != nil {
					return nil, err
				}
			}
			c.Changes = append(c.Changes, *fc)
		}
	}
}

func (p *Parser) parseTag(name []byte) (Record, error) {
	t := &TagRecord{Name: dup(name)}
	for {
		line, err := p.readLine()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated tag at byte %d", ErrUnexpectedRecord, p.offset)
		}
		switch {
		case bytes.HasPrefix(line, []byte("mark :")):
			t.Mark = parseMark(line[len("mark "):])
		case bytes.HasPrefix(line, []byte("from ")):
			t.From, t.FromRef = parseParentOperand(line[len("from "):])
		case bytes.HasPrefix(line, []byte("original-oid ")):
			t.OriginalOID = bytes.ToLower(dup(line[len("original-oid "):]))
		case bytes.HasPrefix(line, []byte("tagger ")):
			t.Tagger = dup(line[len("tagger "):])
		case bytes.HasPrefix(line, []byte("data ")):
			t.Message, err = p.readData(line)
			if err != nil {
				return nil, err
			}
			return t, nil
		default:
			return nil, p.formatErr(line, ErrUnexpectedRecord)
		}
	}
}

func (p *Parser) parseReset(ref []byte) (Record, error) {
	r := &ResetRecord{Ref: dup(ref)}
	line, err := p.readLine()
	if err != nil {
		if err == io.EOF {
			return r, nil
		}
		return nil, err
	}
	if bytes.HasPrefix(line, []byte("from ")) {
		r.From, r.FromRef = parseParentOperand(line[len("from "):])
		return r, nil
	}
	p.unreadLine(line)
	return r, nil
}

func dup(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
