package gitfilter

import (
	"fmt"
	"io"
)

// Record is one parsed fast-export stream record. Emit reproduces the exact
// wire form git fast-import expects, including mark placement, data framing
// and the terminal blank-line convention of each record kind.
type Record interface {
	Emit(w io.Writer) error
}

// BlobRecord is a blob with its payload. The original-oid sidecar is kept
// for bookkeeping but never re-emitted: fast-import only accepts it on
// commits and tags.
type BlobRecord struct {
	Mark        Mark
	OriginalOID []byte
	Data        []byte
}

func (b *BlobRecord) Emit(w io.Writer) error {
	if _, err := io.WriteString(w, "blob\n"); err != nil {
		return err
	}
	if b.Mark != 0 {
		if _, err := fmt.Fprintf(w, "mark :%d\n", b.Mark); err != nil {
			return err
		}
	}
	return emitData(w, b.Data)
}

// CommitRecord is a commit: ref, identity sidecars, author/committer lines
// kept verbatim, message payload, parents and file changes.
type CommitRecord struct {
	Ref         []byte
	Mark        Mark
	OriginalOID []byte
	// author is optional in the stream (root commits of some exporters)
	Author    []byte // full line without "author " prefix and newline
	Committer []byte
	Encoding  []byte
	Message   []byte
	// From is the first parent when it is a mark reference; FromRef carries
	// the raw operand otherwise (a hex oid or ref name via
	// --reference-excluded-parents).
	From    Mark
	FromRef []byte
	Merges  []ParentRef
	Changes []FileChange
}

// ParentRef is one merge parent: a mark, or a raw operand for parents
// outside the stream.
type ParentRef struct {
	Mark Mark
	Ref  []byte
}

func (p ParentRef) operand() []byte {
	if p.Mark != 0 {
		return []byte(fmt.Sprintf(":%d", p.Mark))
	}
	return p.Ref
}

// HasFrom reports whether the commit names a first parent.
func (c *CommitRecord) HasFrom() bool {
	return c.From != 0 || len(c.FromRef) > 0
}

// ParentCount counts the named parents (first parent plus merges).
func (c *CommitRecord) ParentCount() int {
	n := 0
	if c.HasFrom() {
		n = 1
	}
	return n + len(c.Merges)
}

// IsMerge reports whether the commit has two or more parents.
func (c *CommitRecord) IsMerge() bool {
	return c.ParentCount() >= 2
}

func (c *CommitRecord) Emit(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "commit %s\n", c.Ref); err != nil {
		return err
	}
	if c.Mark != 0 {
		if _, err := fmt.Fprintf(w, "mark :%d\n", c.Mark); err != nil {
			return err
		}
	}
	if len(c.OriginalOID) > 0 {
		if _, err := fmt.Fprintf(w, "original-oid %s\n", c.OriginalOID); err != nil {
			return err
		}
	}
	if len(c.Author) > 0 {
		if _, err := fmt.Fprintf(w, "author %s\n", c.Author); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "committer %s\n", c.Committer); err != nil {
		return err
	}
	if len(c.Encoding) > 0 {
		if _, err := fmt.Fprintf(w, "encoding %s\n", c.Encoding); err != nil {
			return err
		}
	}
	if err := emitData(w, c.Message); err != nil {
		return err
	}
	if c.From != 0 {
		if _, err := fmt.Fprintf(w, "from :%d\n", c.From); err != nil {
			return err
		}
	} else if len(c.FromRef) > 0 {
		if _, err := fmt.Fprintf(w, "from %s\n", c.FromRef); err != nil {
			return err
		}
	}
	for _, m := range c.Merges {
		if _, err := fmt.Fprintf(w, "merge %s\n", m.operand()); err != nil {
			return err
		}
	}
	for i := range c.Changes {
		if err := c.Changes[i].Emit(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// TagRecord is an annotated tag. Name is the short tag name (after
// refs/tags/).
type TagRecord struct {
	Name        []byte
	Mark        Mark
	From        Mark
	FromRef     []byte
	OriginalOID []byte
	Tagger      []byte
	Message     []byte
}

func (t *TagRecord) Emit(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "tag %s\n", t.Name); err != nil {
		return err
	}
	if t.Mark != 0 {
		if _, err := fmt.Fprintf(w, "mark :%d\n", t.Mark); err != nil {
			return err
		}
	}
	if t.From != 0 {
		if _, err := fmt.Fprintf(w, "from :%d\n", t.From); err != nil {
			return err
		}
	} else if len(t.FromRef) > 0 {
		if _, err := fmt.Fprintf(w, "from %s\n", t.FromRef); err != nil {
			return err
		}
	}
	if len(t.OriginalOID) > 0 {
		if _, err := fmt.Fprintf(w, "original-oid %s\n", t.OriginalOID); err != nil {
			return err
		}
	}
	if len(t.Tagger) > 0 {
		if _, err := fmt.Fprintf(w, "tagger %s\n", t.Tagger); err != nil {
			return err
		}
	}
	return emitData(w, t.Message)
}

// ResetRecord positions a ref, optionally at a from target. Lightweight tags
// arrive as resets under refs/tags/.
type ResetRecord struct {
	Ref     []byte
	From    Mark
	FromRef []byte
}

// HasFrom reports whether the reset carries a target.
func (r *ResetRecord) HasFrom() bool {
	return r.From != 0 || len(r.FromRef) > 0
}

func (r *ResetRecord) Emit(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "reset %s\n", r.Ref); err != nil {
		return err
	}
	if r.From != 0 {
		_, err := fmt.Fprintf(w, "from :%d\n", r.From)
		return err
	}
	if len(r.FromRef) > 0 {
		_, err := fmt.Fprintf(w, "from %s\n", r.FromRef)
		return err
	}
	return nil
}

// AliasRecord maps a pruned commit's mark to its surviving first parent so
// downstream from/merge references keep resolving.
type AliasRecord struct {
	Mark Mark
	To   Mark
}

func (a *AliasRecord) Emit(w io.Writer) error {
	_, err := fmt.Fprintf(w, "alias\nmark :%d\nto :%d\n\n", a.Mark, a.To)
	return err
}

// LineRecord is a single-line record forwarded verbatim: feature, progress,
// checkpoint, or anything the engine has no opinion about.
type LineRecord struct {
	Line []byte
}

func (l *LineRecord) Emit(w io.Writer) error {
	_, err := w.Write(l.Line)
	return err
}

// DoneRecord is the stream terminator produced by --use-done-feature.
type DoneRecord struct{}

func (d *DoneRecord) Emit(w io.Writer) error {
	_, err := io.WriteString(w, "done\n")
	return err
}

func emitData(w io.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "data %d\n", len(payload)); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
