package gitfilter

import (
	"bytes"
	"io"
)

// bufferTag renames and buffers an annotated tag. Tags are not emitted on
// arrival: the dedup key is the final (post-rename) ref, and the last record
// for a ref wins, so emission happens in one flush just before done.
func (e *engine) bufferTag(t *TagRecord) {
	oldRef := append([]byte(tagRefPrefix), t.Name...)
	renamed, _ := e.opts.TagRename.Apply(t.Name)
	t.Name = renamed
	newRef := append([]byte(tagRefPrefix), t.Name...)
	e.observeRef(oldRef, newRef)

	if t.OriginalOID != nil {
		e.oids.AddOriginal(t.OriginalOID)
		if t.Mark != 0 {
			e.marks.RecordOriginal(t.Mark, t.OriginalOID)
		}
	}
	t.Message = e.rewriteMessage(t.Message)

	key := string(newRef)
	if _, in := e.annotated[key]; !in {
		e.annotatedOrder = append(e.annotatedOrder, key)
	} else {
		e.report.TagsDeduped++
	}
	e.annotated[key] = t
}

// handleReset routes a reset record. Lightweight tag resets are buffered for
// the pre-done flush; branch resets are renamed and emitted in place.
// The returned record is what should be emitted now, nil when buffered.
func (e *engine) handleReset(r *ResetRecord) Record {
	if bytes.HasPrefix(r.Ref, []byte(tagRefPrefix)) {
		oldRef := r.Ref
		r.Ref = e.renameRef(r.Ref)
		e.observeRef(oldRef, r.Ref)
		key := string(r.Ref)
		if _, in := e.lightweight[key]; !in {
			e.lwOrder = append(e.lwOrder, key)
		} else {
			e.report.TagsDeduped++
		}
		e.lightweight[key] = r
		return nil
	}

	oldRef := r.Ref
	r.Ref = e.renameRef(r.Ref)
	e.observeRef(oldRef, r.Ref)
	if r.From != 0 {
		r.From = e.marks.Resolve(r.From)
		if r.From == 0 {
			// the target commit was pruned away with no survivor
			return nil
		}
		e.refTips[string(r.Ref)] = r.From
	}
	return r
}

// flushTags emits all buffered tags, annotated first, immediately before the
// stream's done record. A final ref present both as an annotated and a
// lightweight tag keeps only the annotated one.
func (e *engine) flushTags(w io.Writer) error {
	for _, key := range e.annotatedOrder {
		t := e.annotated[key]
		if t.From != 0 {
			from := e.marks.Resolve(t.From)
			if from == 0 {
				logger.Warn("dropping tag of fully pruned history", "tag", string(t.Name))
				continue
			}
			t.From = from
		}
		if err := t.Emit(w); err != nil {
			return err
		}
		if t.Mark != 0 {
			e.marks.MarkEmitted(t.Mark)
			e.refTips[key] = t.Mark
		} else if t.From != 0 {
			e.refTips[key] = t.From
		}
	}
	for _, key := range e.lwOrder {
		if _, isAnnotated := e.annotated[key]; isAnnotated {
			continue
		}
		r := e.lightweight[key]
		if r.From != 0 {
			from := e.marks.Resolve(r.From)
			if from == 0 {
				logger.Warn("dropping lightweight tag of fully pruned history", "ref", string(r.Ref))
				continue
			}
			r.From = from
			e.refTips[key] = from
		}
		if err := r.Emit(w); err != nil {
			return err
		}
	}
	return nil
}
