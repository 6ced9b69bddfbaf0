package gitfilter

import (
	"bytes"
	"fmt"
	"io"
)

// FileChangeOp is the kind of a file change inside a commit.
type FileChangeOp byte

const (
	// FileModify is "M <mode> <blob-ref> <path>".
	FileModify FileChangeOp = 'M'
	// FileDelete is "D <path>".
	FileDelete FileChangeOp = 'D'
	// FileCopy is "C <src> <dst>".
	FileCopy FileChangeOp = 'C'
	// FileRename is "R <src> <dst>".
	FileRename FileChangeOp = 'R'
	// FileDeleteAll resets the tree ("deleteall").
	FileDeleteAll FileChangeOp = 'X'
)

// FileChange is one change line inside a commit. For modifies, Ref is the
// blob reference: a mark (":<n>"), a 40-hex id, or the literal "inline", in
// which case Inline carries the payload that followed the line.
type FileChange struct {
	Op   FileChangeOp
	Mode []byte
	Ref  []byte
	Path []byte
	// copy/rename source; Path is the destination
	Src    []byte
	Inline []byte
}

// IsInline reports whether the modify carries inline payload.
func (fc *FileChange) IsInline() bool {
	return fc.Op == FileModify && bytes.Equal(fc.Ref, []byte("inline"))
}

// RefMark returns the mark of the blob reference, or 0 when the reference is
// an oid or inline.
func (fc *FileChange) RefMark() Mark {
	return parseMark(fc.Ref)
}

func (fc *FileChange) Emit(w io.Writer) error {
	switch fc.Op {
	case FileDeleteAll:
		_, err := io.WriteString(w, "deleteall\n")
		return err
	case FileModify:
		if _, err := fmt.Fprintf(w, "M %s %s %s\n", fc.Mode, fc.Ref, EncodePath(fc.Path)); err != nil {
			return err
		}
		if fc.IsInline() {
			return emitData(w, fc.Inline)
		}
		return nil
	case FileDelete:
		_, err := fmt.Fprintf(w, "D %s\n", EncodePath(fc.Path))
		return err
	case FileCopy, FileRename:
		_, err := fmt.Fprintf(w, "%c %s %s\n", byte(fc.Op), EncodePath(fc.Src), EncodePath(fc.Path))
		return err
	}
	return fmt.Errorf("%w: file change op %q", ErrUnexpectedRecord, fc.Op)
}

// parsePathOperand splits one path operand off input: either a quoted form
// ending at the closing unescaped quote, or everything up to the next space
// or end of line. Returns the decoded path and the remainder.
func parsePathOperand(input []byte) (path, rest []byte, err error) {
	if len(input) == 0 {
		return nil, nil, fmt.Errorf("%w: empty path operand", ErrUnexpectedRecord)
	}
	if input[0] != '"' {
		idx := bytes.IndexByte(input, ' ')
		if idx < 0 {
			return input, nil, nil
		}
		return input[:idx], input[idx:], nil
	}
	for i := 1; i < len(input); i++ {
		if input[i] != '"' {
			continue
		}
		backslashes := 0
		for j := i - 1; j > 0 && input[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 1 {
			continue
		}
		return Dequote(input[1:i]), input[i+1:], nil
	}
	return nil, nil, fmt.Errorf("%w: unterminated quoted path", ErrUnexpectedRecord)
}

// parseFinalPath reads the last operand of a line: a quoted form, or the
// whole remainder verbatim (unquoted paths may contain spaces).
func parseFinalPath(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: empty path operand", ErrUnexpectedRecord)
	}
	if input[0] != '"' {
		return input, nil
	}
	path, tail, err := parsePathOperand(input)
	if err != nil {
		return nil, err
	}
	if len(tail) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after quoted path", ErrUnexpectedRecord)
	}
	return path, nil
}

// parseFileChange parses one file-change line (without trailing newline).
// Returns nil when the line is not a file change.
func parseFileChange(line []byte) (*FileChange, error) {
	if bytes.Equal(line, []byte("deleteall")) {
		return &FileChange{Op: FileDeleteAll}, nil
	}
	if len(line) < 2 || line[1] != ' ' {
		return nil, nil
	}
	switch line[0] {
	case 'M':
		rest := line[2:]
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: malformed M line", ErrUnexpectedRecord)
		}
		mode := rest[:sp]
		rest = rest[sp+1:]
		sp = bytes.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: malformed M line", ErrUnexpectedRecord)
		}
		ref := rest[:sp]
		path, err := parseFinalPath(rest[sp+1:])
		if err != nil {
			return nil, err
		}
		return &FileChange{Op: FileModify, Mode: mode, Ref: ref, Path: path}, nil
	case 'D':
		path, err := parseFinalPath(line[2:])
		if err != nil {
			return nil, err
		}
		return &FileChange{Op: FileDelete, Path: path}, nil
	case 'C', 'R':
		src, tail, err := parsePathOperand(line[2:])
		if err != nil {
			return nil, err
		}
		if len(tail) == 0 || tail[0] != ' ' {
			return nil, fmt.Errorf("%w: missing destination path", ErrUnexpectedRecord)
		}
		dst, err := parseFinalPath(tail[1:])
		if err != nil {
			return nil, err
		}
		return &FileChange{Op: FileChangeOp(line[0]), Src: src, Path: dst}, nil
	}
	return nil, nil
}
