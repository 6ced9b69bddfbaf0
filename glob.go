package gitfilter

// GlobMatch matches text against a byte-wise glob pattern where '*' matches
// any run of non-'/' bytes, '?' matches a single non-'/' byte, and '**'
// (optionally followed by '/') matches any run of bytes including '/'.
// No character classes, no escapes: paths are opaque bytes.
func GlobMatch(pat, text []byte) bool {
	if len(pat) == 0 {
		return len(text) == 0
	}

	if pat[0] == '*' && len(pat) > 1 && pat[1] == '*' {
		rest := pat[2:]
		if len(rest) > 0 && rest[0] == '/' {
			rest = rest[1:]
		}
		for i := 0; ; i++ {
			if GlobMatch(rest, text[i:]) {
				return true
			}
			if i >= len(text) {
				return false
			}
		}
	}

	if pat[0] == '*' {
		rest := pat[1:]
		for i := 0; ; i++ {
			if GlobMatch(rest, text[i:]) {
				return true
			}
			if i >= len(text) || text[i] == '/' {
				return false
			}
		}
	}

	if pat[0] == '?' {
		if len(text) == 0 || text[0] == '/' {
			return false
		}
		return GlobMatch(pat[1:], text[1:])
	}

	if len(text) > 0 && pat[0] == text[0] {
		return GlobMatch(pat[1:], text[1:])
	}
	return false
}
