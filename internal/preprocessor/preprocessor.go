// Package preprocessor prepares raw source for the parser.
//
// It strips comments, joins continuation lines and expands object-like
// #define macros. Line numbering is preserved: removed or consumed lines
// are replaced with blank lines so every token position in the output
// matches the original file.
package preprocessor

import "strings"

// Macro is one textual macro definition.
type Macro struct {
	Name string
	Text string
}

// Preprocess returns the preprocessed source text.
func Preprocess(source string) string {
	lines := strings.Split(source, "\n")
	macros := make(map[string]string)

	// First sweep: comments and macro definitions.
	for i, line := range lines {
		if isCommentLine(line) {
			lines[i] = ""
			continue
		}
		if name, text, ok := parseDefine(line); ok {
			macros[name] = text
			lines[i] = ""
			continue
		}
		lines[i] = stripTrailingComment(line)
	}

	// Second sweep: continuation joining. A line ending in '&' absorbs the
	// following line (minus its own leading '&'); the absorbed line becomes
	// blank so numbering is stable.
	for i := 0; i < len(lines); i++ {
		for strings.HasSuffix(strings.TrimRight(lines[i], " \t"), "&") && i+1 < len(lines) {
			head := strings.TrimRight(lines[i], " \t")
			head = strings.TrimSuffix(head, "&")
			tail := strings.TrimLeft(lines[i+1], " \t")
			tail = strings.TrimPrefix(tail, "&")
			lines[i] = head + " " + tail
			lines[i+1] = ""
			// Re-check lines[i]: the absorbed tail may itself continue.
		}
	}

	// Third sweep: macro expansion.
	if len(macros) > 0 {
		for i, line := range lines {
			lines[i] = expandMacros(line, macros)
		}
	}

	return strings.Join(lines, "\n")
}

// isCommentLine reports whether the whole line is a comment. Fixed-form
// comments carry 'c', 'C' or '*' in column 1; free-form comments start
// with '!'.
func isCommentLine(line string) bool {
	if len(line) == 0 {
		return false
	}
	switch line[0] {
	case 'c', 'C', '*':
		return true
	}
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "!")
}

// stripTrailingComment removes a '!' comment from the end of a line.
func stripTrailingComment(line string) string {
	if idx := strings.IndexByte(line, '!'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// parseDefine recognizes "#define NAME TEXT".
func parseDefine(line string) (name, text string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "#define") {
		return "", "", false
	}
	rest := strings.TrimLeft(strings.TrimPrefix(trimmed, "#define"), " \t")
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return "", "", false
	}
	name = fields[0]
	if len(fields) == 2 {
		text = strings.TrimSpace(fields[1])
	}
	return name, text, true
}

// expandMacros substitutes macro names at word boundaries.
func expandMacros(line string, macros map[string]string) string {
	if line == "" {
		return line
	}
	var sb strings.Builder
	i := 0
	for i < len(line) {
		c := line[i]
		if isWordStart(c) {
			j := i
			for j < len(line) && isWordChar(line[j]) {
				j++
			}
			word := line[i:j]
			if text, ok := macros[word]; ok {
				sb.WriteString(text)
			} else {
				sb.WriteString(word)
			}
			i = j
			continue
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String()
}

func isWordStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isWordChar(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}
