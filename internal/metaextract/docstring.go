package metaextract

import (
	"strings"

	"github.com/astdb-dev/astdb/internal/ast"
)

// commentPrefixes lists how each language's line comments begin; block
// comment delimiters are stripped separately.
var commentPrefixes = map[string][]string{
	"go":         {"//"},
	"javascript": {"//"},
	"jsx":        {"//"},
	"typescript": {"//"},
	"tsx":        {"//"},
	"python":     {"#"},
}

// ExtractDocstring returns the nearest contiguous comment block
// immediately preceding n, joined with single spaces and truncated at
// maxLen with a trailing ellipsis. Python has no leading
// doc-comment convention (its docstrings are the first statement inside
// the body), so it always returns "".
func ExtractDocstring(n *ast.RawNode, source []byte, language string, maxLen int) string {
	if language == "python" {
		return ""
	}
	if n == nil || n.Start.Byte == 0 {
		return ""
	}
	prefixes, ok := commentPrefixes[language]
	if !ok {
		return ""
	}
	if maxLen <= 0 {
		maxLen = MaxDocstringLength
	}

	lines := precedingLines(source, n.Start.Byte)

	var block []string
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			break
		}
		text, matched := stripCommentPrefix(line, prefixes)
		if !matched {
			break
		}
		block = append([]string{strings.TrimSpace(text)}, block...)
	}

	if len(block) == 0 {
		return ""
	}

	joined := strings.Join(block, " ")
	return truncate(joined, maxLen)
}

// precedingLines returns every source line strictly before the line
// containing byteOffset, in document order.
func precedingLines(source []byte, byteOffset int) []string {
	lineStart := byteOffset
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart == 0 {
		return nil
	}
	before := source[:lineStart-1]
	if len(before) == 0 {
		return nil
	}
	return strings.Split(string(before), "\n")
}

func stripCommentPrefix(line string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return strings.TrimPrefix(line, p), true
		}
	}
	return "", false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
