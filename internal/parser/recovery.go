package parser

import (
	"log"
	"regexp"
	"strings"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/jsonx"
)

var (
	messagePattern    = regexp.MustCompile(`"message"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	filesStartPattern = regexp.MustCompile(`"files"\s*:\s*\{`)

	// "<path>.<ext>": " with the value's opening quote consumed
	entryHeaderPattern = regexp.MustCompile(`"([^"]+\.(?:json|js|jsx|mjs|cjs|ts|tsx|css|scss|html|md|txt|svg))"\s*:\s*"`)
)

// ExtractPartial salvages every file entry that closed cleanly from output
// that failed strict decoding. Entries are consumed in document order and
// scanning stops at the first one that is unterminated or fails to unescape;
// that path is reported as IncompleteFile and anything after it is dropped.
func ExtractPartial(raw string) domain.ParseResult {
	res := domain.ParseResult{
		Message: extractMessage(raw),
		Files:   domain.NewFileMap(),
		Status:  domain.ParseTruncated,
	}

	loc := filesStartPattern.FindStringIndex(raw)
	if loc == nil {
		log.Printf("[Parser] No files object found in output")
		return res
	}
	body := raw[loc[1]:]

	found := 0
	pos := 0
	for pos < len(body) {
		m := entryHeaderPattern.FindStringSubmatchIndex(body[pos:])
		if m == nil {
			break
		}
		found++
		path := body[pos+m[2] : pos+m[3]]
		valueStart := pos + m[1]

		end, ok := findValueEnd(body, valueStart)
		if !ok {
			log.Printf("[Parser] Truncated file detected: %s", path)
			res.IncompleteFile = domain.NormalizePath(path)
			break
		}

		var content string
		if err := jsonx.Unmarshal([]byte(`"`+body[valueStart:end]+`"`), &content); err != nil {
			log.Printf("[Parser] Failed to unescape %s: %v", path, err)
			res.IncompleteFile = domain.NormalizePath(path)
			break
		}

		if p := domain.NormalizePath(path); p != "" {
			res.Files.Set(p, content)
		}
		pos = end + 1
	}

	log.Printf("[Parser] Extracted %d/%d file entries", res.Files.Len(), found)
	if res.IncompleteFile == "" {
		res.Status = domain.ParseComplete
	}
	return res
}

// findValueEnd returns the index of the closing quote of a string value that
// starts at from. The closing quote is the first unescaped '"' followed, after
// optional whitespace, by ',' or '}'.
func findValueEnd(s string, from int) (int, bool) {
	escaped := false
	for i := from; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c != '"' {
			continue
		}
		rest := strings.TrimLeft(s[i+1:], " \t\r\n")
		if strings.HasPrefix(rest, ",") || strings.HasPrefix(rest, "}") {
			return i, true
		}
	}
	return 0, false
}

func extractMessage(raw string) string {
	m := messagePattern.FindStringSubmatch(raw)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return DefaultMessage
	}
	var msg string
	if err := jsonx.Unmarshal([]byte(`"`+m[1]+`"`), &msg); err != nil {
		return m[1]
	}
	return msg
}
