package parser

import (
	"log"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/jsonx"
)

// DefaultMessage is used whenever the model output carries no usable message.
const DefaultMessage = "Changes applied successfully"

// Leading fences, tried in order. Only the first match is stripped.
var fencePatterns = []*regexp.Regexp{
	regexp.MustCompile("(?i)^```json\\s*"),
	regexp.MustCompile("(?i)^```javascript\\s*"),
	regexp.MustCompile("(?i)^```js\\s*"),
	regexp.MustCompile("^```\\s*"),
}

// envelope is the structured payload every generation is asked to produce.
type envelope struct {
	Message string          `json:"message"`
	Files   *domain.FileMap `json:"files"`
}

// Clean removes a single markdown code-block wrapper around model output.
func Clean(raw string) string {
	text := strings.TrimSpace(raw)
	for _, re := range fencePatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			text = text[loc[1]:]
			break
		}
	}
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// Parse converts raw model output into a ParseResult. It never fails: output
// that cannot be decoded strictly is handed to ExtractPartial.
func Parse(raw string) domain.ParseResult {
	cleaned := Clean(raw)
	if res, ok := decodeStrict(cleaned); ok {
		return res
	}

	// Models sometimes wrap the payload in prose. Retry on the outermost
	// braces of the untouched text.
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			candidate := raw[start : end+1]
			if strings.Contains(candidate, `"files"`) {
				if res, ok := decodeStrict(candidate); ok {
					log.Printf("[Parser] Extracted payload from surrounding text (%d of %d chars)", len(candidate), len(raw))
					return res
				}
			}
		}
	}

	log.Printf("[Parser] Strict decode failed, attempting partial extraction (%d chars)", len(raw))
	return ExtractPartial(raw)
}

func decodeStrict(text string) (domain.ParseResult, bool) {
	if !gjson.Valid(text) {
		return domain.ParseResult{}, false
	}
	if files := gjson.Get(text, "files"); files.Exists() && !files.IsObject() && files.Type != gjson.Null {
		return domain.ParseResult{}, false
	}

	var env envelope
	if err := jsonx.Unmarshal([]byte(text), &env); err != nil {
		return domain.ParseResult{}, false
	}

	msg := env.Message
	if strings.TrimSpace(msg) == "" {
		msg = DefaultMessage
	}
	return domain.ParseResult{
		Message: msg,
		Files:   normalize(env.Files),
		Status:  domain.ParseComplete,
	}, true
}

// normalize rewrites keys into project-relative form, dropping empty paths.
func normalize(files *domain.FileMap) *domain.FileMap {
	out := domain.NewFileMap()
	files.Range(func(path, content string) bool {
		if p := domain.NormalizePath(path); p != "" {
			out.Set(p, content)
		}
		return true
	})
	return out
}
