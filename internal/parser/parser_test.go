package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/appforge/internal/domain"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"upper case fence", "```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"javascript fence", "```javascript\n{\"a\":1}\n```", `{"a":1}`},
		{"js fence", "```js\n{\"a\":1}```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "\n\n  ```json\n{\"a\":1}\n```  \n", `{"a":1}`},
		{"trailing fence only", "{\"a\":1}\n```", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestParseComplete(t *testing.T) {
	res := Parse(`{"message":"ok","files":{"a.js":"const x=1;"}}`)

	assert.True(t, res.IsComplete())
	assert.Equal(t, "ok", res.Message)
	assert.Empty(t, res.IncompleteFile)
	assert.Equal(t, map[string]string{"a.js": "const x=1;"}, res.Files.ToMap())
}

func TestParseFencedMatchesUnwrapped(t *testing.T) {
	payload := `{"message":"built it","files":{"src/App.jsx":"export default function App() {\n  return <div/>;\n}","index.html":"<html></html>"}}`

	plain := Parse(payload)
	fenced := Parse("```json\n" + payload + "\n```")

	require.True(t, fenced.IsComplete())
	assert.Equal(t, plain.Message, fenced.Message)
	assert.Equal(t, plain.Files.Paths(), fenced.Files.Paths())
	assert.Equal(t, plain.Files.ToMap(), fenced.Files.ToMap())
}

func TestParsePreservesOrderAndNormalizesPaths(t *testing.T) {
	res := Parse(`{"message":"m","files":{"z.js":"1","/src/a.js":"2"," b.js ":"3"}}`)

	require.True(t, res.IsComplete())
	assert.Equal(t, []string{"z.js", "src/a.js", "b.js"}, res.Files.Paths())
}

func TestParseDefaultsMessage(t *testing.T) {
	res := Parse(`{"files":{"a.js":"x"}}`)
	assert.True(t, res.IsComplete())
	assert.Equal(t, DefaultMessage, res.Message)

	res = Parse(`{"message":"   ","files":{}}`)
	assert.True(t, res.IsComplete())
	assert.Equal(t, DefaultMessage, res.Message)
	assert.Equal(t, 0, res.Files.Len())
}

func TestParseSurroundingProse(t *testing.T) {
	res := Parse(`Sure! Here is your app: {"message":"ok","files":{"a.js":"1"}} Let me know.`)

	assert.True(t, res.IsComplete())
	assert.Equal(t, "ok", res.Message)
	assert.Equal(t, map[string]string{"a.js": "1"}, res.Files.ToMap())
}

func TestParseTruncated(t *testing.T) {
	res := Parse(`{"message":"ok","files":{"a.js":"const x=1;","b.js":"const y=2`)

	assert.False(t, res.IsComplete())
	assert.Equal(t, "ok", res.Message)
	assert.Equal(t, "b.js", res.IncompleteFile)
	assert.Equal(t, map[string]string{"a.js": "const x=1;"}, res.Files.ToMap())
}

func TestParseGarbage(t *testing.T) {
	res := Parse("I could not do that.")

	assert.False(t, res.IsComplete())
	assert.Equal(t, DefaultMessage, res.Message)
	assert.Equal(t, 0, res.Files.Len())
	assert.Empty(t, res.IncompleteFile)
}

func TestParseNonStringFileValueFallsBack(t *testing.T) {
	res := Parse(`{"message":"m","files":{"a.js":{"content":"x"}}}`)

	assert.Equal(t, domain.ParseComplete, res.Status)
	assert.Equal(t, 0, res.Files.Len())
}
