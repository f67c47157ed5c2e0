package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codec     tokenizer.Codec
	codecErr  error
	codecOnce sync.Once
)

func loadCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// Count returns the cl100k token count of text. Upstream vendors use their own
// tokenizers, so this is an estimate for bookkeeping only.
func Count(text string) (int, error) {
	c, err := loadCodec()
	if err != nil {
		return 0, err
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Estimate never fails: when the codec is unavailable it falls back to the
// usual four-characters-per-token rule of thumb.
func Estimate(texts ...string) uint64 {
	var total uint64
	for _, t := range texts {
		if t == "" {
			continue
		}
		n, err := Count(t)
		if err != nil {
			n = (len(t) + 3) / 4
		}
		total += uint64(n)
	}
	return total
}
