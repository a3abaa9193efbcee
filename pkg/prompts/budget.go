package prompts

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	encoderOnce sync.Once
	encoder     tokenizer.Codec
	encoderErr  error
)

// CountTokens estimates the prompt tokens of s with the GPT-4o encoding.
// Claude's tokenizer is not public; the estimate is close enough for budgeting.
// Falls back to len/4 when the encoder is unavailable.
func CountTokens(s string) int {
	encoderOnce.Do(func() {
		encoder, encoderErr = tokenizer.ForModel(tokenizer.GPT4o)
	})
	if encoderErr != nil {
		return len(s) / 4
	}
	ids, _, err := encoder.Encode(s)
	if err != nil {
		return len(s) / 4
	}
	return len(ids)
}

// fitSections keeps the longest prefix of sections whose combined token count
// stays within budget. A non-positive budget keeps everything.
func fitSections(sections []string, budget int) int {
	if budget <= 0 {
		return len(sections)
	}
	used := 0
	for i, s := range sections {
		used += CountTokens(s)
		if used > budget {
			return i
		}
	}
	return len(sections)
}
