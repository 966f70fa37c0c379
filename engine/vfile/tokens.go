package vfile

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const tokenCountModel = "gpt-4o"

var (
	tokenEncOnce sync.Once
	tokenEnc     *tiktoken.Tiktoken
)

// CountTokens returns the token count of text under the shared counting
// model, or 0 when no encoder is available.
func CountTokens(text string) int {
	tokenEncOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel(tokenCountModel)
		if err == nil {
			tokenEnc = enc
		}
	})
	if tokenEnc == nil {
		return 0
	}
	return len(tokenEnc.Encode(text, nil, nil))
}
