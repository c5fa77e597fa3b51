package services

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts subword tokens in a piece of text. The chunker budget,
// overlap selection and per-persona token counters all use the same counter so
// the numbers stay comparable.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a fixed tiktoken encoding
// (cl100k_base by default, matching the embedding provider's tokenizer family).
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (t *TiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
