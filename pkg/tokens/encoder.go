package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder counts the tokens an embedding endpoint will bill for a text.
type Encoder interface {
	Count(text string) (int, error)
}

// TiktokenEncoder implements Encoder using tiktoken-go
type TiktokenEncoder struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEncoder creates a new tiktoken encoder
func NewTiktokenEncoder(encodingName string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}

	return &TiktokenEncoder{
		encoding: encoding,
	}, nil
}

// Count returns the number of tokens in text
func (e *TiktokenEncoder) Count(text string) (int, error) {
	return len(e.encoding.Encode(text, nil, nil)), nil
}

// ResidueEncoder counts one token per character, which is how protein
// language model endpoints tokenize sequences.
type ResidueEncoder struct{}

// NewResidueEncoder creates a new residue encoder
func NewResidueEncoder() *ResidueEncoder {
	return &ResidueEncoder{}
}

// Count returns len(text), at least 1.
func (e *ResidueEncoder) Count(text string) (int, error) {
	if len(text) == 0 {
		return 1, nil
	}
	return len(text), nil
}

// ForModel returns a tiktoken encoder for OpenAI models and a ResidueEncoder
// for anything tiktoken does not know.
func ForModel(model string) Encoder {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return NewResidueEncoder()
	}
	return &TiktokenEncoder{encoding: encoding}
}

// Pack splits texts into consecutive batches holding at most maxItems texts
// and at most maxTokens tokens. A single text over the token budget gets a
// batch of its own. Zero limits mean unlimited.
func Pack(enc Encoder, texts []string, maxTokens, maxItems int) ([][]int, int, error) {
	var (
		batches [][]int
		current []int
		used    int
		total   int
	)
	for i, text := range texts {
		n, err := enc.Count(text)
		if err != nil {
			return nil, 0, fmt.Errorf("count tokens of item %d: %w", i, err)
		}
		total += n

		full := (maxItems > 0 && len(current) >= maxItems) ||
			(maxTokens > 0 && used+n > maxTokens)
		if full && len(current) > 0 {
			batches = append(batches, current)
			current, used = nil, 0
		}
		current = append(current, i)
		used += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, total, nil
}
