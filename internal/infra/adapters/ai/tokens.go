package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"chat-task-bridge/internal/domain/adapter"
)

var _ adapter.TokenCounter = (*TokenCounter)(nil)

const defaultEncoding = "cl100k_base"

// TokenCounter counts tokens with a BPE encoding, loaded lazily on first use.
// When the encoding cannot be loaded it approximates four bytes per token.
type TokenCounter struct {
	encoding string
	log      *zerolog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenCounter(encoding string, logger *zerolog.Logger) *TokenCounter {
	if encoding == "" {
		encoding = defaultEncoding
	}
	l := logger.With().Str("component", "tokens").Logger()
	return &TokenCounter{encoding: encoding, log: &l}
}

func (t *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.log.Warn().Err(err).Str("encoding", t.encoding).Msg("tokenizer unavailable, approximating")
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return approxTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func approxTokens(text string) int {
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}

// ApproxCounter is the byte based estimate on its own; tests use it to avoid
// loading an encoding.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return approxTokens(text)
}
