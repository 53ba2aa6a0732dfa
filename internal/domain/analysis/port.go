package analysis

import (
	"context"

	"github.com/memelens/memelens/internal/domain/meme"
)

// Client is a single-attempt analysis call. No internal retry; the batch
// scheduler owns the retry policy so this stays trivial to mock.
type Client interface {
	Analyze(ctx context.Context, record meme.Record) (meme.AnalysisResult, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, record meme.Record) (meme.AnalysisResult, error)

func (f ClientFunc) Analyze(ctx context.Context, record meme.Record) (meme.AnalysisResult, error) {
	return f(ctx, record)
}
