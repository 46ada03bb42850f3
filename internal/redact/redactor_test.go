package redact

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/piiredact/internal/logger"
	"github.com/raaihank/piiredact/internal/rules"
)

type stubEntities struct {
	entities []Entity
	err      error
}

func (s stubEntities) Entities(_ context.Context, _ string) ([]Entity, error) {
	return s.entities, s.err
}

func TestRedactor(t *testing.T) {
	ctx := context.Background()

	t.Run("RequiresRegistry", func(t *testing.T) {
		_, err := NewRedactor(nil, Config{}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("LineInfo", func(t *testing.T) {
		r, err := NewRedactor(defaultRegistry(t), Config{LineInfo: true}, nil, logger.NewNop())
		require.NoError(t, err)

		result, err := r.Redact(ctx, "hello\ncall 555-0100")
		require.NoError(t, err)
		require.Len(t, result.Matches, 1)
		assert.Equal(t, 2, result.Matches[0].Line)
		assert.Equal(t, 6, result.Matches[0].Column)
	})

	t.Run("EntitySource", func(t *testing.T) {
		text := "ask prince about it"
		start := strings.Index(text, "prince")
		src := stubEntities{entities: []Entity{{Start: start, End: start + len("prince"), Category: "name", Priority: 30}}}

		r, err := NewRedactor(defaultRegistry(t), Config{}, src, nil)
		require.NoError(t, err)

		result, err := r.Redact(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, "ask [REDACTED:name] about it", result.RedactedText)
	})

	t.Run("EntitySourceFailure", func(t *testing.T) {
		r, err := NewRedactor(defaultRegistry(t), Config{}, stubEntities{err: errors.New("model offline")}, nil)
		require.NoError(t, err)

		result, err := r.Redact(ctx, "call 555-0100")
		require.NoError(t, err)
		assert.Equal(t, "call [REDACTED:phone]", result.RedactedText)
	})

	t.Run("Originals", func(t *testing.T) {
		r, err := NewRedactor(defaultRegistry(t), Config{}, nil, nil)
		require.NoError(t, err)

		result, err := r.RedactOriginals(ctx, "call 555-0100")
		require.NoError(t, err)
		assert.Equal(t, "555-0100", result.Matches[0].OriginalText)

		result, err = r.Redact(ctx, "call 555-0100")
		require.NoError(t, err)
		assert.Empty(t, result.Matches[0].OriginalText)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		r, err := NewRedactor(defaultRegistry(t), Config{}, nil, nil)
		require.NoError(t, err)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = r.Redact(canceled, "call 555-0100")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("SwapUnderLoad", func(t *testing.T) {
		r, err := NewRedactor(defaultRegistry(t), Config{}, nil, nil)
		require.NoError(t, err)

		ticket, err := rules.Compile([]rules.PatternRule{(rules.PatternRule{Name: "ticket", Pattern: `TCK-\d+`}).WithPriority(1)}, rules.Options{})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					_, err := r.Redact(ctx, "TCK-1 555-0100")
					assert.NoError(t, err)
				}
			}()
		}
		prev := r.Swap(ticket)
		wg.Wait()

		assert.Equal(t, 3, prev.Len())
		result, err := r.Redact(ctx, "TCK-1 555-0100")
		require.NoError(t, err)
		assert.Equal(t, "[REDACTED:ticket] 555-0100", result.RedactedText)
	})
}
