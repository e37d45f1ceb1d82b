package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
)

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func(error) bool { return true }, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not ready")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsIntoPropagationError(t *testing.T) {
	cause := errors.New("still not ready")
	err := Do(context.Background(), 3, time.Millisecond, func(error) bool { return true }, func(context.Context) error {
		return cause
	})

	var pe *model.PropagationError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Attempts)
	assert.ErrorIs(t, err, cause)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("access denied for good")
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func(error) bool { return false }, func(context.Context) error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, 5, time.Second, func(error) bool { return true }, func(context.Context) error {
		return errors.New("not ready")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
