package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fast, "test", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errors.New("503"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	boom := errors.New("401 unauthorized")
	calls := 0
	_, err := Do(context.Background(), fast, "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast, "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, Transient(errors.New("429"))
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, calls)
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) Transient() bool { return e.code >= 500 }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain", errors.New("nope"), false},
		{"wrapped transient", fmt.Errorf("fetch: %w", Transient(errors.New("x"))), true},
		{"method 500", statusErr{500}, true},
		{"method 400", fmt.Errorf("call: %w", statusErr{400}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
