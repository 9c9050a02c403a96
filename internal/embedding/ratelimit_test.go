package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimited_Delegates(t *testing.T) {
	mock := NewMockProvider(4)
	limited := NewRateLimited(mock, 100, 2)

	vecs, err := limited.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, "mock", limited.Name())
}

func TestRateLimited_CancelledContext(t *testing.T) {
	mock := NewMockProvider(4)
	limited := NewRateLimited(mock, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limited.Embed(ctx, []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, 0, mock.Calls())
}

func TestRateLimited_Unlimited(t *testing.T) {
	mock := NewMockProvider(4)
	limited := NewRateLimited(mock, 0, 0)

	for i := 0; i < 10; i++ {
		_, err := limited.Embed(context.Background(), []string{"a"})
		require.NoError(t, err)
	}
	assert.Equal(t, 10, mock.Calls())
}
