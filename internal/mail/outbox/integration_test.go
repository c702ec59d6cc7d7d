//go:build integration

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gomailer/mail-service/internal/testutil/containers"
)

func TestRedisOutbox_Integration(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ob := NewRedisOutbox(rc.Client, "it:outbox")
	ctx := context.Background()

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, ob.Enqueue(ctx, id))
	}
	n, err := ob.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	for _, want := range []string{"m1", "m2", "m3"} {
		got, err := ob.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
