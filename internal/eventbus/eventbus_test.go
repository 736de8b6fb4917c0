package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{ N int }

func TestPublish_ReachesSubscribersOfType(t *testing.T) {
	b := New()
	ctx := WithBus(context.Background(), b)

	var pings, pongs []int
	Subscribe(b, func(ctx context.Context, e ping) { pings = append(pings, e.N) })
	Subscribe(b, func(ctx context.Context, e pong) { pongs = append(pongs, e.N) })

	Publish(ctx, ping{N: 1})
	Publish(ctx, pong{N: 2})
	Publish(ctx, ping{N: 3})

	require.Equal(t, []int{1, 3}, pings)
	require.Equal(t, []int{2}, pongs)
}

func TestUnsubscribe_RemovesOnlyThatHandler(t *testing.T) {
	b := New()
	ctx := WithBus(context.Background(), b)

	var first, second int
	unsubscribe := Subscribe(b, func(ctx context.Context, e ping) { first++ })
	Subscribe(b, func(ctx context.Context, e ping) { second++ })

	Publish(ctx, ping{})
	unsubscribe()
	Publish(ctx, ping{})

	require.Equal(t, 1, first)
	require.Equal(t, 2, second)
}

func TestPublish_WithoutBus(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))
	require.NotPanics(t, func() { Publish(context.Background(), ping{}) })
	require.NotPanics(t, func() { Subscribe[ping](nil, func(context.Context, ping) {})() })
}
