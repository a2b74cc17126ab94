package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{}

func TestOnDispatchesByType(t *testing.T) {
	b := New()
	var pings []int
	pongs := 0
	On(b, func(_ context.Context, p ping) { pings = append(pings, p.n) })
	On(b, func(context.Context, pong) { pongs++ })

	Emit(context.Background(), b, ping{n: 1})
	Emit(context.Background(), b, ping{n: 2})
	Emit(context.Background(), b, pong{})

	require.Equal(t, []int{1, 2}, pings)
	require.Equal(t, 1, pongs)
}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	b := New()
	var first, second int
	unsubFirst := On(b, func(context.Context, ping) { first++ })
	On(b, func(context.Context, ping) { second++ })

	unsubFirst()
	unsubFirst()
	Emit(context.Background(), b, ping{})

	require.Zero(t, first)
	require.Equal(t, 1, second)
}

func TestGlobalBusDisabled(t *testing.T) {
	Use(nil)
	called := false
	unsub := Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	unsub()
	require.False(t, called)

	b := New()
	Use(b)
	defer Use(nil)
	Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	require.True(t, called)
	require.Same(t, b, Current())
}
