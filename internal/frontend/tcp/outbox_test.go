package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestOutboxPushAndClose(t *testing.T) {
	o := NewOutbox(2)
	require.NoError(t, o.Push("a"))
	require.NoError(t, o.Push("b"))
	assert.ErrorIs(t, o.Push("c"), ErrOutboxFull)
	assert.Equal(t, 2, o.Len())

	o.Close()
	o.Close()
	assert.True(t, o.IsClosed())
	assert.ErrorIs(t, o.Push("d"), ErrOutboxClosed)

	var got []string
	for m := range o.Messages() {
		got = append(got, m)
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestOutboxDefaultSize(t *testing.T) {
	o := NewOutbox(0)
	assert.Equal(t, DefaultOutboxSize, cap(o.messages))
}

func TestPropertyOutboxPreservesOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 32).Draw(t, "size")
		msgs := rapid.SliceOf(rapid.String()).Draw(t, "msgs")
		o := NewOutbox(size)

		var accepted []string
		for _, m := range msgs {
			if err := o.Push(m); err == nil {
				accepted = append(accepted, m)
			}
		}
		o.Close()

		var got []string
		for m := range o.Messages() {
			got = append(got, m)
		}
		if len(accepted) > size {
			t.Fatalf("accepted %d messages into outbox of %d", len(accepted), size)
		}
		for i := range accepted {
			if got[i] != accepted[i] {
				t.Fatalf("message %d: got %q want %q", i, got[i], accepted[i])
			}
		}
	})
}
