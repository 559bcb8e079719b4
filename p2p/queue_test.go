package p2p

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutboundQueueFIFO(t *testing.T) {
	q := NewOutboundQueue(10)
	q.Enqueue(Frame{MsgType: MsgTx, Payload: []byte("1")})
	q.Enqueue(Frame{MsgType: MsgTx, Payload: []byte("2")})

	f, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, []byte("1"), f.Payload)

	f, ok = q.Dequeue()
	require.True(t, ok)
	require.Equal(t, []byte("2"), f.Payload)

	_, ok = q.Dequeue()
	require.False(t, ok)
}

func TestOutboundQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewOutboundQueue(2)
	q.Enqueue(Frame{Payload: []byte("1")})
	q.Enqueue(Frame{Payload: []byte("2")})
	q.Enqueue(Frame{Payload: []byte("3")}) // drops "1"

	require.Equal(t, 2, q.Len())
	require.Equal(t, uint64(1), q.Dropped())

	f, _ := q.Dequeue()
	require.Equal(t, []byte("2"), f.Payload)
}

func TestOutboundQueueZeroCapacityClampedToOne(t *testing.T) {
	q := NewOutboundQueue(0)
	q.Enqueue(Frame{Payload: []byte("1")})
	q.Enqueue(Frame{Payload: []byte("2")})
	require.Equal(t, 1, q.Len())
}

func TestOutboundQueueDrain(t *testing.T) {
	q := NewOutboundQueue(10)
	q.Enqueue(Frame{MsgType: MsgTx, Payload: []byte("a")})
	q.Enqueue(Frame{MsgType: MsgBlock, Payload: []byte("b")})

	lb := &loopback{}
	s := NewSession(lb, nil, 1000)
	require.NoError(t, q.Drain(s))
	require.Equal(t, 0, q.Len())

	got1, err := ReadFrame(&lb.buf)
	require.NoError(t, err)
	require.Equal(t, MsgTx, got1.MsgType)
	got2, err := ReadFrame(&lb.buf)
	require.NoError(t, err)
	require.Equal(t, MsgBlock, got2.MsgType)
}
