package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastQueue_DeliversInOrder(t *testing.T) {
	q := NewBroadcastQueue[int](4, nil)
	sub := q.Subscribe()

	q.Publish(1)
	q.Publish(2)
	q.Publish(3)

	assert.Equal(t, 1, <-sub.C())
	assert.Equal(t, 2, <-sub.C())
	assert.Equal(t, 3, <-sub.C())
	assert.Zero(t, q.Dropped())
}

func TestBroadcastQueue_LaggingConsumerKeepsNewestSuffix(t *testing.T) {
	var evicted []int
	q := NewBroadcastQueue[int](2, func(v int) { evicted = append(evicted, v) })
	sub := q.Subscribe()

	for i := 1; i <= 5; i++ {
		q.Publish(i)
	}

	// the consumer sees a contiguous suffix of what was published
	assert.Equal(t, 4, <-sub.C())
	assert.Equal(t, 5, <-sub.C())

	assert.Equal(t, []int{1, 2, 3}, evicted)
	assert.Equal(t, uint64(3), q.Dropped())
}

func TestBroadcastQueue_NoSubscribersEvictsImmediately(t *testing.T) {
	var evicted []string
	q := NewBroadcastQueue[string](1, func(v string) { evicted = append(evicted, v) })

	q.Publish("orphan")

	assert.Equal(t, []string{"orphan"}, evicted)
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestBroadcastQueue_CancelReclaimsBuffered(t *testing.T) {
	var evicted []int
	q := NewBroadcastQueue[int](2, func(v int) { evicted = append(evicted, v) })
	sub := q.Subscribe()

	q.Publish(10)
	q.Publish(20)
	sub.Cancel()

	assert.Equal(t, []int{10, 20}, evicted)

	_, open := <-sub.C()
	assert.False(t, open, "cancelled subscription channel should be closed")

	// cancelling again is harmless and later publishes take the orphan path
	sub.Cancel()
	q.Publish(30)
	assert.Equal(t, []int{10, 20, 30}, evicted)
}

func TestBroadcastQueue_CloseTerminatesSubscribers(t *testing.T) {
	var evicted []int
	q := NewBroadcastQueue[int](1, func(v int) { evicted = append(evicted, v) })
	sub := q.Subscribe()

	q.Publish(7)
	q.Close()

	require.Equal(t, []int{7}, evicted, "buffered value reclaimed on close")

	_, open := <-sub.C()
	assert.False(t, open)

	// closed queue hands new subscribers an already-closed channel
	late := q.Subscribe()
	_, open = <-late.C()
	assert.False(t, open)

	q.Publish(8)
	assert.Equal(t, []int{7, 8}, evicted)
}

func TestBroadcastQueue_IndependentSubscribers(t *testing.T) {
	q := NewBroadcastQueue[int](1, nil)
	a := q.Subscribe()
	b := q.Subscribe()

	q.Publish(1)

	assert.Equal(t, 1, <-a.C())
	assert.Equal(t, 1, <-b.C())

	a.Cancel()
	q.Publish(2)
	assert.Equal(t, 2, <-b.C())
}
