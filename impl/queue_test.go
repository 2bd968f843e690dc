package impl

import (
	"sync"
	"testing"

	"github.com/ls4154/gowal/db"
	"github.com/stretchr/testify/require"
)

func TestRecordQueue(t *testing.T) {
	var q recordQueue
	start := newStartRecord(1)
	q.init(start)
	require.False(t, q.poll())
	require.Same(t, start, q.first())

	a := newPayloadRecord(&db.Empty{}, nil)
	b := newPayloadRecord(&db.Empty{}, nil)
	q.push(a)
	q.push(b)
	require.Same(t, b, q.last())
	require.Same(t, a, b.prev.Load())

	require.True(t, q.poll())
	require.Same(t, a, q.first())
	require.Nil(t, a.prev.Load())
	require.True(t, q.poll())
	require.False(t, q.poll())
	require.Same(t, b, q.first())
}

func TestRecordQueueConcurrentPush(t *testing.T) {
	const (
		producers = 8
		perP      = 1000
	)
	var q recordQueue
	q.init(newStartRecord(1))

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perP; i++ {
				q.push(newPayloadRecord(&db.Empty{}, nil))
			}
		}()
	}
	wg.Wait()

	n := 0
	var prev *walRecord
	for r := q.first(); r != nil; r = r.next.Load() {
		if prev != nil {
			require.Same(t, prev, r.prev.Load())
		}
		prev = r
		n++
	}
	require.Equal(t, producers*perP+1, n)
	require.Same(t, prev, q.last())
}

func TestAssignPositionsConcurrent(t *testing.T) {
	const (
		producers = 8
		perP      = 500
	)
	w := &walImpl{pageSize: 256}
	w.queue.init(newStartRecord(1))

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perP; i++ {
				r := newPayloadRecord(&db.Empty{}, make([]byte, (p*31+i)%300))
				r.segment = 1
				w.queue.push(r)
				w.assignPositions()
				if !r.assigned() {
					t.Error("record left without position")
				}
			}
		}(p)
	}
	wg.Wait()

	prev := w.queue.first()
	for r := prev.next.Load(); r != nil; r = r.next.Load() {
		require.Equal(t, prev.position.Load()+prev.distance, r.position.Load())
		prev = r
	}
}
