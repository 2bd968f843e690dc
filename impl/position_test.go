package impl

import (
	"math/rand"
	"testing"

	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/log"
	"github.com/stretchr/testify/require"
)

func TestPageAlignedLayout(t *testing.T) {
	const pageSize = 256
	cases := []struct {
		length   int64
		distance int64
		diskSize int64
	}{
		{10, 10, 10},
		{237, 237, 237},
		// ends exactly at the page end, the next header is not used yet
		{238, 256, 238},
		{239, 257, 257},
		{476, 512, 494},
		{500, 536, 536},
	}
	for _, c := range cases {
		distance, diskSize := pageAlignedLayout(c.length, pageSize)
		require.Equal(t, c.distance, distance, "length %d", c.length)
		require.Equal(t, c.diskSize, diskSize, "length %d", c.length)
	}
}

func positioned(kind recordKind, segment uint64, pos, distance, diskSize int64) *walRecord {
	r := &walRecord{kind: kind, segment: segment, distance: distance, diskSize: diskSize}
	r.position.Store(pos)
	return r
}

func TestMilestonePositions(t *testing.T) {
	const pageSize = 256

	// mid page: move to the next page
	prev := positioned(kindPayload, 1, 300, 40, 40)
	m := newMilestoneRecord(1)
	require.Equal(t, int64(2*pageSize+log.RecordsOffset), calculatePosition(m, prev, pageSize))
	require.Equal(t, int64(2*pageSize-340+log.RecordsOffset), m.diskSize)
	require.Zero(t, m.distance)

	// previous record filled its page
	prev = positioned(kindPayload, 1, 300, 230, 212)
	m = newMilestoneRecord(1)
	require.Equal(t, int64(2*pageSize+log.RecordsOffset), calculatePosition(m, prev, pageSize))
	require.Equal(t, int64(log.RecordsOffset), m.diskSize)

	// new segment
	m = newMilestoneRecord(2)
	require.Equal(t, int64(log.RecordsOffset), calculatePosition(m, prev, pageSize))
	require.Equal(t, int64(log.RecordsOffset), m.diskSize)

	// milestones do not move each other
	m2 := newMilestoneRecord(2)
	m.position.Store(log.RecordsOffset)
	require.Equal(t, int64(log.RecordsOffset), calculatePosition(m2, m, pageSize))
}

// TestPositionsMatchPageBuffer lays out random records the way the disk
// writer does and checks every assigned position and the accounted sizes.
func TestPositionsMatchPageBuffer(t *testing.T) {
	for _, pageSize := range []int{log.MinPageSize, 256, 4096} {
		w := &walImpl{pageSize: pageSize}
		w.queue.init(newStartRecord(1))
		rnd := rand.New(rand.NewSource(int64(pageSize)))

		buf := log.NewPageBuffer(make([]byte, 8*pageSize), pageSize)
		var base, accounted int64
		seal := func() {
			base += int64(len(buf.Seal(nil, 1, base/int64(pageSize))))
			buf.Reset()
		}

		for i := 0; i < 3000; i++ {
			if rnd.Intn(25) == 0 {
				m := newMilestoneRecord(1)
				w.queue.push(m)
				w.assignPositions()
				seal()
				require.Equal(t, base+log.RecordsOffset, m.position.Load())
				continue
			}

			var body []byte
			switch rnd.Intn(4) {
			case 0:
				body = make([]byte, rnd.Intn(4*pageSize))
			case 1:
				// frames that end on or next to a page boundary
				body = make([]byte, pageSize-log.RecordsOffset-log.LengthPrefixSize+rnd.Intn(3)-1)
			default:
				body = make([]byte, rnd.Intn(64))
			}
			r := newPayloadRecord(&db.Empty{}, body)
			r.segment = 1
			w.queue.push(r)
			w.assignPositions()
			require.Equal(t, base+int64(buf.NextOffset()), r.position.Load(), "record %d", i)

			frame := log.SerializedSize(len(body))
			done := 0
			for {
				done = buf.WriteRecord(body, done)
				if done == frame {
					break
				}
				seal()
			}
			if buf.Full() {
				seal()
			}

			accounted += r.diskSize
			used := base + int64(buf.NextOffset())
			if buf.NextOffset()%pageSize == log.RecordsOffset {
				used -= log.RecordsOffset
			}
			require.Equal(t, used, accounted, "record %d", i)
			w.queue.poll()
		}
	}
}
