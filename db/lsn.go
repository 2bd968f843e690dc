package db

import "fmt"

// LSN identifies a record by the segment it lives in and the byte offset of
// its length prefix inside that segment file. A negative position marks an
// LSN that has not been assigned yet.
type LSN struct {
	Segment  uint64
	Position int64
}

// NoLSN is the zero LSN. No record is ever stored at it.
var NoLSN = LSN{}

func (l LSN) Compare(other LSN) int {
	switch {
	case l.Segment < other.Segment:
		return -1
	case l.Segment > other.Segment:
		return 1
	case l.Position < other.Position:
		return -1
	case l.Position > other.Position:
		return 1
	}
	return 0
}

func (l LSN) Less(other LSN) bool {
	return l.Compare(other) < 0
}

func (l LSN) IsZero() bool {
	return l == NoLSN
}

func (l LSN) Assigned() bool {
	return l.Position >= 0
}

func (l LSN) String() string {
	return fmt.Sprintf("LSN{segment=%d, position=%d}", l.Segment, l.Position)
}

// MaxLSN returns the greater of a and b.
func MaxLSN(a, b LSN) LSN {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}
