package gowal

import (
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/impl"
)

// Open opens the write-ahead log named storageName in dir, creating it if
// needed. Every session writes into a new segment.
func Open(options *db.Options, dir, storageName string) (db.WAL, error) {
	return impl.Open(options, dir, storageName)
}
