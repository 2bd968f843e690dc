package impl

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

type FileType uint8

const (
	FileTypeSegment FileType = iota
	FileTypeMasterRecord
	FileTypeLock
	FileTypeInfoLog
)

func SegmentFileName(dir, storage string, segment uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d.wal", storage, segment))
}

func MasterRecordFileName(dir, storage string) string {
	return filepath.Join(dir, storage+".wmr")
}

func LockFileName(dir, storage string) string {
	return filepath.Join(dir, storage+".lock")
}

func InfoLogFileName(dir, storage string) string {
	return filepath.Join(dir, storage+".LOG")
}

// ParseFileName recognizes the files that belong to storage. The segment id
// is only meaningful for FileTypeSegment.
func ParseFileName(storage, filename string) (FileType, uint64, bool) {
	rest, ok := strings.CutPrefix(filename, storage+".")
	if !ok {
		return 0, 0, false
	}

	switch rest {
	case "wmr":
		return FileTypeMasterRecord, 0, true
	case "lock":
		return FileTypeLock, 0, true
	case "LOG", "LOG.old":
		return FileTypeInfoLog, 0, true
	}

	numStr, ok := strings.CutSuffix(rest, ".wal")
	if !ok {
		return 0, 0, false
	}
	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil || num == 0 {
		return 0, 0, false
	}
	return FileTypeSegment, num, true
}
