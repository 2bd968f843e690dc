package impl

import (
	"cmp"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ls4154/gowal/db"
	"github.com/ls4154/gowal/env"
	"github.com/ls4154/gowal/log"
)

func validateOption(userOpt *db.Options) (*db.Options, error) {
	if userOpt == nil {
		return nil, errors.Wrap(db.ErrInvalidArgument, "option is nil")
	}

	opt := *userOpt

	opt.PageSize = clipToRange(userOpt.PageSize, log.MinPageSize, log.MaxPageSize)
	if opt.DirectIO && opt.PageSize%512 != 0 {
		return nil, errors.Wrapf(db.ErrInvalidArgument, "page size %d is not a multiple of 512 required by direct I/O", opt.PageSize)
	}
	opt.WriteBufferSize = clipToRange(userOpt.WriteBufferSize, opt.PageSize, 1<<30)
	opt.WriteBufferSize -= opt.WriteBufferSize % opt.PageSize
	opt.MaxSegmentSize = clipToRange(userOpt.MaxSegmentSize, 4*int64(opt.PageSize), 1<<40)
	opt.MaxUnflushedSize = clipToRange(userOpt.MaxUnflushedSize, 1, 1<<40)
	opt.CommitDelay = clipToRange(userOpt.CommitDelay, time.Millisecond, time.Hour)
	opt.FsyncInterval = clipToRange(userOpt.FsyncInterval, 0, 24*time.Hour)
	opt.SegmentRotationInterval = max(userOpt.SegmentRotationInterval, 0)
	opt.ShutdownTimeout = clipToRange(userOpt.ShutdownTimeout, 100*time.Millisecond, time.Hour)
	opt.FreeSpaceLimit = max(userOpt.FreeSpaceLimit, 0)
	if opt.LogSizeHardLimit < 0 {
		opt.LogSizeHardLimit = -1
	}

	switch userOpt.Compression {
	case db.NoCompression, db.SnappyCompression, db.ZstdCompression:
	default:
		return nil, errors.Wrapf(db.ErrInvalidArgument, "invalid compression type %d", userOpt.Compression)
	}

	if len(userOpt.EncryptionKey) > 0 {
		if _, err := log.NewPageCipher(userOpt.EncryptionKey, userOpt.EncryptionIV); err != nil {
			return nil, err
		}
	}

	if opt.Env == nil {
		opt.Env = env.DefaultEnv()
	}

	return &opt, nil
}

func clipToRange[T cmp.Ordered](val, minVal, maxVal T) T {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
