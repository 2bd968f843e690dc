//go:build debug

package util

import (
	"fmt"
	"runtime"
)

func Assert(cond bool) {
	if !cond {
		assertionFailed("")
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		assertionFailed(fmt.Sprintf(format, args...))
	}
}

func assertionFailed(msg string) {
	where := "unknown caller"
	if pc, file, line, ok := runtime.Caller(2); ok {
		where = fmt.Sprintf("%s:%d:%s", file, line, runtime.FuncForPC(pc).Name())
	}
	if msg != "" {
		panic(fmt.Sprintf("assertion failed (%s): %s", where, msg))
	}
	panic(fmt.Sprintf("assertion failed (%s)", where))
}
