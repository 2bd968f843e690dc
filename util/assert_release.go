//go:build !debug

package util

func Assert(cond bool) {}

func Assertf(cond bool, format string, args ...any) {}
