//go:build !windows

package keystore

import (
	"golang.org/x/sys/unix"
)

// mlock pins data in RAM so it is never swapped. It reports false when the
// system refuses, for example under a low RLIMIT_MEMLOCK.
func mlock(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return unix.Mlock(data) == nil
}

func munlock(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Munlock(data)
}
