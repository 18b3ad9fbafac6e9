// Package spinlock provides the bounded-spin mutual exclusion primitive used
// to serialize write-offset reservations. It allocates nothing and depends on
// no runtime services beyond atomics, so it is safe in the earliest execution
// contexts the logging core runs in.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// spinRounds is how many CAS attempts to make before briefly yielding.
// The critical section it guards is a handful of header loads and stores,
// so contention resolves within a few rounds in practice.
const spinRounds = 128

// Lock is a spin lock over a single word. The zero value is unlocked.
//
// The word holds the owner's goroutine id while held, which lets Acquire
// detect re-entrant acquisition: re-entry before Release is a usage error
// in the reservation protocol and panics rather than deadlocking silently.
type Lock struct {
	owner atomic.Int64
}

// Acquire spins until the lock is held by the caller.
func (l *Lock) Acquire() {
	gid := goid()
	for {
		for i := 0; i < spinRounds; i++ {
			if l.owner.CompareAndSwap(0, gid) {
				return
			}
			if l.owner.Load() == gid {
				panic("spinlock: re-entrant acquire")
			}
		}
		runtime.Gosched()
	}
}

// Release unlocks. Calling Release without holding the lock panics.
func (l *Lock) Release() {
	if !l.owner.CompareAndSwap(goid(), 0) {
		panic("spinlock: release by non-owner")
	}
}

// goid extracts the current goroutine id by parsing the first stack trace
// line, "goroutine 123 [running]:". Slow (~1.5us) but portable; it runs once
// per reservation, not per byte.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var gid int64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}
