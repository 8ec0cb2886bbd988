package core

import (
	"encoding/binary"
	"sort"
	"sync"

	"seaescrow/crypto"
)

const defaultLockStripes = 256

// accountLocks serializes instructions that share an account. Addresses hash
// onto a fixed set of mutexes which are always taken in ascending index
// order, so two lock sets can never deadlock.
type accountLocks struct {
	stripes []sync.Mutex
}

func newAccountLocks(n int) *accountLocks {
	if n <= 0 {
		n = defaultLockStripes
	}
	return &accountLocks{stripes: make([]sync.Mutex, n)}
}

func (l *accountLocks) index(addr crypto.Address) int {
	return int(binary.BigEndian.Uint32(addr[crypto.AddressLength-4:]) % uint32(len(l.stripes)))
}

// indexes returns the sorted, de-duplicated stripes covering addrs.
func (l *accountLocks) indexes(addrs []crypto.Address) []int {
	seen := make(map[int]struct{}, len(addrs))
	out := make([]int, 0, len(addrs))
	for _, addr := range addrs {
		if addr.IsZero() {
			continue
		}
		idx := l.index(addr)
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// lock acquires every stripe covering addrs and returns the release func.
func (l *accountLocks) lock(addrs []crypto.Address) func() {
	held := l.indexes(addrs)
	for _, idx := range held {
		l.stripes[idx].Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.stripes[held[i]].Unlock()
		}
	}
}
