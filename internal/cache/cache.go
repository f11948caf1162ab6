package cache

import (
	"sort"
	"sync"
)

// KeyLock hands out one mutex per key. Entries are reference counted and
// dropped once nobody holds or waits for them.
type KeyLock struct {
	m     sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyLock() *KeyLock {
	return &KeyLock{
		locks: make(map[string]*keyEntry),
	}
}

// Lock blocks until key is held by the caller and returns its release func.
func (l *KeyLock) Lock(key string) func() {
	l.m.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.m.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.m.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.m.Unlock()
	}
}

// LockAll locks every distinct key in lexical order and releases them in reverse.
func (l *KeyLock) LockAll(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)

	releases := make([]func(), 0, len(uniq))
	for _, k := range uniq {
		releases = append(releases, l.Lock(k))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

// Len returns how many keys are currently held or awaited.
func (l *KeyLock) Len() int {
	l.m.Lock()
	defer l.m.Unlock()
	return len(l.locks)
}
