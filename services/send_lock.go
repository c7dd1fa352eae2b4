package services

import "sync"

// SendLock serializes sends per conversation id. Entries are dropped once
// nobody holds or waits for them.
type SendLock struct {
	mu    sync.Mutex
	locks map[int64]*keyedMutex
}

type keyedMutex struct {
	mu   sync.Mutex
	refs int
}

func NewSendLock() *SendLock {
	return &SendLock{locks: make(map[int64]*keyedMutex)}
}

// Lock blocks until id is free and returns the matching unlock func.
func (l *SendLock) Lock(id int64) (unlock func()) {
	l.mu.Lock()
	km, ok := l.locks[id]
	if !ok {
		km = &keyedMutex{}
		l.locks[id] = km
	}
	km.refs++
	l.mu.Unlock()

	km.mu.Lock()
	return func() {
		km.mu.Unlock()
		l.mu.Lock()
		km.refs--
		if km.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *SendLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
