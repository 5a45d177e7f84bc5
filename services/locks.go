package services

import "sync"

// matchLocker serializes all state transitions for a single match.
// Submit, confirm, auto-confirm, dispute-open and advancement for the
// same match always run one at a time; different matches proceed
// independently.
type matchLocker struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newMatchLocker() *matchLocker {
	return &matchLocker{locks: make(map[int]*sync.Mutex)}
}

// resultLocks is shared by the lifecycle, submission and dispute
// services: a forfeit, a confirmation, a firing auto-confirm timer and
// a dispute opening on the same match must serialize against each
// other, not just within one service.
var resultLocks = newMatchLocker()

func (l *matchLocker) lock(matchID int) func() {
	l.mu.Lock()
	m, ok := l.locks[matchID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[matchID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
