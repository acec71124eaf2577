package store

import (
	"hash/fnv"
	"sync"
)

// stripeCount is a power of two so the hash folds evenly.
const stripeCount = 128

// keyLocks serializes read-modify-write cycles per (meetingID, studentID)
// key. Striped: two keys may share a mutex, which only over-serializes, never
// under-serializes.
type keyLocks struct {
	stripes [stripeCount]sync.Mutex
}

func (l *keyLocks) lock(meetingID, studentID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(meetingID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(studentID))
	m := &l.stripes[h.Sum32()%stripeCount]
	m.Lock()
	return m
}
