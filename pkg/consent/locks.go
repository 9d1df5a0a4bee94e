package consent

import "sync"

// subjectLocks serializes mutations per subject using sharded mutexes.
// Instead of a single global lock, operations are distributed across N shards
// based on a hash of the storage subject, reducing contention under
// concurrent load.
const numSubjectShards = 128

type subjectLocks struct {
	shards [numSubjectShards]sync.Mutex
}

// lock acquires the shard for a storage subject and returns its release
// function. Two subjects on the same shard serialize; that is harmless.
func (l *subjectLocks) lock(storageSubject string) func() {
	shard := &l.shards[hashSubject(storageSubject)%numSubjectShards]
	shard.Lock()
	return shard.Unlock
}

// hashSubject uses FNV-1a for better hash distribution than simple
// multiply-add.
func hashSubject(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
