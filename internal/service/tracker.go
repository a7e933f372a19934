package service

import (
	"math"
	"sync"
	"time"
)

// inflightUpload is the ephemeral state of one file transfer. Chunks may
// arrive out of order and are addressed by index; assembly happens in
// index order at finalize time. All mutation goes through mu so chunk
// ingestion is serialized per upload.
type inflightUpload struct {
	id           string
	sessionToken string
	fileName     string
	declaredSize int64
	mimeType     string

	mu            sync.Mutex
	chunks        map[int][]byte
	bytesReceived int64
	lastActivity  time.Time
}

// putChunk stores a chunk at index, last-writer-wins. bytesReceived is
// derived from the deduplicated chunk set, so a retransmitted chunk never
// double-counts.
func (u *inflightUpload) putChunk(index int, data []byte) (bytesReceived int64, percent int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	old, had := u.chunks[index]
	if had {
		u.bytesReceived -= int64(len(old))
	}
	u.chunks[index] = data
	u.bytesReceived += int64(len(data))
	u.lastActivity = time.Now()

	return u.bytesReceived, u.progressLocked()
}

// progressLocked reports completion percent against the declared size,
// clamped to [0,100] because the declared size may undercount.
func (u *inflightUpload) progressLocked() int {
	if u.declaredSize <= 0 {
		return 0
	}
	p := int(math.Round(float64(u.bytesReceived) / float64(u.declaredSize) * 100))
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// assemble concatenates the chunks in index order. A gap in the index
// sequence means the client skipped a chunk and is an error.
func (u *inflightUpload) assemble() ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.chunks) == 0 {
		return nil, ErrIncompleteUpload
	}

	maxIndex := -1
	for i := range u.chunks {
		if i > maxIndex {
			maxIndex = i
		}
	}
	if len(u.chunks) != maxIndex+1 {
		return nil, ErrIncompleteUpload
	}

	out := make([]byte, 0, u.bytesReceived)
	for i := 0; i <= maxIndex; i++ {
		chunk, ok := u.chunks[i]
		if !ok {
			return nil, ErrIncompleteUpload
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// tracker indexes in-flight uploads by id and by owning session.
type tracker struct {
	mu      sync.RWMutex
	uploads map[string]*inflightUpload
}

func newTracker() *tracker {
	return &tracker{uploads: make(map[string]*inflightUpload)}
}

func (t *tracker) add(u *inflightUpload) {
	t.mu.Lock()
	t.uploads[u.id] = u
	t.mu.Unlock()
}

func (t *tracker) get(id string) (*inflightUpload, bool) {
	t.mu.RLock()
	u, ok := t.uploads[id]
	t.mu.RUnlock()
	return u, ok
}

func (t *tracker) remove(id string) {
	t.mu.Lock()
	delete(t.uploads, id)
	t.mu.Unlock()
}

// removeSession discards every in-flight upload owned by a session and
// returns how many were dropped.
func (t *tracker) removeSession(token string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, u := range t.uploads {
		if u.sessionToken == token {
			delete(t.uploads, id)
			n++
		}
	}
	return n
}

// stale returns the ids of uploads with no chunk activity since cutoff.
func (t *tracker) stale(cutoff time.Time) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for id, u := range t.uploads {
		u.mu.Lock()
		idle := u.lastActivity.Before(cutoff)
		u.mu.Unlock()
		if idle {
			ids = append(ids, id)
		}
	}
	return ids
}
