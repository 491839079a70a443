// Package store holds the bookmark buckets, one ordered list per editor
// context, and is the single source of truth for saved viewpoints.
//
// Mutations never hand out interior pointers: callers get value copies
// and write back whole records (read-modify-write), mirroring how the
// rest of the engine treats store data.
package store

import (
	"sync"

	"goki.dev/mat32/v2"

	"github.com/viewmark/extension/internal/runloop"
	"github.com/viewmark/extension/pkg/core"
)

// bucket is the mutable backing for one context's bookmark list.
type bucket struct {
	key         core.ContextKey
	contextPath string
	records     []core.Bookmark
}

// Store is the bookmark store. All operations address the active
// context's bucket; switching contexts swaps which list is visible.
type Store struct {
	mu      sync.Mutex
	buckets []*bucket // insertion order, kept for deterministic snapshots
	index   map[core.ContextKey]*bucket
	active  core.ContextKey

	loop            *runloop.Loop
	subscribers     map[int]func()
	nextSubID       int
	notifyScheduled bool
}

// New creates an empty store whose change notifications are delivered
// through the given run loop.
func New(loop *runloop.Loop) *Store {
	return &Store{
		index:       make(map[core.ContextKey]*bucket),
		subscribers: make(map[int]func()),
		loop:        loop,
	}
}

// SetActiveContext switches the visible bucket, creating an empty one
// for unseen keys. Switching to the already-active key is a no-op.
func (s *Store) SetActiveContext(key core.ContextKey, contextPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.index[key]
	if !ok {
		b = &bucket{key: key, contextPath: contextPath}
		s.index[key] = b
		s.buckets = append(s.buckets, b)
	} else if contextPath != "" {
		b.contextPath = contextPath
	}

	if s.active == key {
		return
	}
	s.active = key
	s.markChangedLocked()
}

// ActiveContext returns the currently active context key.
func (s *Store) ActiveContext() core.ContextKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Add appends a bookmark to the active bucket and returns its index.
// The pivot is reconciled from camera position, rotation and distance.
func (s *Store) Add(b core.Bookmark) int {
	b.ReconcilePivot()

	s.mu.Lock()
	defer s.mu.Unlock()

	bk := s.activeBucketLocked()
	bk.records = append(bk.records, b)
	s.markChangedLocked()
	return len(bk.records) - 1
}

// RemoveAt deletes the bookmark at index i from the active bucket.
func (s *Store) RemoveAt(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk := s.activeBucketLocked()
	if i < 0 || i >= len(bk.records) {
		return core.ErrIndexOutOfRange
	}
	bk.records = append(bk.records[:i], bk.records[i+1:]...)
	s.markChangedLocked()
	return nil
}

// Rename sets the display name of the bookmark at index i.
//
// Renaming to the identical name still schedules a change notification:
// observers treat any completed edit gesture as a change, and suppressing
// the no-op case would make notification timing depend on string
// comparison.
func (s *Store) Rename(i int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk := s.activeBucketLocked()
	if i < 0 || i >= len(bk.records) {
		return core.ErrIndexOutOfRange
	}
	bk.records[i].Name = name
	s.markChangedLocked()
	return nil
}

// Replace overwrites the bookmark at index i with b (pivot reconciled).
func (s *Store) Replace(i int, b core.Bookmark) error {
	b.ReconcilePivot()

	s.mu.Lock()
	defer s.mu.Unlock()

	bk := s.activeBucketLocked()
	if i < 0 || i >= len(bk.records) {
		return core.ErrIndexOutOfRange
	}
	bk.records[i] = b
	s.markChangedLocked()
	return nil
}

// SetPosition moves the camera position of the bookmark at index i and
// recomputes its pivot from the stored rotation and distance, keeping
// the reconciliation invariant intact.
func (s *Store) SetPosition(i int, newPosition mat32.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk := s.activeBucketLocked()
	if i < 0 || i >= len(bk.records) {
		return core.ErrIndexOutOfRange
	}
	rec := bk.records[i]
	rec.CameraPosition = newPosition
	rec.ReconcilePivot()
	bk.records[i] = rec
	s.markChangedLocked()
	return nil
}

// Get returns a copy of the bookmark at index i in the active bucket.
func (s *Store) Get(i int) (core.Bookmark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk := s.activeBucketLocked()
	if i < 0 || i >= len(bk.records) {
		return core.Bookmark{}, false
	}
	return bk.records[i], true
}

// List returns a copy of the active bucket's records.
func (s *Store) List() []core.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk := s.activeBucketLocked()
	return append([]core.Bookmark(nil), bk.records...)
}

// Count returns the number of bookmarks in the active bucket.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeBucketLocked().records)
}

// Reorder moves the bookmark at oldIndex so it ends up at newIndex,
// using remove-then-insert list semantics: the record is taken out
// first (shifting later records left by one) and re-inserted at the
// destination, so Reorder(i, j) followed by Reorder(j, i) restores the
// original order.
func (s *Store) Reorder(oldIndex, newIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk := s.activeBucketLocked()
	n := len(bk.records)
	if oldIndex < 0 || oldIndex >= n || newIndex < 0 || newIndex >= n {
		return core.ErrIndexOutOfRange
	}
	if oldIndex == newIndex {
		return nil
	}

	rec := bk.records[oldIndex]
	bk.records = append(bk.records[:oldIndex], bk.records[oldIndex+1:]...)
	bk.records = append(bk.records[:newIndex], append([]core.Bookmark{rec}, bk.records[newIndex:]...)...)
	s.markChangedLocked()
	return nil
}

// Subscribe registers fn to be called after any store mutation. Delivery
// is deferred to the next run-loop tick and coalesced: any number of
// mutations within one turn produce a single call per subscriber. The
// returned function unsubscribes.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Snapshot returns a deep copy of the entire store as a layout, buckets
// in creation order.
func (s *Store) Snapshot() *core.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()

	layout := &core.Layout{Buckets: make([]core.Bucket, 0, len(s.buckets))}
	for _, b := range s.buckets {
		layout.Buckets = append(layout.Buckets, core.Bucket{
			Key:         b.key,
			ContextPath: b.contextPath,
			Records:     append([]core.Bookmark(nil), b.records...),
		})
	}
	return layout
}

// Restore replaces the store contents with a persisted layout. Legacy
// flat-list records are migrated into the active context's bucket. A nil
// layout resets the store to empty and reports ErrMalformedSnapshot.
func (s *Store) Restore(layout *core.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buckets = nil
	s.index = make(map[core.ContextKey]*bucket)

	if layout == nil {
		s.markChangedLocked()
		return core.ErrMalformedSnapshot
	}

	for _, lb := range layout.Buckets {
		b := &bucket{
			key:         lb.Key,
			contextPath: lb.ContextPath,
			records:     append([]core.Bookmark(nil), lb.Records...),
		}
		for i := range b.records {
			b.records[i].ReconcilePivot()
		}
		s.index[lb.Key] = b
		s.buckets = append(s.buckets, b)
	}

	if len(layout.LegacyRecords) > 0 {
		bk := s.activeBucketLocked()
		for _, rec := range layout.LegacyRecords {
			rec.ReconcilePivot()
			bk.records = append(bk.records, rec)
		}
	}

	s.markChangedLocked()
	return nil
}

// activeBucketLocked returns the active bucket, creating it on demand.
// Callers must hold s.mu.
func (s *Store) activeBucketLocked() *bucket {
	b, ok := s.index[s.active]
	if !ok {
		b = &bucket{key: s.active}
		s.index[s.active] = b
		s.buckets = append(s.buckets, b)
	}
	return b
}

// markChangedLocked schedules one coalesced notification turn. Callers
// must hold s.mu.
func (s *Store) markChangedLocked() {
	if s.notifyScheduled {
		return
	}
	s.notifyScheduled = true
	s.loop.Post(s.deliverChanged)
}

// deliverChanged runs on the loop and invokes every subscriber once.
func (s *Store) deliverChanged() {
	s.mu.Lock()
	s.notifyScheduled = false
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
