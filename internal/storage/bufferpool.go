// Package storage - Buffer pool
//
// What: Page-id keyed cache of slot-aligned page snapshots with pin counts.
// How: A map of frames plus an LRU list; GetPage pins, UnpinPage unpins,
// SetPage installs mutated snapshots. Only unpinned frames are evicted.
// Why: Readers and writers share one authoritative view of every page so
// caches and the backing column structures stay consistent.

package storage

import (
	"fmt"
	"sync"
)

// PageKey identifies a cached page: which table, base or tail, which page
// range, and which page inside it.
type PageKey struct {
	Table string
	Kind  PageKind
	Range int
	Page  int
}

// String formats the key for logs.
func (k PageKey) String() string {
	return fmt.Sprintf("%s/%s[%d,%d]", k.Table, k.Kind, k.Range, k.Page)
}

// PageData is the structured buffer pool view of a page: N column vectors
// plus the four metadata vectors, all aligned by slot.
type PageData struct {
	Columns     [][]int64
	RIDs        []RID
	Timestamps  []string
	Schema      []string
	Indirection []Indirection
}

// Len returns the number of slots in the view.
func (pd *PageData) Len() int { return len(pd.RIDs) }

// PageLoader materializes a page snapshot on a cache miss. The Database
// implements it by locating the backing RecordPage.
type PageLoader interface {
	LoadPage(key PageKey) (*PageData, error)
}

// pageFrame is one cached page.
type pageFrame struct {
	key    PageKey
	data   *PageData
	pinned int
	prev   *pageFrame
	next   *pageFrame
}

// CacheStats tracks buffer pool performance counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Cached    int
	Pinned    int
}

// BufferPool caches page snapshots keyed by PageKey. A page with a nonzero
// pin count is never evicted; every GetPage must be paired with an
// UnpinPage on all exits.
type BufferPool struct {
	mu       sync.Mutex
	maxPages int
	frames   map[PageKey]*pageFrame
	// LRU doubly-linked list: head = most recent, tail = least recent.
	head *pageFrame
	tail *pageFrame

	loader PageLoader
	stats  CacheStats
}

// NewBufferPool creates a pool holding at most maxPages snapshots.
func NewBufferPool(maxPages int, loader PageLoader) *BufferPool {
	if maxPages <= 0 {
		maxPages = 1024
	}
	return &BufferPool{
		maxPages: maxPages,
		frames:   make(map[PageKey]*pageFrame, maxPages),
		loader:   loader,
	}
}

// GetPage returns the cached view for key, loading it on a miss, and
// increments the page's pin count.
func (bp *BufferPool) GetPage(key PageKey) (*PageData, error) {
	bp.mu.Lock()
	if f, ok := bp.frames[key]; ok {
		f.pinned++
		bp.moveToFront(f)
		bp.stats.Hits++
		data := f.data
		bp.mu.Unlock()
		return data, nil
	}
	bp.stats.Misses++
	bp.mu.Unlock()

	// Load outside the pool lock: the loader takes table locks and must
	// not nest inside ours.
	data, err := bp.loader.LoadPage(key)
	if err != nil {
		return nil, err
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	if f, ok := bp.frames[key]; ok {
		// Raced with another loader; keep the installed frame.
		f.pinned++
		bp.moveToFront(f)
		return f.data, nil
	}
	f := &pageFrame{key: key, data: data, pinned: 1}
	bp.install(f)
	return data, nil
}

// UnpinPage decrements the pin count for key. Unpinning an uncached or
// already-unpinned page is a no-op so that deferred unpins on error paths
// stay safe.
func (bp *BufferPool) UnpinPage(key PageKey) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if f, ok := bp.frames[key]; ok && f.pinned > 0 {
		f.pinned--
	}
}

// SetPage installs a mutated snapshot for key, replacing any cached view.
// The pin count of an existing frame is preserved.
func (bp *BufferPool) SetPage(key PageKey, data *PageData) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if f, ok := bp.frames[key]; ok {
		f.data = data
		bp.moveToFront(f)
		return
	}
	bp.install(&pageFrame{key: key, data: data})
}

// DropTable removes every unpinned frame belonging to table. Pinned frames
// stay cached; eviction removes them once they are unpinned.
func (bp *BufferPool) DropTable(table string) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for key, f := range bp.frames {
		if key.Table == table && f.pinned == 0 {
			bp.unlink(f)
			delete(bp.frames, key)
		}
	}
}

// PinCount returns the current pin count for key. Test hook.
func (bp *BufferPool) PinCount(key PageKey) int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if f, ok := bp.frames[key]; ok {
		return f.pinned
	}
	return 0
}

// Stats returns a copy of the current counters.
func (bp *BufferPool) Stats() CacheStats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	s := bp.stats
	s.Cached = len(bp.frames)
	for _, f := range bp.frames {
		if f.pinned > 0 {
			s.Pinned++
		}
	}
	return s
}

// install adds a frame, evicting unpinned LRU frames to stay under
// capacity. Must hold bp.mu.
func (bp *BufferPool) install(f *pageFrame) {
	for len(bp.frames) >= bp.maxPages {
		if !bp.evictOne() {
			break // all frames pinned
		}
	}
	bp.frames[f.key] = f
	bp.pushFront(f)
}

// evictOne removes the least-recently-used unpinned frame. Must hold bp.mu.
func (bp *BufferPool) evictOne() bool {
	for f := bp.tail; f != nil; f = f.prev {
		if f.pinned == 0 {
			bp.unlink(f)
			delete(bp.frames, f.key)
			bp.stats.Evictions++
			return true
		}
	}
	return false
}

func (bp *BufferPool) pushFront(f *pageFrame) {
	f.prev = nil
	f.next = bp.head
	if bp.head != nil {
		bp.head.prev = f
	}
	bp.head = f
	if bp.tail == nil {
		bp.tail = f
	}
}

func (bp *BufferPool) unlink(f *pageFrame) {
	if f.prev != nil {
		f.prev.next = f.next
	} else {
		bp.head = f.next
	}
	if f.next != nil {
		f.next.prev = f.prev
	} else {
		bp.tail = f.prev
	}
	f.prev = nil
	f.next = nil
}

func (bp *BufferPool) moveToFront(f *pageFrame) {
	bp.unlink(f)
	bp.pushFront(f)
}
