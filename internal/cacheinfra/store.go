package cacheinfra

import (
	"container/list"
	"time"
)

// entry is a single cached value. Entries are replaced wholesale on Set;
// only Refresh mutates expiresAt and gen in place.
type entry struct {
	key       string
	value     any
	createdAt time.Time
	expiresAt time.Time // zero means no expiration
	tag       string
	gen       uint64
	elem      *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// entryStore maps keys to entries and keeps them in creation order,
// front being the oldest. Callers synchronize access.
type entryStore struct {
	maxSize int
	entries map[string]*entry
	order   *list.List
}

func newEntryStore(maxSize int) *entryStore {
	return &entryStore{
		maxSize: maxSize,
		entries: make(map[string]*entry),
		order:   list.New(),
	}
}

func (s *entryStore) lookup(key string) (*entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

// insert stores e, replacing any entry under the same key. A replaced entry
// loses its creation-order position. When the store is full and the key is
// new, the oldest entry is removed first and returned.
func (s *entryStore) insert(e *entry) (evicted *entry) {
	if old, ok := s.entries[e.key]; ok {
		s.order.Remove(old.elem)
		delete(s.entries, old.key)
	} else if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		evicted = s.removeOldest()
	}

	e.elem = s.order.PushBack(e)
	s.entries[e.key] = e
	return evicted
}

func (s *entryStore) remove(key string) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	s.order.Remove(e.elem)
	delete(s.entries, key)
	return e, true
}

func (s *entryStore) removeOldest() *entry {
	front := s.order.Front()
	if front == nil {
		return nil
	}
	e := front.Value.(*entry)
	s.order.Remove(front)
	delete(s.entries, e.key)
	return e
}

// collect returns the entries matching fn in creation order.
func (s *entryStore) collect(fn func(*entry) bool) []*entry {
	var out []*entry
	for el := s.order.Front(); el != nil; el = el.Next() {
		if e := el.Value.(*entry); fn(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *entryStore) keys() []string {
	out := make([]string, 0, len(s.entries))
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).key)
	}
	return out
}

func (s *entryStore) len() int {
	return len(s.entries)
}

func (s *entryStore) reset() {
	s.entries = make(map[string]*entry)
	s.order.Init()
}
