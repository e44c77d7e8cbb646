package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/kksharma1618/mediaserver/dlna"
	"github.com/kksharma1618/mediaserver/transcode"
)

// MemoryStore keeps the whole tree in memory. Content, when set, is served
// as is for both plain opens and segments. Every mutation bumps the update
// counter.
type MemoryStore struct {
	id      string
	counter *UpdateCounter

	mu        sync.RWMutex
	resources map[string]*Resource
	children  map[string][]string
	content   map[string][]byte
	thumbs    map[string][]byte
	library   map[Library]string
}

func NewMemoryStore(id string, counter *UpdateCounter) *MemoryStore {
	s := &MemoryStore{
		id:        id,
		counter:   counter,
		resources: make(map[string]*Resource),
		children:  make(map[string][]string),
		content:   make(map[string][]byte),
		thumbs:    make(map[string][]byte),
		library:   make(map[Library]string),
	}
	s.resources[RootID] = &Resource{ID: RootID, ParentID: "-1", Kind: KindContainer, Title: "root"}
	return s
}

func (s *MemoryStore) ID() string {
	return s.id
}

func (s *MemoryStore) changed() {
	if s.counter != nil {
		s.counter.Increment()
	}
}

// Put adds or replaces r under r.ParentID with optional content.
func (s *MemoryStore) Put(r *Resource, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" || r.ID == RootID {
		return fmt.Errorf("store: invalid id %q", r.ID)
	}
	parent, ok := s.resources[r.ParentID]
	if !ok {
		return fmt.Errorf("parent %q: %w", r.ParentID, ErrNotFound)
	}
	if !parent.IsContainer() {
		return fmt.Errorf("parent %q: %w", r.ParentID, ErrNotContainer)
	}
	cp := *r
	if old, ok := s.resources[r.ID]; ok {
		cp.ChildCount = old.ChildCount
		if old.ParentID != r.ParentID {
			s.unlink(old)
			s.link(&cp)
		}
	} else {
		cp.ChildCount = 0
		s.link(&cp)
	}
	s.resources[r.ID] = &cp
	if content != nil {
		s.content[r.ID] = content
		if cp.Size == 0 {
			cp.Size = int64(len(content))
		}
	}
	s.changed()
	return nil
}

func (s *MemoryStore) link(r *Resource) {
	s.children[r.ParentID] = append(s.children[r.ParentID], r.ID)
	s.resources[r.ParentID].ChildCount++
}

func (s *MemoryStore) unlink(r *Resource) {
	ids := s.children[r.ParentID]
	for i, id := range ids {
		if id == r.ID {
			s.children[r.ParentID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if p, ok := s.resources[r.ParentID]; ok {
		p.ChildCount--
	}
}

// Remove deletes id and everything below it.
func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok || id == RootID {
		return fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	s.unlink(r)
	var drop func(id string)
	drop = func(id string) {
		for _, c := range s.children[id] {
			drop(c)
		}
		delete(s.children, id)
		delete(s.resources, id)
		delete(s.content, id)
		delete(s.thumbs, id)
	}
	drop(id)
	s.changed()
	return nil
}

// SetThumbnail attaches a thumbnail image to a resource. Known resources
// change their listing, so the update counter moves.
func (s *MemoryStore) SetThumbnail(id string, image []byte) {
	s.mu.Lock()
	s.thumbs[id] = image
	r, ok := s.resources[id]
	if ok {
		r.HasThumbnail = true
	}
	s.mu.Unlock()
	if ok {
		s.changed()
	}
}

func (s *MemoryStore) SetLibraryFolder(l Library, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.library[l] = id
}

func (s *MemoryStore) LibraryFolder(l Library) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.library[l]
}

func (s *MemoryStore) Resource(_ context.Context, id string) (*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) Children(_ context.Context, id string) ([]*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	if !r.IsContainer() {
		return nil, fmt.Errorf("%q: %w", id, ErrNotContainer)
	}
	ids := s.children[id]
	out := make([]*Resource, 0, len(ids))
	for _, c := range ids {
		cp := *s.resources[c]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Search(ctx context.Context, containerID string, c Criteria) ([]*Resource, error) {
	return SearchTree(ctx, s, containerID, c)
}

func (s *MemoryStore) bytes(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.resources[id]; !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	b, ok := s.content[id]
	if !ok {
		return nil, fmt.Errorf("%q has no content: %w", id, ErrUnsupported)
	}
	return b, nil
}

func (s *MemoryStore) Open(_ context.Context, id string, br dlna.ByteRange, _ dlna.TimeRange) (Stream, error) {
	b, err := s.bytes(id)
	if err != nil {
		return nil, err
	}
	return BytesStream(b, br), nil
}

func (s *MemoryStore) OpenSegment(_ context.Context, id string, _ transcode.Segment) (Stream, error) {
	b, err := s.bytes(id)
	if err != nil {
		return nil, err
	}
	return BytesStream(b, dlna.ByteRange{}), nil
}

func (s *MemoryStore) Thumbnail(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.thumbs[id]
	if !ok {
		return nil, fmt.Errorf("thumbnail %q: %w", id, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
