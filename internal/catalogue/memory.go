package catalogue

import (
	"context"
	"sync"
)

// MemoryCatalogue is an in-memory Catalogue implementation.
type MemoryCatalogue struct {
	mu          sync.RWMutex
	videos      map[string]*Video      // by id
	collections map[string]*Collection // by id
}

// NewMemoryCatalogue creates an empty in-memory catalogue.
func NewMemoryCatalogue() *MemoryCatalogue {
	return &MemoryCatalogue{
		videos:      make(map[string]*Video),
		collections: make(map[string]*Collection),
	}
}

// AddVideo registers a video.
func (c *MemoryCatalogue) AddVideo(v *Video) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *v
	c.videos[v.ID] = &copied
}

// AddCollection registers a collection.
func (c *MemoryCatalogue) AddCollection(col *Collection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *col
	c.collections[col.ID] = &copied
}

func (c *MemoryCatalogue) FindVideoByTitle(_ context.Context, title string) (*Video, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.videos {
		if v.Title == title {
			copied := *v
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (c *MemoryCatalogue) FindCollectionByName(_ context.Context, name string) (*Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, col := range c.collections {
		if col.Name == name {
			copied := *col
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (c *MemoryCatalogue) SetVideoEnabled(_ context.Context, id string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.videos[id]
	if !ok {
		return ErrNotFound
	}
	v.Enabled = enabled
	return nil
}

func (c *MemoryCatalogue) SetVideoHidden(_ context.Context, id string, hidden bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.videos[id]
	if !ok {
		return ErrNotFound
	}
	v.Hidden = hidden
	return nil
}

func (c *MemoryCatalogue) SetCollectionEnabled(_ context.Context, id string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, ok := c.collections[id]
	if !ok {
		return ErrNotFound
	}
	col.Enabled = enabled
	return nil
}

func (c *MemoryCatalogue) SetCollectionHidden(_ context.Context, id string, hidden bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, ok := c.collections[id]
	if !ok {
		return ErrNotFound
	}
	col.Hidden = hidden
	return nil
}

func (c *MemoryCatalogue) SubCollections(_ context.Context, id string) ([]*Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	parent, ok := c.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	var out []*Collection
	for _, col := range c.collections {
		if col.ParentName == parent.Name {
			copied := *col
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (c *MemoryCatalogue) VideosInCollection(_ context.Context, id string) ([]*Video, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	var out []*Video
	for _, v := range c.videos {
		for _, name := range v.CollectionNames {
			if name == col.Name {
				copied := *v
				out = append(out, &copied)
				break
			}
		}
	}
	return out, nil
}

// Video returns a video by id, for assertions in tests.
func (c *MemoryCatalogue) Video(id string) (Video, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.videos[id]
	if !ok {
		return Video{}, false
	}
	return *v, true
}

// Collection returns a collection by id, for assertions in tests.
func (c *MemoryCatalogue) Collection(id string) (Collection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.collections[id]
	if !ok {
		return Collection{}, false
	}
	return *col, true
}

var _ Catalogue = (*MemoryCatalogue)(nil)
