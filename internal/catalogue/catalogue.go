// Package catalogue defines the local media catalogue collaborator the lock
// processor applies enforcement against. The real catalogue lives outside
// this subsystem; MemoryCatalogue backs tests and offline development.
package catalogue

import (
	"context"
	"errors"
)

// Collection types; a TV-show collection contains season sub-collections.
const (
	TypeTVShow  = "tv_show"
	TypeSeason  = "season"
	TypeGeneric = "generic"
)

var ErrNotFound = errors.New("catalogue record not found")

// Video is one playable title.
type Video struct {
	ID              string
	Title           string
	CollectionNames []string
	IsFavourite     bool
	Enabled         bool
	Hidden          bool
	DurationSeconds int
}

// Collection groups videos; TV-show collections additionally group season
// sub-collections.
type Collection struct {
	ID         string
	Name       string
	Type       string
	ParentName string
	VideoCount int
	Enabled    bool
	Hidden     bool
}

// Catalogue is the lookup/mutation surface consumed by lock enforcement.
// Lookup is by human-readable name; a miss returns ErrNotFound.
type Catalogue interface {
	FindVideoByTitle(ctx context.Context, title string) (*Video, error)
	FindCollectionByName(ctx context.Context, name string) (*Collection, error)
	SetVideoEnabled(ctx context.Context, id string, enabled bool) error
	SetVideoHidden(ctx context.Context, id string, hidden bool) error
	SetCollectionEnabled(ctx context.Context, id string, enabled bool) error
	SetCollectionHidden(ctx context.Context, id string, hidden bool) error
	SubCollections(ctx context.Context, id string) ([]*Collection, error)
	VideosInCollection(ctx context.Context, id string) ([]*Video, error)
}
