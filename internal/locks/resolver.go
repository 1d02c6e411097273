// Package locks processes remote lock/unlock commands against the catalogue,
// honoring warning periods and "finish current video" deferral.
package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vigil/internal/catalogue"
	"vigil/internal/core"
)

// TargetResolver applies a lock or unlock to a named target. Resolution is by
// display name, so a renamed video or collection orphans an in-flight
// command; callers treat core.ErrTargetNotFound as a non-fatal skip.
type TargetResolver interface {
	ApplyLock(ctx context.Context, target core.LockTarget, locked bool) error
}

// CatalogueResolver resolves targets against the local media catalogue.
// Locking a collection cascades: the collection itself, every video directly
// in it, and for TV-show collections every season and the episodes within.
type CatalogueResolver struct {
	cat    catalogue.Catalogue
	logger *slog.Logger
}

// NewCatalogueResolver creates a catalogue-backed resolver.
func NewCatalogueResolver(cat catalogue.Catalogue, logger *slog.Logger) *CatalogueResolver {
	return &CatalogueResolver{
		cat:    cat,
		logger: logger.With("component", "lock-resolver"),
	}
}

// ApplyLock sets the enabled flag of the target (and, for collections, its
// contents) to the inverse of locked.
func (r *CatalogueResolver) ApplyLock(ctx context.Context, target core.LockTarget, locked bool) error {
	enabled := !locked

	if target.IsVideo {
		video, err := r.cat.FindVideoByTitle(ctx, target.Name)
		if err != nil {
			if errors.Is(err, catalogue.ErrNotFound) {
				return fmt.Errorf("video %q: %w", target.Name, core.ErrTargetNotFound)
			}
			return fmt.Errorf("failed to resolve video %q: %w", target.Name, err)
		}
		return r.cat.SetVideoEnabled(ctx, video.ID, enabled)
	}

	col, err := r.cat.FindCollectionByName(ctx, target.Name)
	if err != nil {
		if errors.Is(err, catalogue.ErrNotFound) {
			return fmt.Errorf("collection %q: %w", target.Name, core.ErrTargetNotFound)
		}
		return fmt.Errorf("failed to resolve collection %q: %w", target.Name, err)
	}

	if err := r.setCollection(ctx, col.ID, enabled); err != nil {
		return err
	}

	if col.Type == catalogue.TypeTVShow {
		seasons, err := r.cat.SubCollections(ctx, col.ID)
		if err != nil {
			return fmt.Errorf("failed to list seasons of %q: %w", target.Name, err)
		}
		for _, season := range seasons {
			if err := r.setCollection(ctx, season.ID, enabled); err != nil {
				return err
			}
		}
	}

	return nil
}

// setCollection applies the enabled flag to a collection and every video
// directly inside it.
func (r *CatalogueResolver) setCollection(ctx context.Context, id string, enabled bool) error {
	if err := r.cat.SetCollectionEnabled(ctx, id, enabled); err != nil {
		return fmt.Errorf("failed to set collection %s: %w", id, err)
	}
	videos, err := r.cat.VideosInCollection(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list videos in collection %s: %w", id, err)
	}
	for _, v := range videos {
		if err := r.cat.SetVideoEnabled(ctx, v.ID, enabled); err != nil {
			return fmt.Errorf("failed to set video %s: %w", v.ID, err)
		}
	}
	return nil
}

var _ TargetResolver = (*CatalogueResolver)(nil)
