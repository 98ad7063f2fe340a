// Package lineup expands a Plex collection into the flat ordered program
// list used to populate a dizqueTV channel.
package lineup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/dizquetv"
	"github.com/tssgery/pmm-dizquetv/internal/plex"
)

// Source is the slice of the Plex client the builder needs.
type Source interface {
	FindCollection(ctx context.Context, section, title string) (*plex.Collection, error)
	CollectionItems(ctx context.Context, collectionRatingKey string) ([]plex.Item, error)
	ShowEpisodes(ctx context.Context, showRatingKey string) ([]plex.Item, error)
}

type Builder struct {
	Source Source
	Log    *zap.Logger
}

func NewBuilder(src Source, log *zap.Logger) *Builder {
	return &Builder{Source: src, Log: log}
}

// Build resolves the collection and returns its playable members in source
// order plus the total runtime in minutes. An unresolvable collection (zero
// or multiple exact-title matches) yields an empty list and no error.
//
// Movies and episodes are included as-is; items without a duration still
// appear in the list but contribute nothing to the total. Shows are never
// programs themselves: they expand into their episodes, keeping only
// episodes with both an availability date and a positive duration.
func (b *Builder) Build(ctx context.Context, section, collection string) ([]dizquetv.Program, int, error) {
	coll, err := b.Source.FindCollection(ctx, section, collection)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve collection %q in %q: %w", collection, section, err)
	}
	if coll == nil {
		b.Log.Info("collection not uniquely resolved, building empty lineup",
			zap.String("library", section), zap.String("collection", collection))
		return nil, 0, nil
	}

	members, err := b.Source.CollectionItems(ctx, coll.RatingKey)
	if err != nil {
		return nil, 0, fmt.Errorf("list collection %q members: %w", collection, err)
	}

	var programs []dizquetv.Program
	var totalMs int64
	for _, item := range members {
		switch item.Kind {
		case plex.KindMovie, plex.KindEpisode:
			programs = append(programs, toProgram(item))
			totalMs += item.DurationMs
		case plex.KindShow:
			episodes, err := b.Source.ShowEpisodes(ctx, item.RatingKey)
			if err != nil {
				return nil, 0, fmt.Errorf("expand show %q: %w", item.Title, err)
			}
			for _, ep := range episodes {
				if ep.AvailableAt == "" || ep.DurationMs <= 0 {
					continue
				}
				programs = append(programs, toProgram(ep))
				totalMs += ep.DurationMs
			}
		default:
			b.Log.Debug("skipping unplayable collection member",
				zap.String("title", item.Title), zap.String("kind", item.Kind))
		}
	}
	return programs, int(totalMs / 60000), nil
}

func toProgram(item plex.Item) dizquetv.Program {
	return dizquetv.Program{
		Title:      item.Title,
		Type:       item.Kind,
		DurationMs: item.DurationMs,
		RatingKey:  item.RatingKey,
		Key:        item.Key,
	}
}
