// Package directory maps channel display names to dizqueTV channel numbers
// and allocates numbers for new channels. It keeps no state: every lookup
// re-enumerates the server so the remote stays the single source of truth.
package directory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/dizquetv"
)

type Directory struct {
	DTV *dizquetv.Client
	Log *zap.Logger
}

func New(dtv *dizquetv.Client, log *zap.Logger) *Directory {
	return &Directory{DTV: dtv, Log: log}
}

// FindByName returns the number of the channel whose name equals name
// exactly (case-sensitive). found is false when no channel matches. Cost is
// linear in the current channel count.
func (d *Directory) FindByName(ctx context.Context, name string) (number int, found bool, err error) {
	nums, err := d.DTV.ChannelNumbers(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("enumerate channels: %w", err)
	}
	for _, n := range nums {
		ch, err := d.DTV.GetChannel(ctx, n)
		if err != nil {
			return 0, false, fmt.Errorf("fetch channel %d: %w", n, err)
		}
		if ch.Name == name {
			d.Log.Debug("found channel by name", zap.String("name", name), zap.Int("number", n))
			return n, true, nil
		}
	}
	return 0, false, nil
}

// Create allocates the lowest unused channel number at or above startAt and
// creates a channel there with an empty program list. With k channels in
// use, one of the k+1 candidates in [startAt, startAt+k] must be free.
func (d *Directory) Create(ctx context.Context, name string, startAt int) (int, error) {
	if startAt < 1 {
		startAt = 1
	}
	nums, err := d.DTV.ChannelNumbers(ctx)
	if err != nil {
		return 0, fmt.Errorf("enumerate channels: %w", err)
	}
	lowest := startAt
	if len(nums) > 0 {
		used := make(map[int]bool, len(nums))
		for _, n := range nums {
			used[n] = true
		}
		for candidate := startAt; candidate <= startAt+len(nums); candidate++ {
			if !used[candidate] {
				lowest = candidate
				break
			}
		}
	}
	d.Log.Debug("allocating channel number", zap.String("name", name), zap.Int("number", lowest))
	if err := d.DTV.CreateChannel(ctx, &dizquetv.Channel{
		Number:   lowest,
		Name:     name,
		Programs: []dizquetv.Program{},
	}); err != nil {
		return 0, fmt.Errorf("create channel %q at %d: %w", name, lowest, err)
	}
	return lowest, nil
}

// Delete removes the channel. The server treats missing numbers as success,
// so Delete is idempotent.
func (d *Directory) Delete(ctx context.Context, number int) error {
	return d.DTV.DeleteChannel(ctx, number)
}

// SetGroup and SetPoster are pass-through mutations.

func (d *Directory) SetGroup(ctx context.Context, number int, group string) error {
	return d.DTV.SetGroup(ctx, number, group)
}

func (d *Directory) SetPoster(ctx context.Context, number int, url string) error {
	return d.DTV.SetPoster(ctx, number, url)
}
