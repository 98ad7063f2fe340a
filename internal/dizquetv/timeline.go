package dizquetv

import (
	"context"
	"math/rand/v2"
)

// addChunkSize bounds the payload of a single program-append call.
const addChunkSize = 100

// defaultFillerWeight matches the dizqueTV UI default for a newly attached
// filler list.
const defaultFillerWeight = 300

// Timeline operations are read-modify-write: fetch the channel document,
// transform the program list, write it back. The server holds the only
// authoritative copy, so every operation starts from a fresh fetch.

func (c *Client) modify(ctx context.Context, number int, fn func(ch *Channel)) error {
	ch, err := c.GetChannel(ctx, number)
	if err != nil {
		return err
	}
	fn(ch)
	ch.DurationMs = totalDuration(ch.Programs)
	return c.UpdateChannel(ctx, ch)
}

func totalDuration(programs []Program) int64 {
	var total int64
	for _, p := range programs {
		total += p.DurationMs
	}
	return total
}

// DeleteAllPrograms clears the channel's timeline and filler associations.
func (c *Client) DeleteAllPrograms(ctx context.Context, number int) error {
	return c.modify(ctx, number, func(ch *Channel) {
		ch.Programs = []Program{}
		ch.FillerCollections = nil
	})
}

// AddPrograms appends programs to the channel's timeline in order, batched
// into fixed-size chunks to bound single-call payload size. Chunking does
// not change the final content or order.
func (c *Client) AddPrograms(ctx context.Context, number int, programs []Program) error {
	for start := 0; start < len(programs); start += addChunkSize {
		end := start + addChunkSize
		if end > len(programs) {
			end = len(programs)
		}
		chunk := programs[start:end]
		if err := c.modify(ctx, number, func(ch *Channel) {
			ch.Programs = append(ch.Programs, chunk...)
		}); err != nil {
			return err
		}
	}
	return nil
}

// AttachFiller associates a filler list with the channel. Attaching an
// already-attached list is a no-op.
func (c *Client) AttachFiller(ctx context.Context, number int, fillerID string) error {
	return c.modify(ctx, number, func(ch *Channel) {
		for _, ref := range ch.FillerCollections {
			if ref.ID == fillerID {
				return
			}
		}
		ch.FillerCollections = append(ch.FillerCollections, FillerRef{
			ID:     fillerID,
			Weight: defaultFillerWeight,
		})
	})
}

// ShufflePrograms randomizes the channel's program order.
func (c *Client) ShufflePrograms(ctx context.Context, number int) error {
	return c.modify(ctx, number, func(ch *Channel) {
		rand.Shuffle(len(ch.Programs), func(i, j int) {
			ch.Programs[i], ch.Programs[j] = ch.Programs[j], ch.Programs[i]
		})
	})
}

// ReplicatePrograms repeats the current program sequence end-to-end so the
// timeline holds times copies of it. times <= 1 leaves the channel as-is.
func (c *Client) ReplicatePrograms(ctx context.Context, number int, times int) error {
	if times <= 1 {
		return nil
	}
	return c.modify(ctx, number, func(ch *Channel) {
		base := ch.Programs
		out := make([]Program, 0, len(base)*times)
		for i := 0; i < times; i++ {
			out = append(out, base...)
		}
		ch.Programs = out
	})
}

// PadProgramTimes inserts offline flex entries so that every program starts
// on a boundary of the given interval (in minutes).
func (c *Client) PadProgramTimes(ctx context.Context, number int, intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return nil
	}
	intervalMs := int64(intervalMinutes) * 60 * 1000
	return c.modify(ctx, number, func(ch *Channel) {
		out := make([]Program, 0, len(ch.Programs)*2)
		var elapsed int64
		for _, p := range ch.Programs {
			out = append(out, p)
			elapsed += p.DurationMs
			if rem := elapsed % intervalMs; rem != 0 {
				flex := intervalMs - rem
				out = append(out, Program{Title: "Flex", Type: "flex", DurationMs: flex, IsOffline: true})
				elapsed += flex
			}
		}
		ch.Programs = out
	})
}

// SetGroup sets the channel's group label.
func (c *Client) SetGroup(ctx context.Context, number int, group string) error {
	return c.modify(ctx, number, func(ch *Channel) {
		ch.GroupTitle = group
	})
}

// SetPoster sets the channel's icon URL.
func (c *Client) SetPoster(ctx context.Context, number int, url string) error {
	return c.modify(ctx, number, func(ch *Channel) {
		ch.Icon = url
	})
}
