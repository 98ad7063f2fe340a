// Package channelsync orchestrates one collection-change event: resolve the
// target channel, rebuild its lineup, and apply the mutation sequence
// (replace, fillers, shuffle, replicate, pad, poster) in order.
package channelsync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/dizquetv"
	"github.com/tssgery/pmm-dizquetv/internal/policy"
)

// Event is one collection lifecycle notification. Exactly one of Created or
// Deleted is authoritative; when neither is set the event is a change.
type Event struct {
	ID         string // assigned at the webhook boundary
	Library    string
	Collection string
	PosterURL  string
	Created    bool
	Deleted    bool
}

// Operation is the terminal state of a synchronization.
type Operation string

const (
	OpIgnored Operation = "Ignored"
	OpDeleted Operation = "Deleted"
	OpCreated Operation = "Created"
	OpUpdated Operation = "Updated"
)

// Outcome is the single terminal event emitted per synchronization,
// consumed by the notification sink and the journal.
type Outcome struct {
	EventID       string
	Operation     Operation
	ChannelName   string
	ChannelNumber int
	ProgramCount  int
	TotalMinutes  int
}

// ChannelDirectory resolves and mutates channel identity.
type ChannelDirectory interface {
	FindByName(ctx context.Context, name string) (number int, found bool, err error)
	Create(ctx context.Context, name string, startAt int) (int, error)
	Delete(ctx context.Context, number int) error
	SetGroup(ctx context.Context, number int, group string) error
	SetPoster(ctx context.Context, number int, url string) error
}

// Timeline mutates a channel's program timeline.
type Timeline interface {
	GetChannel(ctx context.Context, number int) (*dizquetv.Channel, error)
	DeleteAllPrograms(ctx context.Context, number int) error
	AddPrograms(ctx context.Context, number int, programs []dizquetv.Program) error
	ListFillers(ctx context.Context) ([]dizquetv.FillerList, error)
	AttachFiller(ctx context.Context, number int, fillerID string) error
	ShufflePrograms(ctx context.Context, number int) error
	ReplicatePrograms(ctx context.Context, number int, times int) error
	PadProgramTimes(ctx context.Context, number int, intervalMinutes int) error
}

// LineupBuilder expands a collection into programs plus total minutes.
type LineupBuilder interface {
	Build(ctx context.Context, section, collection string) ([]dizquetv.Program, int, error)
}

type Synchronizer struct {
	Directory ChannelDirectory
	Timeline  Timeline
	Builder   LineupBuilder
	Log       *zap.Logger
}

func New(dir ChannelDirectory, tl Timeline, builder LineupBuilder, log *zap.Logger) *Synchronizer {
	return &Synchronizer{Directory: dir, Timeline: tl, Builder: builder, Log: log}
}

// TimesToRepeat returns how many passes of a totalMinutes lineup guarantee
// at least minimumDays of continuous playtime. The +1 covers the remainder
// and guarantees one full pass even when minimumDays is 0. totalMinutes
// must be positive.
func TimesToRepeat(minimumDays, totalMinutes int) int {
	return (minimumDays*24*60)/totalMinutes + 1
}

// Sync processes one event under the given policy and returns the terminal
// outcome. A nil outcome with an error means the synchronization aborted on
// remote inconsistency; the caller logs and must not fail the inbound
// request over it.
func (s *Synchronizer) Sync(ctx context.Context, ev Event, pol policy.ChannelPolicy) (*Outcome, error) {
	log := s.Log.With(
		zap.String("event", ev.ID),
		zap.String("library", ev.Library),
		zap.String("collection", ev.Collection),
		zap.String("channel", pol.ChannelName),
	)

	if pol.Ignore {
		log.Info("collection is configured as ignored, skipping")
		return &Outcome{EventID: ev.ID, Operation: OpIgnored, ChannelName: pol.ChannelName}, nil
	}

	number, found, err := s.Directory.FindByName(ctx, pol.ChannelName)
	if err != nil {
		return nil, fmt.Errorf("resolve channel %q: %w", pol.ChannelName, err)
	}

	if ev.Deleted {
		if !found {
			log.Info("deletion event for a channel that does not exist, nothing to do")
			return &Outcome{EventID: ev.ID, Operation: OpIgnored, ChannelName: pol.ChannelName}, nil
		}
		if err := s.Directory.Delete(ctx, number); err != nil {
			return nil, fmt.Errorf("delete channel %d: %w", number, err)
		}
		log.Info("deleted channel", zap.Int("number", number))
		return &Outcome{EventID: ev.ID, Operation: OpDeleted, ChannelName: pol.ChannelName, ChannelNumber: number}, nil
	}

	op := OpUpdated
	if !found {
		number, err = s.Directory.Create(ctx, pol.ChannelName, pol.StartAt)
		if err != nil {
			return nil, fmt.Errorf("create channel %q: %w", pol.ChannelName, err)
		}
		op = OpCreated
		log.Info("created channel", zap.Int("number", number))
	}

	// The channel must be fetchable at its number before any timeline work;
	// a miss here is remote inconsistency and aborts the event.
	if _, err := s.Timeline.GetChannel(ctx, number); err != nil {
		if errors.Is(err, dizquetv.ErrChannelNotFound) {
			return nil, fmt.Errorf("channel %d vanished after resolve", number)
		}
		return nil, fmt.Errorf("fetch channel %d: %w", number, err)
	}

	if pol.Group != "" {
		if err := s.Directory.SetGroup(ctx, number, pol.Group); err != nil {
			return nil, fmt.Errorf("set group on channel %d: %w", number, err)
		}
	}

	programs, totalMinutes, err := s.Builder.Build(ctx, ev.Library, ev.Collection)
	if err != nil {
		return nil, fmt.Errorf("build lineup: %w", err)
	}

	if len(programs) > 0 {
		if err := s.populate(ctx, log, number, programs, totalMinutes, pol); err != nil {
			return nil, err
		}
	} else {
		log.Info("lineup is empty, leaving channel without programs")
	}

	if ev.PosterURL != "" {
		if err := s.Directory.SetPoster(ctx, number, ev.PosterURL); err != nil {
			return nil, fmt.Errorf("set poster on channel %d: %w", number, err)
		}
	}

	log.Info("synchronized channel",
		zap.String("operation", string(op)),
		zap.Int("number", number),
		zap.Int("programs", len(programs)),
		zap.Int("minutes", totalMinutes))
	return &Outcome{
		EventID:       ev.ID,
		Operation:     op,
		ChannelName:   pol.ChannelName,
		ChannelNumber: number,
		ProgramCount:  len(programs),
		TotalMinutes:  totalMinutes,
	}, nil
}

// populate applies the content mutations for a non-empty lineup: replace,
// fillers, shuffle, replicate, pad.
func (s *Synchronizer) populate(ctx context.Context, log *zap.Logger, number int, programs []dizquetv.Program, totalMinutes int, pol policy.ChannelPolicy) error {
	if err := s.Timeline.DeleteAllPrograms(ctx, number); err != nil {
		return fmt.Errorf("clear channel %d: %w", number, err)
	}
	if err := s.Timeline.AddPrograms(ctx, number, programs); err != nil {
		return fmt.Errorf("add programs to channel %d: %w", number, err)
	}

	s.attachFillers(ctx, log, number, pol.Fillers)

	if pol.Randomize {
		if err := s.Timeline.ShufflePrograms(ctx, number); err != nil {
			return fmt.Errorf("shuffle channel %d: %w", number, err)
		}
	}
	if totalMinutes > 0 {
		times := TimesToRepeat(pol.MinimumDays, totalMinutes)
		if err := s.Timeline.ReplicatePrograms(ctx, number, times); err != nil {
			return fmt.Errorf("replicate channel %d: %w", number, err)
		}
	} else {
		// Items exist but none carry a duration; replication would divide
		// by zero, so it is skipped.
		log.Warn("lineup has no total duration, skipping replication", zap.Int("number", number))
	}
	if pol.PadMinutes > 0 {
		if err := s.Timeline.PadProgramTimes(ctx, number, pol.PadMinutes); err != nil {
			return fmt.Errorf("pad channel %d: %w", number, err)
		}
	}
	return nil
}

// attachFillers resolves each configured filler list by name and attaches
// the ones that exist. A missing name or an unreachable filler catalog is
// logged and skipped, never fatal.
func (s *Synchronizer) attachFillers(ctx context.Context, log *zap.Logger, number int, names []string) {
	if len(names) == 0 {
		return
	}
	lists, err := s.Timeline.ListFillers(ctx)
	if err != nil {
		log.Warn("cannot list filler catalogs, skipping fillers", zap.Error(err))
		return
	}
	byName := make(map[string]string, len(lists))
	for _, fl := range lists {
		byName[fl.Name] = fl.ID
	}
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			log.Warn("filler list not found, skipping", zap.String("filler", name))
			continue
		}
		if err := s.Timeline.AttachFiller(ctx, number, id); err != nil {
			log.Warn("attach filler failed, skipping", zap.String("filler", name), zap.Error(err))
		}
	}
}
