package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/channelsync"
	"github.com/tssgery/pmm-dizquetv/internal/config"
	"github.com/tssgery/pmm-dizquetv/internal/directory"
	"github.com/tssgery/pmm-dizquetv/internal/dizquetv"
	"github.com/tssgery/pmm-dizquetv/internal/lineup"
	"github.com/tssgery/pmm-dizquetv/internal/notify"
	"github.com/tssgery/pmm-dizquetv/internal/plex"
	"github.com/tssgery/pmm-dizquetv/internal/policy"
)

func (s *Server) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.queue:
			s.Metrics.QueueDepth.Set(float64(len(s.queue)))
			s.process(ctx, ev)
		}
	}
}

// process runs one event end to end. Configuration is reloaded and all
// clients are rebuilt per event: nothing about the remote services is
// cached across events.
func (s *Server) process(ctx context.Context, ev channelsync.Event) {
	start := time.Now()
	s.mu.Lock()
	s.lastEvent = start
	s.mu.Unlock()

	log := s.Log.With(zap.String("event", ev.ID))

	cfg, warns, err := config.Load(s.ConfigPath)
	if err != nil {
		log.Error("config reload failed, dropping event", zap.Error(err))
		s.Metrics.EventsTotal.WithLabelValues("error").Inc()
		return
	}
	for _, wmsg := range warns {
		log.Warn("config schema warning", zap.String("detail", wmsg))
	}

	pol := policy.NewResolver(cfg, log).Resolve(ev.Library, ev.Collection)

	dtv := dizquetv.NewClient(cfg.DizqueTV.URL, log)
	syncer := channelsync.New(
		directory.New(dtv, log),
		dtv,
		lineup.NewBuilder(plex.NewClient(cfg.Plex.URL, cfg.Plex.Token, log), log),
		log,
	)

	outcome, err := syncer.Sync(ctx, ev, pol)
	s.Metrics.SyncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("synchronization aborted", zap.Error(err))
		s.Metrics.EventsTotal.WithLabelValues("error").Inc()
		notifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		s.sinkFor(cfg).RunSignal(notifyCtx,
			fmt.Sprintf("Synchronization failed for %q in %q: %v", ev.Collection, ev.Library, err))
		return
	}
	s.Metrics.EventsTotal.WithLabelValues(strings.ToLower(string(outcome.Operation))).Inc()

	if s.Journal != nil {
		if err := s.Journal.Record(ctx, *outcome); err != nil {
			log.Warn("journal write failed", zap.Error(err))
		}
	}

	notifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	s.sinkFor(cfg).Notify(notifyCtx, *outcome)
}

// sinkFor returns the notification sink for the given config: Discord when
// a webhook URL is configured, otherwise a no-op.
func (s *Server) sinkFor(cfg *config.Config) notify.Sink {
	dc := cfg.DizqueTV.Discord
	if dc.URL == "" {
		return notify.Nop{}
	}
	d := notify.NewDiscord(dc.URL, dc.Username, dc.Avatar, s.Log)
	d.OnFailure = s.Metrics.NotifyFailures.Inc
	return d
}

// buildSink reloads config and returns the sink; used by the synchronous
// run-signal endpoints.
func (s *Server) buildSink() (notify.Sink, error) {
	cfg, _, err := config.Load(s.ConfigPath)
	if err != nil {
		s.Log.Warn("config reload failed for run signal", zap.Error(err))
		return notify.Nop{}, err
	}
	return s.sinkFor(cfg), nil
}
