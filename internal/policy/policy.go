// Package policy resolves the effective per-collection channel policy by
// overlaying collection-specific settings onto library-level defaults.
package policy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/config"
)

// ChannelPolicy is the effective configuration for one (library, collection)
// pair. Zero values are not meaningful defaults; build one with Resolve.
type ChannelPolicy struct {
	Ignore      bool     // skip the event entirely
	ChannelName string   // dizqueTV channel display name
	Group       string   // channel group label; "" = unset
	MinimumDays int      // minimum continuous playtime to schedule
	Fillers     []string // filler list names, in config order
	PadMinutes  int      // time-padding interval; 0 = disabled
	Randomize   bool     // shuffle programs before replication
	StartAt     int      // lowest channel number to consider when creating
}

// Resolver merges defaults and per-collection settings into ChannelPolicy
// values. Build a fresh Resolver from the config loaded for each event.
type Resolver struct {
	defaults  map[string]config.Settings
	libraries map[string]map[string]config.Settings
	log       *zap.Logger
}

func NewResolver(cfg *config.Config, log *zap.Logger) *Resolver {
	return &Resolver{defaults: cfg.Defaults, libraries: cfg.Libraries, log: log}
}

// Resolve returns the effective policy for a collection. Missing sections
// mean "use defaults"; malformed values are logged and fall back. Calling
// Resolve twice with the same inputs yields the same policy.
func (r *Resolver) Resolve(library, collection string) ChannelPolicy {
	merged := config.Settings{}
	for k, v := range r.defaults[library] {
		merged[k] = v
	}
	if colls, ok := r.libraries[library]; ok {
		for k, v := range colls[collection] {
			merged[k] = v
		}
	}

	where := fmt.Sprintf("%s/%s", library, collection)
	return ChannelPolicy{
		Ignore:      r.boolValue(merged, "ignore", false, where),
		ChannelName: r.stringValue(merged, "channel_name", library+" - "+collection, where),
		Group:       r.stringValue(merged, "channel_group", "", where),
		MinimumDays: r.intValue(merged, "minimum_days", 0, where),
		Fillers:     r.stringListValue(merged, "fillers", where),
		PadMinutes:  r.intValue(merged, "pad", 0, where),
		Randomize:   r.boolValue(merged, "random", true, where),
		StartAt:     r.intValue(merged, "dizquetv_start", 1, where),
	}
}

func (r *Resolver) boolValue(s config.Settings, key string, def bool, where string) bool {
	v, ok := s[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		r.log.Warn("ignoring non-bool setting", zap.String("collection", where), zap.String("key", key))
		return def
	}
	return b
}

func (r *Resolver) intValue(s config.Settings, key string, def int, where string) int {
	v, ok := s[key]
	if !ok {
		return def
	}
	n, ok := v.(int)
	if !ok {
		r.log.Warn("ignoring non-integer setting", zap.String("collection", where), zap.String("key", key))
		return def
	}
	if n < 0 {
		r.log.Warn("ignoring negative setting", zap.String("collection", where), zap.String("key", key), zap.Int("value", n))
		return def
	}
	return n
}

func (r *Resolver) stringValue(s config.Settings, key, def, where string) string {
	v, ok := s[key]
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		r.log.Warn("ignoring non-string setting", zap.String("collection", where), zap.String("key", key))
		return def
	}
	return str
}

func (r *Resolver) stringListValue(s config.Settings, key, where string) []string {
	v, ok := s[key]
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		r.log.Warn("ignoring non-list setting", zap.String("collection", where), zap.String("key", key))
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		str, ok := item.(string)
		if !ok {
			r.log.Warn("ignoring non-string filler name", zap.String("collection", where))
			continue
		}
		out = append(out, str)
	}
	return out
}
