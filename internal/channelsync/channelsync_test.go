package channelsync

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/dizquetv"
	"github.com/tssgery/pmm-dizquetv/internal/policy"
)

type fakeDirectory struct {
	channels map[string]int
	nextNum  int
	calls    []string

	findErr   error
	createErr error
	deleteErr error
}

func (d *fakeDirectory) FindByName(ctx context.Context, name string) (int, bool, error) {
	d.calls = append(d.calls, "find")
	if d.findErr != nil {
		return 0, false, d.findErr
	}
	n, ok := d.channels[name]
	return n, ok, nil
}

func (d *fakeDirectory) Create(ctx context.Context, name string, startAt int) (int, error) {
	d.calls = append(d.calls, "create")
	if d.createErr != nil {
		return 0, d.createErr
	}
	n := d.nextNum
	if n == 0 {
		n = startAt
	}
	if d.channels == nil {
		d.channels = map[string]int{}
	}
	d.channels[name] = n
	return n, nil
}

func (d *fakeDirectory) Delete(ctx context.Context, number int) error {
	d.calls = append(d.calls, "delete")
	return d.deleteErr
}

func (d *fakeDirectory) SetGroup(ctx context.Context, number int, group string) error {
	d.calls = append(d.calls, "group:"+group)
	return nil
}

func (d *fakeDirectory) SetPoster(ctx context.Context, number int, url string) error {
	d.calls = append(d.calls, "poster:"+url)
	return nil
}

type fakeTimeline struct {
	calls   []string
	fillers []dizquetv.FillerList
	times   int

	getErr     error
	fillersErr error
	attachErr  error
}

func (t *fakeTimeline) GetChannel(ctx context.Context, number int) (*dizquetv.Channel, error) {
	t.calls = append(t.calls, "get")
	if t.getErr != nil {
		return nil, t.getErr
	}
	return &dizquetv.Channel{Number: number}, nil
}

func (t *fakeTimeline) DeleteAllPrograms(ctx context.Context, number int) error {
	t.calls = append(t.calls, "clear")
	return nil
}

func (t *fakeTimeline) AddPrograms(ctx context.Context, number int, programs []dizquetv.Program) error {
	t.calls = append(t.calls, "add")
	return nil
}

func (t *fakeTimeline) ListFillers(ctx context.Context) ([]dizquetv.FillerList, error) {
	t.calls = append(t.calls, "listfillers")
	return t.fillers, t.fillersErr
}

func (t *fakeTimeline) AttachFiller(ctx context.Context, number int, fillerID string) error {
	t.calls = append(t.calls, "attach:"+fillerID)
	return t.attachErr
}

func (t *fakeTimeline) ShufflePrograms(ctx context.Context, number int) error {
	t.calls = append(t.calls, "shuffle")
	return nil
}

func (t *fakeTimeline) ReplicatePrograms(ctx context.Context, number int, times int) error {
	t.calls = append(t.calls, "replicate")
	t.times = times
	return nil
}

func (t *fakeTimeline) PadProgramTimes(ctx context.Context, number int, intervalMinutes int) error {
	t.calls = append(t.calls, "pad")
	return nil
}

type fakeBuilder struct {
	programs []dizquetv.Program
	minutes  int
	err      error
}

func (b *fakeBuilder) Build(ctx context.Context, section, collection string) ([]dizquetv.Program, int, error) {
	return b.programs, b.minutes, b.err
}

func nPrograms(n int) []dizquetv.Program {
	out := make([]dizquetv.Program, n)
	for i := range out {
		out[i] = dizquetv.Program{Title: "p", Type: "movie", DurationMs: 60000}
	}
	return out
}

func TestTimesToRepeat(t *testing.T) {
	cases := []struct {
		days, minutes, want int
	}{
		{0, 120, 1},
		{1, 1440, 2},   // exactly one day of content still gets the +1 pass
		{1, 1441, 1},   // just over a day needs no extra pass
		{7, 360, 29},   // 10080/360 = 28 full passes
		{3, 100000, 1}, // lineup already longer than the window
	}
	for _, c := range cases {
		if got := TimesToRepeat(c.days, c.minutes); got != c.want {
			t.Errorf("TimesToRepeat(%d, %d) = %d, want %d", c.days, c.minutes, got, c.want)
		}
	}
}

func TestSyncIgnoredPolicyMakesNoRemoteCalls(t *testing.T) {
	dir := &fakeDirectory{}
	tl := &fakeTimeline{}
	s := New(dir, tl, &fakeBuilder{}, zap.NewNop())

	out, err := s.Sync(context.Background(), Event{ID: "e1", Library: "Movies", Collection: "Action"},
		policy.ChannelPolicy{Ignore: true, ChannelName: "Movies - Action"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Operation != OpIgnored {
		t.Fatalf("operation = %q, want %q", out.Operation, OpIgnored)
	}
	if len(dir.calls) != 0 || len(tl.calls) != 0 {
		t.Fatalf("ignored event touched remotes: dir=%v tl=%v", dir.calls, tl.calls)
	}
}

func TestSyncCreatesMissingChannel(t *testing.T) {
	dir := &fakeDirectory{}
	tl := &fakeTimeline{}
	b := &fakeBuilder{programs: nPrograms(5), minutes: 300}
	s := New(dir, tl, b, zap.NewNop())

	out, err := s.Sync(context.Background(),
		Event{ID: "e1", Library: "Movies", Collection: "Action", Created: true},
		policy.ChannelPolicy{ChannelName: "Movies - Action", StartAt: 1, Randomize: true, MinimumDays: 1})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Operation != OpCreated {
		t.Fatalf("operation = %q, want %q", out.Operation, OpCreated)
	}
	if out.ChannelNumber != 1 {
		t.Fatalf("channel number = %d, want 1", out.ChannelNumber)
	}
	if out.ProgramCount != 5 || out.TotalMinutes != 300 {
		t.Fatalf("outcome counts = (%d, %d), want (5, 300)", out.ProgramCount, out.TotalMinutes)
	}
	// No pad configured, so the sequence ends at replicate.
	if !equal(tl.calls, []string{"get", "clear", "add", "shuffle", "replicate"}) {
		t.Fatalf("timeline calls = %v", tl.calls)
	}
	if tl.times != TimesToRepeat(1, 300) {
		t.Fatalf("replicate times = %d, want %d", tl.times, TimesToRepeat(1, 300))
	}
}

func TestSyncUpdatesExistingChannel(t *testing.T) {
	dir := &fakeDirectory{channels: map[string]int{"Movies - Action": 7}}
	tl := &fakeTimeline{}
	b := &fakeBuilder{programs: nPrograms(2), minutes: 180}
	s := New(dir, tl, b, zap.NewNop())

	out, err := s.Sync(context.Background(),
		Event{ID: "e1", Library: "Movies", Collection: "Action", PosterURL: "http://img/poster.png"},
		policy.ChannelPolicy{ChannelName: "Movies - Action", Group: "PMM", PadMinutes: 30})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Operation != OpUpdated {
		t.Fatalf("operation = %q, want %q", out.Operation, OpUpdated)
	}
	if out.ChannelNumber != 7 {
		t.Fatalf("channel number = %d, want 7", out.ChannelNumber)
	}
	// Randomize is false here, so no shuffle; pad runs because PadMinutes > 0.
	if !equal(tl.calls, []string{"get", "clear", "add", "replicate", "pad"}) {
		t.Fatalf("timeline calls = %v", tl.calls)
	}
	if !equal(dir.calls, []string{"find", "group:PMM", "poster:http://img/poster.png"}) {
		t.Fatalf("directory calls = %v", dir.calls)
	}
}

func TestSyncDeleteExisting(t *testing.T) {
	dir := &fakeDirectory{channels: map[string]int{"Movies - Action": 5}}
	tl := &fakeTimeline{}
	s := New(dir, tl, &fakeBuilder{}, zap.NewNop())

	out, err := s.Sync(context.Background(),
		Event{ID: "e1", Library: "Movies", Collection: "Action", Deleted: true},
		policy.ChannelPolicy{ChannelName: "Movies - Action"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Operation != OpDeleted || out.ChannelNumber != 5 {
		t.Fatalf("outcome = %+v, want Deleted channel 5", out)
	}
	if len(tl.calls) != 0 {
		t.Fatalf("delete touched the timeline: %v", tl.calls)
	}
}

func TestSyncDeleteMissingIsIgnored(t *testing.T) {
	dir := &fakeDirectory{}
	s := New(dir, &fakeTimeline{}, &fakeBuilder{}, zap.NewNop())

	out, err := s.Sync(context.Background(),
		Event{ID: "e1", Library: "Movies", Collection: "Gone", Deleted: true},
		policy.ChannelPolicy{ChannelName: "Movies - Gone"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Operation != OpIgnored {
		t.Fatalf("operation = %q, want %q", out.Operation, OpIgnored)
	}
	if !equal(dir.calls, []string{"find"}) {
		t.Fatalf("directory calls = %v", dir.calls)
	}
}

func TestSyncEmptyLineupSkipsContentMutations(t *testing.T) {
	dir := &fakeDirectory{channels: map[string]int{"Movies - Empty": 3}}
	tl := &fakeTimeline{}
	s := New(dir, tl, &fakeBuilder{}, zap.NewNop())

	out, err := s.Sync(context.Background(),
		Event{ID: "e1", Library: "Movies", Collection: "Empty"},
		policy.ChannelPolicy{ChannelName: "Movies - Empty", Randomize: true, PadMinutes: 30})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Operation != OpUpdated || out.ProgramCount != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if !equal(tl.calls, []string{"get"}) {
		t.Fatalf("timeline calls = %v, want only the existence check", tl.calls)
	}
}

func TestSyncZeroMinutesSkipsReplication(t *testing.T) {
	dir := &fakeDirectory{channels: map[string]int{"Movies - NoRuntime": 3}}
	tl := &fakeTimeline{}
	b := &fakeBuilder{programs: nPrograms(4), minutes: 0}
	s := New(dir, tl, b, zap.NewNop())

	if _, err := s.Sync(context.Background(),
		Event{ID: "e1", Library: "Movies", Collection: "NoRuntime"},
		policy.ChannelPolicy{ChannelName: "Movies - NoRuntime", MinimumDays: 3}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !equal(tl.calls, []string{"get", "clear", "add"}) {
		t.Fatalf("timeline calls = %v, replication must be skipped", tl.calls)
	}
}

func TestSyncVanishedChannelAborts(t *testing.T) {
	dir := &fakeDirectory{channels: map[string]int{"Movies - Action": 2}}
	tl := &fakeTimeline{getErr: dizquetv.ErrChannelNotFound}
	s := New(dir, tl, &fakeBuilder{}, zap.NewNop())

	out, err := s.Sync(context.Background(),
		Event{ID: "e1", Library: "Movies", Collection: "Action"},
		policy.ChannelPolicy{ChannelName: "Movies - Action"})
	if err == nil {
		t.Fatal("expected error for vanished channel")
	}
	if out != nil {
		t.Fatalf("outcome = %+v, want nil on abort", out)
	}
}

func TestSyncFillersAttachedByName(t *testing.T) {
	dir := &fakeDirectory{channels: map[string]int{"Movies - Action": 2}}
	tl := &fakeTimeline{fillers: []dizquetv.FillerList{
		{ID: "f-commercials", Name: "Commercials"},
		{ID: "f-bumpers", Name: "Bumpers"},
	}}
	b := &fakeBuilder{programs: nPrograms(1), minutes: 90}
	s := New(dir, tl, b, zap.NewNop())

	if _, err := s.Sync(context.Background(),
		Event{ID: "e1", Library: "Movies", Collection: "Action"},
		policy.ChannelPolicy{ChannelName: "Movies - Action", Fillers: []string{"Commercials", "No Such List"}}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	// The known list attaches, the unknown one is skipped without failing.
	if !equal(tl.calls, []string{"get", "clear", "add", "listfillers", "attach:f-commercials", "replicate"}) {
		t.Fatalf("timeline calls = %v", tl.calls)
	}
}

func TestSyncFillerCatalogFailureIsNotFatal(t *testing.T) {
	dir := &fakeDirectory{channels: map[string]int{"Movies - Action": 2}}
	tl := &fakeTimeline{fillersErr: errors.New("boom")}
	b := &fakeBuilder{programs: nPrograms(1), minutes: 90}
	s := New(dir, tl, b, zap.NewNop())

	out, err := s.Sync(context.Background(),
		Event{ID: "e1", Library: "Movies", Collection: "Action"},
		policy.ChannelPolicy{ChannelName: "Movies - Action", Fillers: []string{"Commercials"}})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Operation != OpUpdated {
		t.Fatalf("operation = %q", out.Operation)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
