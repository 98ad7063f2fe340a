package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

const sectionsXML = `<?xml version="1.0" encoding="UTF-8"?>
<MediaContainer size="2">
  <Directory key="1" type="movie" title="Movies"/>
  <Directory key="2" type="show" title="TV Shows"/>
</MediaContainer>`

func newTestClient(t *testing.T, routes map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("X-Plex-Token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "tok", zap.NewNop())
}

func TestFindCollection(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/library/sections": sectionsXML,
		"/library/sections/1/collections": `<MediaContainer>
  <Directory ratingKey="100" type="collection" title="Action"/>
  <Directory ratingKey="101" type="collection" title="Comedy"/>
</MediaContainer>`,
	})

	coll, err := c.FindCollection(context.Background(), "Movies", "Action")
	if err != nil {
		t.Fatalf("FindCollection: %v", err)
	}
	if coll == nil || coll.RatingKey != "100" {
		t.Errorf("coll = %+v", coll)
	}
}

func TestFindCollectionZeroOrManyMatches(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/library/sections": sectionsXML,
		"/library/sections/1/collections": `<MediaContainer>
  <Directory ratingKey="100" type="collection" title="Action"/>
  <Directory ratingKey="101" type="collection" title="Action"/>
</MediaContainer>`,
	})
	ctx := context.Background()

	// Duplicate titles: never guess.
	coll, err := c.FindCollection(ctx, "Movies", "Action")
	if err != nil {
		t.Fatalf("FindCollection: %v", err)
	}
	if coll != nil {
		t.Errorf("expected nil for ambiguous title, got %+v", coll)
	}

	coll, err = c.FindCollection(ctx, "Movies", "Horror")
	if err != nil {
		t.Fatalf("FindCollection: %v", err)
	}
	if coll != nil {
		t.Errorf("expected nil for missing title, got %+v", coll)
	}
}

func TestFindCollectionUnknownSection(t *testing.T) {
	c := newTestClient(t, map[string]string{"/library/sections": sectionsXML})
	if _, err := c.FindCollection(context.Background(), "Music", "Anything"); err == nil {
		t.Fatal("expected error for unknown section")
	}
}

func TestCollectionItems(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/library/collections/100/children": `<MediaContainer>
  <Video ratingKey="10" key="/library/metadata/10" type="movie" title="Heat" duration="10200000"/>
  <Video ratingKey="11" key="/library/metadata/11" type="movie" title="Ronin"/>
  <Directory ratingKey="20" key="/library/metadata/20/children" type="show" title="The Wire"/>
</MediaContainer>`,
	})

	items, err := c.CollectionItems(context.Background(), "100")
	if err != nil {
		t.Fatalf("CollectionItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].Kind != KindMovie || items[0].DurationMs != 10200000 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].DurationMs != 0 {
		t.Errorf("missing duration should be 0, got %d", items[1].DurationMs)
	}
	if items[2].Kind != KindShow || items[2].RatingKey != "20" {
		t.Errorf("items[2] = %+v", items[2])
	}
}

func TestCollectionItemsKeepMixedDocumentOrder(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/library/collections/100/children": `<MediaContainer>
  <Directory ratingKey="20" type="show" title="First Show"/>
  <Video ratingKey="10" type="movie" title="Middle Movie" duration="6000000"/>
  <Directory ratingKey="21" type="show" title="Last Show"/>
</MediaContainer>`,
	})

	items, err := c.CollectionItems(context.Background(), "100")
	if err != nil {
		t.Fatalf("CollectionItems: %v", err)
	}
	// Shows and videos interleave; the list must match source enumeration
	// order, not element type.
	want := []string{"First Show", "Middle Movie", "Last Show"}
	if len(items) != len(want) {
		t.Fatalf("got %d items", len(items))
	}
	for i, title := range want {
		if items[i].Title != title {
			t.Errorf("items[%d] = %q, want %q", i, items[i].Title, title)
		}
	}
}

func TestShowEpisodes(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/library/metadata/20/allLeaves": `<MediaContainer>
  <Video ratingKey="30" type="episode" title="Ep 1" duration="3600000" originallyAvailableAt="2002-06-02"/>
  <Video ratingKey="31" type="episode" title="Ep 2" duration="3600000"/>
  <Video ratingKey="32" type="episode" title="Ep 3" originallyAvailableAt="2002-06-16"/>
</MediaContainer>`,
	})

	eps, err := c.ShowEpisodes(context.Background(), "20")
	if err != nil {
		t.Fatalf("ShowEpisodes: %v", err)
	}
	if len(eps) != 3 {
		t.Fatalf("got %d episodes", len(eps))
	}
	if eps[0].AvailableAt != "2002-06-02" {
		t.Errorf("eps[0] = %+v", eps[0])
	}
	if eps[1].AvailableAt != "" {
		t.Errorf("eps[1] availability should be unset, got %q", eps[1].AvailableAt)
	}
	if eps[2].DurationMs != 0 {
		t.Errorf("eps[2] duration should be 0, got %d", eps[2].DurationMs)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "tok", zap.NewNop())
	if _, err := c.CollectionItems(context.Background(), "100"); err == nil {
		t.Fatal("expected error on 502")
	}
}
