package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchpilot/couchpilot/cache"
	"github.com/couchpilot/couchpilot/config"
	"github.com/couchpilot/couchpilot/core"
	"github.com/couchpilot/couchpilot/tool"
)

type fakeLibrary struct{}

func (fakeLibrary) Search(ctx context.Context, query string, limit int) ([]any, error) {
	return []any{map[string]any{"title": query}}, nil
}
func (fakeLibrary) OnDeck(ctx context.Context) ([]any, error)   { return []any{}, nil }
func (fakeLibrary) Sessions(ctx context.Context) ([]any, error) { return []any{}, nil }
func (fakeLibrary) RecentlyAdded(ctx context.Context, kind string) ([]any, error) {
	return []any{}, nil
}
func (fakeLibrary) SetRating(ctx context.Context, ratingKey string, rating float64) error {
	return nil
}

func TestRegisterAllSkipsNilBackends(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, RegisterAll(reg, Backends{Library: fakeLibrary{}}, nil))

	names := map[string]bool{}
	for _, d := range reg.Declarations() {
		names[d.Name] = true
	}
	assert.True(t, names["plex_search"])
	assert.False(t, names["tmdb_search_movies"], "nil catalog backend registers nothing")
	assert.False(t, names["fetch_cached_result"], "nil ref store registers nothing")
}

func TestDeclarationsCarryWriteAndVolatility(t *testing.T) {
	reg := tool.NewRegistry()
	refs := cache.NewRefStore(time.Minute)
	require.NoError(t, RegisterAll(reg, Backends{Library: fakeLibrary{}}, refs))

	search, ok := reg.Get("plex_search")
	require.True(t, ok)
	assert.False(t, search.IsWrite)
	assert.Equal(t, core.VolatilityMedium, search.Volatility)

	rate, ok := reg.Get("set_plex_rating")
	require.True(t, ok)
	assert.True(t, rate.IsWrite)
	assert.Equal(t, core.VolatilityNone, rate.Volatility)

	onDeck, ok := reg.Get("plex_on_deck")
	require.True(t, ok)
	assert.Equal(t, core.VolatilityShort, onDeck.Volatility)
}

func TestLibraryHandlerRoundTrip(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, RegisterAll(reg, Backends{Library: fakeLibrary{}}, nil))

	out, err := reg.Invoke(context.Background(), core.ToolCall{
		Name: "plex_search",
		Args: json.RawMessage(`{"query":"severance"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"title": "severance"}}, out)
}

func TestFetchCachedResultTool(t *testing.T) {
	reg := tool.NewRegistry()
	refs := cache.NewRefStore(time.Minute)
	require.NoError(t, RegisterAll(reg, Backends{}, refs))

	items := []any{
		map[string]any{"title": "Alien", "year": float64(1979)},
		map[string]any{"title": "Aliens", "year": float64(1986)},
	}
	ref := refs.Store(items)

	out, err := reg.Invoke(context.Background(), core.ToolCall{
		Name: "fetch_cached_result",
		Args: json.RawMessage(`{"result_ref":"` + ref + `","offset":1,"limit":1,"fields":["title"]}`),
	})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, 2, m["total"])
	assert.Equal(t, []any{map[string]any{"title": "Aliens"}}, m["items"])

	_, err = reg.Invoke(context.Background(), core.ToolCall{
		Name: "fetch_cached_result",
		Args: json.RawMessage(`{"result_ref":"ref_gone"}`),
	})
	assert.True(t, core.IsValidation(err), "dead references are the model's mistake, not an outage")
}

func TestPlexClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "severance", r.URL.Query().Get("query"))
		assert.Equal(t, "tok", r.Header.Get("X-Plex-Token"))
		json.NewEncoder(w).Encode(map[string]any{
			"MediaContainer": map[string]any{
				"Metadata": []any{map[string]any{"title": "Severance"}},
			},
		})
	}))
	defer srv.Close()

	c := NewPlexClient(config.Settings{PlexBaseURL: srv.URL, PlexToken: "tok"}, srv.Client())
	items, err := c.Search(context.Background(), "severance", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestRadarrClientErrorsAreProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRadarrClient(config.Settings{RadarrBaseURL: srv.URL, RadarrAPIKey: "k"}, srv.Client())
	_, err := c.Movies(context.Background())
	require.Error(t, err)
	var provErr *core.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "radarr", provErr.Provider)
}

func TestSonarrClientQueueUnwrapsRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/queue", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		json.NewEncoder(w).Encode(map[string]any{"records": []any{map[string]any{"id": 1}}})
	}))
	defer srv.Close()

	c := NewSonarrClient(config.Settings{SonarrBaseURL: srv.URL, SonarrAPIKey: "k"}, srv.Client())
	records, err := c.Queue(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

type fakeSeries struct{}

func (fakeSeries) Series(ctx context.Context) ([]any, error)              { return []any{}, nil }
func (fakeSeries) Lookup(ctx context.Context, term string) ([]any, error) { return []any{}, nil }
func (fakeSeries) Add(ctx context.Context, tvdbID int, qualityProfile string) (map[string]any, error) {
	return map[string]any{}, nil
}
func (fakeSeries) UpdateSeries(ctx context.Context, seriesID int, fields map[string]any) (map[string]any, error) {
	return map[string]any{"id": seriesID}, nil
}
func (fakeSeries) Episodes(ctx context.Context, seriesID int) ([]any, error) { return []any{}, nil }
func (fakeSeries) MonitorEpisodes(ctx context.Context, episodeIDs []int, monitored bool) error {
	return nil
}
func (fakeSeries) SearchSeason(ctx context.Context, seriesID, season int) (map[string]any, error) {
	return map[string]any{}, nil
}
func (fakeSeries) SearchEpisodes(ctx context.Context, episodeIDs []int) (map[string]any, error) {
	return map[string]any{}, nil
}
func (fakeSeries) QualityProfiles(ctx context.Context) ([]any, error) { return []any{}, nil }
func (fakeSeries) Queue(ctx context.Context) ([]any, error)           { return []any{}, nil }

func TestSeriesEpisodeAndQualityTools(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, RegisterAll(reg, Backends{Series: fakeSeries{}}, nil))

	episodes, ok := reg.Get("sonarr_episodes")
	require.True(t, ok)
	assert.False(t, episodes.IsWrite)
	assert.Equal(t, core.VolatilityShort, episodes.Volatility)

	search, ok := reg.Get("sonarr_search_episodes")
	require.True(t, ok)
	assert.True(t, search.IsWrite)

	profiles, ok := reg.Get("sonarr_quality_profiles")
	require.True(t, ok)
	assert.False(t, profiles.IsWrite)
	assert.Equal(t, core.VolatilityMedium, profiles.Volatility)

	update, ok := reg.Get("sonarr_update_series")
	require.True(t, ok)
	assert.True(t, update.IsWrite)

	out, err := reg.Invoke(context.Background(), core.ToolCall{
		Name: "sonarr_update_series",
		Args: json.RawMessage(`{"seriesId":12,"fields":{"qualityProfileId":3}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 12}, out)
}

func TestSonarrClientEpisodeSearchAndProfiles(t *testing.T) {
	var sawCommand map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/qualityprofile":
			json.NewEncoder(w).Encode([]any{map[string]any{"id": 1, "name": "HD-1080p"}})
		case "/api/v3/command":
			json.NewDecoder(r.Body).Decode(&sawCommand)
			json.NewEncoder(w).Encode(map[string]any{"id": 99})
		case "/api/v3/episode":
			assert.Equal(t, "12", r.URL.Query().Get("seriesId"))
			json.NewEncoder(w).Encode([]any{map[string]any{"id": 7}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewSonarrClient(config.Settings{SonarrBaseURL: srv.URL, SonarrAPIKey: "k"}, srv.Client())

	profiles, err := c.QualityProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	episodes, err := c.Episodes(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, episodes, 1)

	_, err = c.SearchEpisodes(context.Background(), []int{7, 8})
	require.NoError(t, err)
	assert.Equal(t, "EpisodeSearch", sawCommand["name"])
	assert.Equal(t, []any{float64(7), float64(8)}, sawCommand["episodeIds"])
}

func TestPrefsStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")

	s, err := NewPrefsStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "subtitles", true))
	require.NoError(t, s.Set(context.Background(), "maxRating", "PG-13"))

	reloaded, err := NewPrefsStore(path)
	require.NoError(t, err)
	values, err := reloaded.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, true, values["subtitles"])
	assert.Equal(t, "PG-13", values["maxRating"])
}

func TestPrefsStoreInMemory(t *testing.T) {
	s, err := NewPrefsStore("")
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "genre", "sci-fi"))
	values, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sci-fi", values["genre"])
}
