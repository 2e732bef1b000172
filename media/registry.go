package media

import (
	"context"

	"github.com/couchpilot/couchpilot/cache"
	"github.com/couchpilot/couchpilot/core"
	"github.com/couchpilot/couchpilot/tool"
)

// Family names. Each family maps to one upstream, which is the unit of
// circuit breaking and per-family concurrency.
const (
	FamilyLibrary = "library"
	FamilyCatalog = "catalog"
	FamilyMovies  = "movies"
	FamilySeries  = "series"
	FamilyPrefs   = "prefs"
	FamilyCache   = "cache"
)

func strArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func floatArg(args map[string]any, key string) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return 0
}

func intSliceArg(args map[string]any, key string) []int {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		if f, ok := item.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

func objectSchema(required []any, props map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// RegisterAll registers the toolset for every non-nil backend plus the
// cache-family paging tool. refs must be the executor's reference store so
// fetch_cached_result can see truncated payloads.
func RegisterAll(reg *tool.Registry, b Backends, refs *cache.RefStore) error {
	registrars := []func(*tool.Registry) error{}
	if b.Library != nil {
		registrars = append(registrars, libraryTools(b.Library))
	}
	if b.Catalog != nil {
		registrars = append(registrars, catalogTools(b.Catalog))
	}
	if b.Movies != nil {
		registrars = append(registrars, movieTools(b.Movies))
	}
	if b.Series != nil {
		registrars = append(registrars, seriesTools(b.Series))
	}
	if b.Prefs != nil {
		registrars = append(registrars, prefsTools(b.Prefs))
	}
	if refs != nil {
		registrars = append(registrars, cacheTools(refs))
	}

	for _, register := range registrars {
		if err := register(reg); err != nil {
			return err
		}
	}
	return nil
}

func libraryTools(lib Library) func(*tool.Registry) error {
	return func(reg *tool.Registry) error {
		decls := []struct {
			decl    tool.Declaration
			handler tool.Handler
		}{
			{
				tool.Declaration{
					Name:        "plex_search",
					Family:      FamilyLibrary,
					Description: "Search the household media library by title.",
					Volatility:  core.VolatilityMedium,
					Schema: objectSchema([]any{"query"}, map[string]any{
						"query": map[string]any{"type": "string"},
						"limit": map[string]any{"type": "integer", "minimum": 1},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return lib.Search(ctx, strArg(args, "query"), intArg(args, "limit"))
				},
			},
			{
				tool.Declaration{
					Name:        "plex_on_deck",
					Family:      FamilyLibrary,
					Description: "List what household members are in the middle of watching.",
					Volatility:  core.VolatilityShort,
					Schema:      objectSchema(nil, map[string]any{}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return lib.OnDeck(ctx)
				},
			},
			{
				tool.Declaration{
					Name:        "plex_recently_added",
					Family:      FamilyLibrary,
					Description: "List items recently added to the library, optionally filtered by kind (movie or show).",
					Volatility:  core.VolatilityShort,
					Schema: objectSchema(nil, map[string]any{
						"kind": map[string]any{"type": "string", "enum": []any{"movie", "show"}},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return lib.RecentlyAdded(ctx, strArg(args, "kind"))
				},
			},
			{
				tool.Declaration{
					Name:        "plex_sessions",
					Family:      FamilyLibrary,
					Description: "List active playback sessions right now.",
					Volatility:  core.VolatilityNone,
					Schema:      objectSchema(nil, map[string]any{}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return lib.Sessions(ctx)
				},
			},
			{
				tool.Declaration{
					Name:        "set_plex_rating",
					Family:      FamilyLibrary,
					Description: "Set the star rating on a library item.",
					IsWrite:     true,
					Volatility:  core.VolatilityNone,
					Schema: objectSchema([]any{"ratingKey", "rating"}, map[string]any{
						"ratingKey": map[string]any{"type": "string"},
						"rating":    map[string]any{"type": "number", "minimum": 0, "maximum": 10},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					err := lib.SetRating(ctx, strArg(args, "ratingKey"), floatArg(args, "rating"))
					if err != nil {
						return nil, err
					}
					return map[string]any{"rated": true}, nil
				},
			},
		}
		for _, d := range decls {
			if err := reg.Register(d.decl, d.handler); err != nil {
				return err
			}
		}
		return nil
	}
}

func catalogTools(cat Catalog) func(*tool.Registry) error {
	return func(reg *tool.Registry) error {
		decls := []struct {
			decl    tool.Declaration
			handler tool.Handler
		}{
			{
				tool.Declaration{
					Name:        "tmdb_search_movies",
					Family:      FamilyCatalog,
					Description: "Search the public movie catalog by title, optionally restricted to a year.",
					Volatility:  core.VolatilityMedium,
					Schema: objectSchema([]any{"query"}, map[string]any{
						"query": map[string]any{"type": "string"},
						"year":  map[string]any{"type": "integer"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return cat.SearchMovies(ctx, strArg(args, "query"), intArg(args, "year"))
				},
			},
			{
				tool.Declaration{
					Name:        "tmdb_search_series",
					Family:      FamilyCatalog,
					Description: "Search the public TV catalog by title.",
					Volatility:  core.VolatilityMedium,
					Schema: objectSchema([]any{"query"}, map[string]any{
						"query": map[string]any{"type": "string"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return cat.SearchSeries(ctx, strArg(args, "query"))
				},
			},
			{
				tool.Declaration{
					Name:        "tmdb_trending",
					Family:      FamilyCatalog,
					Description: "List what is trending this week (mediaType: movie, tv or all).",
					Volatility:  core.VolatilityMedium,
					Schema: objectSchema(nil, map[string]any{
						"mediaType": map[string]any{"type": "string", "enum": []any{"movie", "tv", "all"}},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return cat.Trending(ctx, strArg(args, "mediaType"))
				},
			},
			{
				tool.Declaration{
					Name:        "tmdb_details",
					Family:      FamilyCatalog,
					Description: "Fetch full catalog details for one movie or TV series by id.",
					Volatility:  core.VolatilityMedium,
					Schema: objectSchema([]any{"mediaType", "id"}, map[string]any{
						"mediaType": map[string]any{"type": "string", "enum": []any{"movie", "tv"}},
						"id":        map[string]any{"type": "integer"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return cat.Details(ctx, strArg(args, "mediaType"), intArg(args, "id"))
				},
			},
		}
		for _, d := range decls {
			if err := reg.Register(d.decl, d.handler); err != nil {
				return err
			}
		}
		return nil
	}
}

func movieTools(mgr MovieManager) func(*tool.Registry) error {
	return func(reg *tool.Registry) error {
		decls := []struct {
			decl    tool.Declaration
			handler tool.Handler
		}{
			{
				tool.Declaration{
					Name:        "radarr_movies",
					Family:      FamilyMovies,
					Description: "List every movie currently managed for the household.",
					Volatility:  core.VolatilityShort,
					Schema:      objectSchema(nil, map[string]any{}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.Movies(ctx)
				},
			},
			{
				tool.Declaration{
					Name:        "radarr_lookup",
					Family:      FamilyMovies,
					Description: "Look up a movie to add, by title or tmdb: id.",
					Volatility:  core.VolatilityMedium,
					Schema: objectSchema([]any{"term"}, map[string]any{
						"term": map[string]any{"type": "string"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.Lookup(ctx, strArg(args, "term"))
				},
			},
			{
				tool.Declaration{
					Name:        "radarr_add_movie",
					Family:      FamilyMovies,
					Description: "Add a movie to the household collection and start searching for it.",
					IsWrite:     true,
					Volatility:  core.VolatilityNone,
					Schema: objectSchema([]any{"tmdbId"}, map[string]any{
						"tmdbId":         map[string]any{"type": "integer"},
						"qualityProfile": map[string]any{"type": "string"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.Add(ctx, intArg(args, "tmdbId"), strArg(args, "qualityProfile"))
				},
			},
			{
				tool.Declaration{
					Name:        "radarr_queue",
					Family:      FamilyMovies,
					Description: "Show the current movie download queue.",
					Volatility:  core.VolatilityShort,
					Schema:      objectSchema(nil, map[string]any{}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.Queue(ctx)
				},
			},
		}
		for _, d := range decls {
			if err := reg.Register(d.decl, d.handler); err != nil {
				return err
			}
		}
		return nil
	}
}

func seriesTools(mgr SeriesManager) func(*tool.Registry) error {
	return func(reg *tool.Registry) error {
		decls := []struct {
			decl    tool.Declaration
			handler tool.Handler
		}{
			{
				tool.Declaration{
					Name:        "sonarr_series",
					Family:      FamilySeries,
					Description: "List every TV series currently managed for the household.",
					Volatility:  core.VolatilityShort,
					Schema:      objectSchema(nil, map[string]any{}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.Series(ctx)
				},
			},
			{
				tool.Declaration{
					Name:        "sonarr_lookup",
					Family:      FamilySeries,
					Description: "Look up a TV series to add, by title or tvdb: id.",
					Volatility:  core.VolatilityMedium,
					Schema: objectSchema([]any{"term"}, map[string]any{
						"term": map[string]any{"type": "string"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.Lookup(ctx, strArg(args, "term"))
				},
			},
			{
				tool.Declaration{
					Name:        "sonarr_add_series",
					Family:      FamilySeries,
					Description: "Add a TV series to the household collection and start searching for missing episodes.",
					IsWrite:     true,
					Volatility:  core.VolatilityNone,
					Schema: objectSchema([]any{"tvdbId"}, map[string]any{
						"tvdbId":         map[string]any{"type": "integer"},
						"qualityProfile": map[string]any{"type": "string"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.Add(ctx, intArg(args, "tvdbId"), strArg(args, "qualityProfile"))
				},
			},
			{
				tool.Declaration{
					Name:        "sonarr_update_series",
					Family:      FamilySeries,
					Description: "Change settings of a managed series, such as its quality profile.",
					IsWrite:     true,
					Volatility:  core.VolatilityNone,
					Schema: objectSchema([]any{"seriesId"}, map[string]any{
						"seriesId": map[string]any{"type": "integer"},
						"fields":   map[string]any{"type": "object"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					fields, _ := args["fields"].(map[string]any)
					return mgr.UpdateSeries(ctx, intArg(args, "seriesId"), fields)
				},
			},
			{
				tool.Declaration{
					Name:        "sonarr_episodes",
					Family:      FamilySeries,
					Description: "List the episodes of a managed series, with ids for monitoring and searching.",
					Volatility:  core.VolatilityShort,
					Schema: objectSchema([]any{"seriesId"}, map[string]any{
						"seriesId": map[string]any{"type": "integer"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.Episodes(ctx, intArg(args, "seriesId"))
				},
			},
			{
				tool.Declaration{
					Name:        "sonarr_monitor_episodes",
					Family:      FamilySeries,
					Description: "Mark specific episodes monitored or unmonitored.",
					IsWrite:     true,
					Volatility:  core.VolatilityNone,
					Schema: objectSchema([]any{"episodeIds", "monitored"}, map[string]any{
						"episodeIds": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
						"monitored":  map[string]any{"type": "boolean"},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					monitored, _ := args["monitored"].(bool)
					if err := mgr.MonitorEpisodes(ctx, intSliceArg(args, "episodeIds"), monitored); err != nil {
						return nil, err
					}
					return map[string]any{"updated": len(intSliceArg(args, "episodeIds"))}, nil
				},
			},
			{
				tool.Declaration{
					Name:        "sonarr_search_season",
					Family:      FamilySeries,
					Description: "Trigger a download search for one season of a managed series.",
					IsWrite:     true,
					Volatility:  core.VolatilityNone,
					Schema: objectSchema([]any{"seriesId", "season"}, map[string]any{
						"seriesId": map[string]any{"type": "integer"},
						"season":   map[string]any{"type": "integer", "minimum": 0},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.SearchSeason(ctx, intArg(args, "seriesId"), intArg(args, "season"))
				},
			},
			{
				tool.Declaration{
					Name:        "sonarr_search_episodes",
					Family:      FamilySeries,
					Description: "Trigger a download search for specific episodes by id, the fallback when a season search finds nothing.",
					IsWrite:     true,
					Volatility:  core.VolatilityNone,
					Schema: objectSchema([]any{"episodeIds"}, map[string]any{
						"episodeIds": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.SearchEpisodes(ctx, intSliceArg(args, "episodeIds"))
				},
			},
			{
				tool.Declaration{
					Name:        "sonarr_quality_profiles",
					Family:      FamilySeries,
					Description: "List the quality profiles the series manager offers.",
					Volatility:  core.VolatilityMedium,
					Schema:      objectSchema(nil, map[string]any{}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.QualityProfiles(ctx)
				},
			},
			{
				tool.Declaration{
					Name:        "sonarr_queue",
					Family:      FamilySeries,
					Description: "Show the current series download queue.",
					Volatility:  core.VolatilityShort,
					Schema:      objectSchema(nil, map[string]any{}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return mgr.Queue(ctx)
				},
			},
		}
		for _, d := range decls {
			if err := reg.Register(d.decl, d.handler); err != nil {
				return err
			}
		}
		return nil
	}
}

func prefsTools(prefs Preferences) func(*tool.Registry) error {
	return func(reg *tool.Registry) error {
		decls := []struct {
			decl    tool.Declaration
			handler tool.Handler
		}{
			{
				tool.Declaration{
					Name:        "get_preferences",
					Family:      FamilyPrefs,
					Description: "Read the household viewing preferences.",
					Volatility:  core.VolatilityNone,
					Schema:      objectSchema(nil, map[string]any{}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					return prefs.Get(ctx)
				},
			},
			{
				tool.Declaration{
					Name:        "set_preference",
					Family:      FamilyPrefs,
					Description: "Store one household viewing preference.",
					IsWrite:     true,
					Volatility:  core.VolatilityNone,
					Schema: objectSchema([]any{"key", "value"}, map[string]any{
						"key":   map[string]any{"type": "string"},
						"value": map[string]any{},
					}),
				},
				func(ctx context.Context, args map[string]any) (any, error) {
					if err := prefs.Set(ctx, strArg(args, "key"), args["value"]); err != nil {
						return nil, err
					}
					return map[string]any{"saved": true}, nil
				},
			},
		}
		for _, d := range decls {
			if err := reg.Register(d.decl, d.handler); err != nil {
				return err
			}
		}
		return nil
	}
}

func cacheTools(refs *cache.RefStore) func(*tool.Registry) error {
	return func(reg *tool.Registry) error {
		decl := tool.Declaration{
			Name:        "fetch_cached_result",
			Family:      FamilyCache,
			Description: "Page through an earlier truncated result by its result_ref, optionally projecting specific fields.",
			Volatility:  core.VolatilityNone,
			Schema: objectSchema([]any{"result_ref"}, map[string]any{
				"result_ref": map[string]any{"type": "string"},
				"offset":     map[string]any{"type": "integer", "minimum": 0},
				"limit":      map[string]any{"type": "integer", "minimum": 1},
				"fields":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}),
		}
		handler := func(ctx context.Context, args map[string]any) (any, error) {
			var fields []string
			if raw, ok := args["fields"].([]any); ok {
				for _, f := range raw {
					if s, ok := f.(string); ok {
						fields = append(fields, s)
					}
				}
			}
			items, total, err := refs.Fetch(strArg(args, "result_ref"), intArg(args, "offset"), intArg(args, "limit"), fields)
			if err != nil {
				return nil, &core.ValidationError{Tool: "fetch_cached_result", Detail: err.Error()}
			}
			return map[string]any{"items": items, "total": total}, nil
		}
		return reg.Register(decl, handler)
	}
}
