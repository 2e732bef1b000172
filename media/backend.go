// Package media declares the household media toolset the engine exposes to
// models: library lookups, catalog search, movie and series management,
// viewer preferences and paging through earlier oversized results. Each
// tool family fronts one upstream service, which keeps circuit breaking and
// concurrency limits aligned with real failure domains.
package media

import "context"

// Library is the media-server upstream (Plex).
type Library interface {
	Search(ctx context.Context, query string, limit int) ([]any, error)
	OnDeck(ctx context.Context) ([]any, error)
	RecentlyAdded(ctx context.Context, kind string) ([]any, error)
	Sessions(ctx context.Context) ([]any, error)
	SetRating(ctx context.Context, ratingKey string, rating float64) error
}

// Catalog is the public metadata upstream (TMDb).
type Catalog interface {
	SearchMovies(ctx context.Context, query string, year int) ([]any, error)
	SearchSeries(ctx context.Context, query string) ([]any, error)
	Trending(ctx context.Context, mediaType string) ([]any, error)
	Details(ctx context.Context, mediaType string, id int) (map[string]any, error)
}

// MovieManager is the movie acquisition upstream (Radarr).
type MovieManager interface {
	Movies(ctx context.Context) ([]any, error)
	Lookup(ctx context.Context, term string) ([]any, error)
	Add(ctx context.Context, tmdbID int, qualityProfile string) (map[string]any, error)
	Queue(ctx context.Context) ([]any, error)
}

// SeriesManager is the series acquisition upstream (Sonarr).
type SeriesManager interface {
	Series(ctx context.Context) ([]any, error)
	Lookup(ctx context.Context, term string) ([]any, error)
	Add(ctx context.Context, tvdbID int, qualityProfile string) (map[string]any, error)
	UpdateSeries(ctx context.Context, seriesID int, fields map[string]any) (map[string]any, error)
	Episodes(ctx context.Context, seriesID int) ([]any, error)
	MonitorEpisodes(ctx context.Context, episodeIDs []int, monitored bool) error
	SearchSeason(ctx context.Context, seriesID, season int) (map[string]any, error)
	SearchEpisodes(ctx context.Context, episodeIDs []int) (map[string]any, error)
	QualityProfiles(ctx context.Context) ([]any, error)
	Queue(ctx context.Context) ([]any, error)
}

// Preferences stores per-household viewer preferences.
type Preferences interface {
	Get(ctx context.Context) (map[string]any, error)
	Set(ctx context.Context, key string, value any) error
}

// Backends bundles every upstream the toolset needs. Nil entries are
// allowed; their tools simply are not registered.
type Backends struct {
	Library Library
	Catalog Catalog
	Movies  MovieManager
	Series  SeriesManager
	Prefs   Preferences
}
