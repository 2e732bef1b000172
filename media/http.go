package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/couchpilot/couchpilot/config"
	"github.com/couchpilot/couchpilot/core"
)

// apiClient is a thin JSON-over-HTTP helper shared by the upstream clients.
// Timeouts and retries live in the executor, so requests here run with the
// caller's context only.
type apiClient struct {
	baseURL  string
	headers  map[string]string
	provider string
	http     *http.Client
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *apiClient) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *apiClient) put(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &core.ProviderError{Provider: c.provider, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &core.ProviderError{Provider: c.provider, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &core.ProviderError{Provider: c.provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &core.ProviderError{
			Provider: c.provider,
			Err:      fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.ProviderError{Provider: c.provider, Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return nil
}

// PlexClient implements Library over the Plex HTTP API.
type PlexClient struct {
	api apiClient
}

// NewPlexClient builds a Library client from settings.
func NewPlexClient(settings config.Settings, httpClient *http.Client) *PlexClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PlexClient{api: apiClient{
		baseURL:  settings.PlexBaseURL,
		headers:  map[string]string{"X-Plex-Token": settings.PlexToken},
		provider: "plex",
		http:     httpClient,
	}}
}

// mediaContainer is the envelope Plex wraps every payload in.
type mediaContainer struct {
	MediaContainer struct {
		Metadata []any `json:"Metadata"`
	} `json:"MediaContainer"`
}

func (c *PlexClient) Search(ctx context.Context, query string, limit int) ([]any, error) {
	q := url.Values{"query": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out mediaContainer
	if err := c.api.get(ctx, "/search", q, &out); err != nil {
		return nil, err
	}
	return out.MediaContainer.Metadata, nil
}

func (c *PlexClient) OnDeck(ctx context.Context) ([]any, error) {
	var out mediaContainer
	if err := c.api.get(ctx, "/library/onDeck", nil, &out); err != nil {
		return nil, err
	}
	return out.MediaContainer.Metadata, nil
}

func (c *PlexClient) RecentlyAdded(ctx context.Context, kind string) ([]any, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("type", kind)
	}
	var out mediaContainer
	if err := c.api.get(ctx, "/library/recentlyAdded", q, &out); err != nil {
		return nil, err
	}
	return out.MediaContainer.Metadata, nil
}

func (c *PlexClient) Sessions(ctx context.Context) ([]any, error) {
	var out mediaContainer
	if err := c.api.get(ctx, "/status/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.MediaContainer.Metadata, nil
}

func (c *PlexClient) SetRating(ctx context.Context, ratingKey string, rating float64) error {
	q := url.Values{
		"key":        {ratingKey},
		"identifier": {"com.plexapp.plugins.library"},
		"rating":     {strconv.FormatFloat(rating, 'f', -1, 64)},
	}
	return c.api.do(ctx, http.MethodPut, "/:/rate", q, nil, nil)
}

// TMDBClient implements Catalog over the TMDb v3 API.
type TMDBClient struct {
	api    apiClient
	apiKey string
}

// NewTMDBClient builds a Catalog client from settings.
func NewTMDBClient(settings config.Settings, httpClient *http.Client) *TMDBClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TMDBClient{
		api: apiClient{
			baseURL:  "https://api.themoviedb.org/3",
			provider: "tmdb",
			http:     httpClient,
		},
		apiKey: settings.TMDBAPIKey,
	}
}

// tmdbPage is the results envelope of TMDb list endpoints.
type tmdbPage struct {
	Results []any `json:"results"`
}

func (c *TMDBClient) query(extra url.Values) url.Values {
	q := url.Values{"api_key": {c.apiKey}}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return q
}

func (c *TMDBClient) SearchMovies(ctx context.Context, query string, year int) ([]any, error) {
	extra := url.Values{"query": {query}}
	if year > 0 {
		extra.Set("year", strconv.Itoa(year))
	}
	var out tmdbPage
	if err := c.api.get(ctx, "/search/movie", c.query(extra), &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *TMDBClient) SearchSeries(ctx context.Context, query string) ([]any, error) {
	var out tmdbPage
	if err := c.api.get(ctx, "/search/tv", c.query(url.Values{"query": {query}}), &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *TMDBClient) Trending(ctx context.Context, mediaType string) ([]any, error) {
	if mediaType == "" {
		mediaType = "all"
	}
	var out tmdbPage
	if err := c.api.get(ctx, "/trending/"+mediaType+"/week", c.query(nil), &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *TMDBClient) Details(ctx context.Context, mediaType string, id int) (map[string]any, error) {
	var out map[string]any
	if err := c.api.get(ctx, "/"+mediaType+"/"+strconv.Itoa(id), c.query(nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RadarrClient implements MovieManager over the Radarr v3 API.
type RadarrClient struct {
	api apiClient
}

// NewRadarrClient builds a MovieManager client from settings.
func NewRadarrClient(settings config.Settings, httpClient *http.Client) *RadarrClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RadarrClient{api: apiClient{
		baseURL:  settings.RadarrBaseURL + "/api/v3",
		headers:  map[string]string{"X-Api-Key": settings.RadarrAPIKey},
		provider: "radarr",
		http:     httpClient,
	}}
}

func (c *RadarrClient) Movies(ctx context.Context) ([]any, error) {
	var out []any
	if err := c.api.get(ctx, "/movie", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RadarrClient) Lookup(ctx context.Context, term string) ([]any, error) {
	var out []any
	if err := c.api.get(ctx, "/movie/lookup", url.Values{"term": {term}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RadarrClient) Add(ctx context.Context, tmdbID int, qualityProfile string) (map[string]any, error) {
	body := map[string]any{
		"tmdbId":              tmdbID,
		"qualityProfile":      qualityProfile,
		"monitored":           true,
		"addOptions":          map[string]any{"searchForMovie": true},
		"minimumAvailability": "released",
	}
	var out map[string]any
	if err := c.api.post(ctx, "/movie", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RadarrClient) Queue(ctx context.Context) ([]any, error) {
	var out struct {
		Records []any `json:"records"`
	}
	if err := c.api.get(ctx, "/queue", nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// SonarrClient implements SeriesManager over the Sonarr v3 API.
type SonarrClient struct {
	api apiClient
}

// NewSonarrClient builds a SeriesManager client from settings.
func NewSonarrClient(settings config.Settings, httpClient *http.Client) *SonarrClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SonarrClient{api: apiClient{
		baseURL:  settings.SonarrBaseURL + "/api/v3",
		headers:  map[string]string{"X-Api-Key": settings.SonarrAPIKey},
		provider: "sonarr",
		http:     httpClient,
	}}
}

func (c *SonarrClient) Series(ctx context.Context) ([]any, error) {
	var out []any
	if err := c.api.get(ctx, "/series", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SonarrClient) Lookup(ctx context.Context, term string) ([]any, error) {
	var out []any
	if err := c.api.get(ctx, "/series/lookup", url.Values{"term": {term}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SonarrClient) Add(ctx context.Context, tvdbID int, qualityProfile string) (map[string]any, error) {
	body := map[string]any{
		"tvdbId":         tvdbID,
		"qualityProfile": qualityProfile,
		"monitored":      true,
		"addOptions":     map[string]any{"searchForMissingEpisodes": true},
	}
	var out map[string]any
	if err := c.api.post(ctx, "/series", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SonarrClient) UpdateSeries(ctx context.Context, seriesID int, fields map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.api.put(ctx, "/series/"+strconv.Itoa(seriesID), fields, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SonarrClient) Episodes(ctx context.Context, seriesID int) ([]any, error) {
	var out []any
	if err := c.api.get(ctx, "/episode", url.Values{"seriesId": {strconv.Itoa(seriesID)}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SonarrClient) MonitorEpisodes(ctx context.Context, episodeIDs []int, monitored bool) error {
	body := map[string]any{"episodeIds": episodeIDs, "monitored": monitored}
	return c.api.put(ctx, "/episode/monitor", body, nil)
}

func (c *SonarrClient) SearchSeason(ctx context.Context, seriesID, season int) (map[string]any, error) {
	body := map[string]any{
		"name":         "SeasonSearch",
		"seriesId":     seriesID,
		"seasonNumber": season,
	}
	var out map[string]any
	if err := c.api.post(ctx, "/command", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SonarrClient) SearchEpisodes(ctx context.Context, episodeIDs []int) (map[string]any, error) {
	body := map[string]any{
		"name":       "EpisodeSearch",
		"episodeIds": episodeIDs,
	}
	var out map[string]any
	if err := c.api.post(ctx, "/command", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SonarrClient) QualityProfiles(ctx context.Context) ([]any, error) {
	var out []any
	if err := c.api.get(ctx, "/qualityprofile", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SonarrClient) Queue(ctx context.Context) ([]any, error) {
	var out struct {
		Records []any `json:"records"`
	}
	if err := c.api.get(ctx, "/queue", nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}
