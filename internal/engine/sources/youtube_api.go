package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

const ytDataAPIBase = "https://www.googleapis.com/youtube/v3"

// DataAPI is the YouTube Data API v3 connector. A search costs one search.list
// page per 50 hits plus one videos.list call per 50 ids for statistics and
// durations, which search.list does not return.
type DataAPI struct {
	keys    []string
	base    string
	client  *http.Client
	backoff engine.Backoff
}

// NewDataAPI returns a connector that rotates to the next key when one is
// rejected (quota exhausted or revoked). Empty keys are ignored.
func NewDataAPI(client *http.Client, keys ...string) *DataAPI {
	if client == nil {
		client = http.DefaultClient
	}
	a := &DataAPI{base: ytDataAPIBase, client: client, backoff: engine.DefaultBackoff}
	for _, k := range keys {
		if k != "" {
			a.keys = append(a.keys, k)
		}
	}
	return a
}

type ytThumbs struct {
	High    *struct{ URL string } `json:"high"`
	Default *struct{ URL string } `json:"default"`
}

func (t ytThumbs) best() string {
	if t.High != nil {
		return t.High.URL
	}
	if t.Default != nil {
		return t.Default.URL
	}
	return ""
}

type ytSnippet struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ChannelTitle string   `json:"channelTitle"`
	PublishedAt  string   `json:"publishedAt"`
	Tags         []string `json:"tags"`
	Thumbnails   ytThumbs `json:"thumbnails"`
}

type ytSearchResp struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet ytSnippet `json:"snippet"`
	} `json:"items"`
}

type ytVideosResp struct {
	Items []ytVideoItem `json:"items"`
}

type ytVideoItem struct {
	ID         string    `json:"id"`
	Snippet    ytSnippet `json:"snippet"`
	Statistics struct {
		ViewCount string `json:"viewCount"`
		LikeCount string `json:"likeCount"`
	} `json:"statistics"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

func (it ytVideoItem) details() engine.RawVideoDetails {
	views, _ := strconv.ParseInt(it.Statistics.ViewCount, 10, 64)
	likes, _ := strconv.ParseInt(it.Statistics.LikeCount, 10, 64)
	published, _ := time.Parse(time.RFC3339, it.Snippet.PublishedAt)
	return engine.RawVideoDetails{
		Description:     it.Snippet.Description,
		PublishedAt:     published,
		Tags:            it.Snippet.Tags,
		DurationSeconds: ParseISODuration(it.ContentDetails.Duration),
		ViewCount:       views,
		LikeCount:       likes,
	}
}

// Search returns up to limit videos for query, enriched with statistics.
func (a *DataAPI) Search(ctx context.Context, query string, limit int) ([]engine.RawVideo, error) {
	if limit <= 0 {
		limit = engine.DefaultMaxResultsPerTerm
	}
	engine.IncrSourceSearches()

	var (
		videos []engine.RawVideo
		token  string
	)
	for len(videos) < limit {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("q", query)
		params.Set("type", "video")
		params.Set("relevanceLanguage", "en")
		params.Set("maxResults", strconv.Itoa(min(50, limit-len(videos))))
		if token != "" {
			params.Set("pageToken", token)
		}
		var page ytSearchResp
		if err := a.get(ctx, "search", params, &page); err != nil {
			engine.IncrSourceErrors()
			return nil, err
		}
		for _, it := range page.Items {
			if it.ID.VideoID == "" {
				continue
			}
			published, _ := time.Parse(time.RFC3339, it.Snippet.PublishedAt)
			videos = append(videos, engine.RawVideo{
				ExternalID:   it.ID.VideoID,
				Title:        engine.CleanHTML(it.Snippet.Title),
				Description:  engine.CleanHTML(it.Snippet.Description),
				Channel:      it.Snippet.ChannelTitle,
				PublishedAt:  published,
				ThumbnailURL: it.Snippet.Thumbnails.best(),
				URL:          watchURL(it.ID.VideoID),
			})
		}
		token = page.NextPageToken
		if token == "" || len(page.Items) == 0 {
			break
		}
	}
	if len(videos) > limit {
		videos = videos[:limit]
	}

	if err := a.enrich(ctx, videos); err != nil {
		// Statistics are best effort; the search hits are still usable.
		slog.Warn("youtube videos.list failed", slog.String("query", query), slog.Any("error", err))
	}
	return videos, nil
}

// enrich fills statistics, duration, tags and full descriptions in batches of 50.
func (a *DataAPI) enrich(ctx context.Context, videos []engine.RawVideo) error {
	index := make(map[string]int, len(videos))
	for i, v := range videos {
		index[v.ExternalID] = i
	}
	for start := 0; start < len(videos); start += 50 {
		end := min(start+50, len(videos))
		ids := make([]string, 0, end-start)
		for _, v := range videos[start:end] {
			ids = append(ids, v.ExternalID)
		}
		items, err := a.list(ctx, ids)
		if err != nil {
			return err
		}
		for _, it := range items {
			if i, ok := index[it.ID]; ok {
				videos[i].Merge(it.details())
			}
		}
	}
	return nil
}

// FetchDetails loads one video's second-phase fields.
func (a *DataAPI) FetchDetails(ctx context.Context, id string) (engine.RawVideoDetails, error) {
	items, err := a.list(ctx, []string{id})
	if err != nil {
		return engine.RawVideoDetails{}, err
	}
	if len(items) == 0 {
		return engine.RawVideoDetails{}, engine.NotFoundf("youtube video %s", id)
	}
	return items[0].details(), nil
}

func (a *DataAPI) list(ctx context.Context, ids []string) ([]ytVideoItem, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("id", strings.Join(ids, ","))
	var resp ytVideosResp
	if err := a.get(ctx, "videos", params, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// get calls one API endpoint, moving to the next key on 403 (quota) and
// reporting the source as unavailable once every key is rejected.
func (a *DataAPI) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if len(a.keys) == 0 {
		return unavailable("youtube data api", errors.New("no API key configured"))
	}
	var lastErr error
	for i, key := range a.keys {
		params.Set("key", key)
		u := a.base + "/" + endpoint + "?" + params.Encode()
		body, err := engine.FetchBody(ctx, a.client, a.backoff, 8<<20, func() (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", engine.UserAgentBot)
			req.Header.Set("Accept", "application/json")
			return req, nil
		})
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode youtube %s: %w", endpoint, err)
			}
			return nil
		}
		lastErr = err
		var se *engine.StatusError
		if errors.As(err, &se) && se.Code == http.StatusForbidden {
			slog.Debug("youtube API key rejected, rotating", slog.Int("key", i+1), slog.Int("keys", len(a.keys)))
			continue
		}
		if errors.As(err, &se) && !engine.Transient(err) {
			return fmt.Errorf("youtube %s: %w", endpoint, err)
		}
		return unavailable("youtube data api", err)
	}
	return unavailable("youtube data api", fmt.Errorf("all %d API keys rejected: %w", len(a.keys), lastErr))
}
