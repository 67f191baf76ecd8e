package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

const (
	ytResultsURL        = "https://www.youtube.com/results"
	ytPlayerURL         = "https://www.youtube.com/youtubei/v1/player"
	ytInitialDataMarker = "var ytInitialData = "
	ytSearchFilter      = "EgIQAQ%3D%3D" // videos only
	ytAndroidVersion    = "20.10.38"
	ytAndroidUA         = "com.google.android.youtube/" + ytAndroidVersion + " (Linux; U; Android 11) gzip"
)

// PageScraper searches by parsing ytInitialData out of the results page and
// fetches details through the Innertube player endpoint. It needs no API key;
// a page returns roughly twenty hits, so large per-term limits are not reached.
type PageScraper struct {
	browser    *engine.BrowserClient
	client     *http.Client
	resultsURL string
	playerURL  string
	backoff    engine.Backoff
	now        func() time.Time
}

// NewPageScraper prefers the fingerprinted browser client when one is given.
func NewPageScraper(browser *engine.BrowserClient, client *http.Client) *PageScraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &PageScraper{
		browser:    browser,
		client:     client,
		resultsURL: ytResultsURL,
		playerURL:  ytPlayerURL,
		backoff:    engine.DefaultBackoff,
		now:        time.Now,
	}
}

type ytText struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (t ytText) String() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

type ytVideoRenderer struct {
	VideoID            string  `json:"videoId"`
	Title              ytText  `json:"title"`
	OwnerText          ytText  `json:"ownerText"`
	DescriptionSnippet *ytText `json:"descriptionSnippet"`
	DetailedSnippets   []struct {
		SnippetText ytText `json:"snippetText"`
	} `json:"detailedMetadataSnippets"`
	ViewCountText     ytText `json:"viewCountText"`
	LengthText        ytText `json:"lengthText"`
	PublishedTimeText ytText `json:"publishedTimeText"`
	Thumbnail         struct {
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"thumbnail"`
}

func (r ytVideoRenderer) raw(now time.Time) engine.RawVideo {
	desc := ""
	if r.DescriptionSnippet != nil {
		desc = r.DescriptionSnippet.String()
	} else if len(r.DetailedSnippets) > 0 {
		desc = r.DetailedSnippets[0].SnippetText.String()
	}
	thumb := thumbnailURL(r.VideoID)
	if n := len(r.Thumbnail.Thumbnails); n > 0 {
		thumb = r.Thumbnail.Thumbnails[n-1].URL
	}
	return engine.RawVideo{
		ExternalID:      r.VideoID,
		Title:           r.Title.String(),
		Description:     desc,
		Channel:         r.OwnerText.String(),
		ViewCount:       parseCount(r.ViewCountText.String()),
		DurationSeconds: parseClock(r.LengthText.String()),
		PublishedAt:     parseRelativeTime(r.PublishedTimeText.String(), now),
		ThumbnailURL:    thumb,
		URL:             watchURL(r.VideoID),
	}
}

// Search scrapes one results page for query.
func (p *PageScraper) Search(ctx context.Context, query string, limit int) ([]engine.RawVideo, error) {
	if limit <= 0 {
		limit = engine.DefaultMaxResultsPerTerm
	}
	engine.IncrSourceSearches()
	u := p.resultsURL + "?search_query=" + url.QueryEscape(query) + "&sp=" + ytSearchFilter
	headers := engine.ChromeHeaders()
	headers["accept-language"] = "en-US,en;q=0.9"
	body, err := p.fetch(ctx, http.MethodGet, u, headers, nil)
	if err != nil {
		engine.IncrSourceErrors()
		return nil, unavailable("youtube page", err)
	}
	idx := bytes.Index(body, []byte(ytInitialDataMarker))
	if idx < 0 {
		engine.IncrSourceErrors()
		return nil, unavailable("youtube page", errors.New("ytInitialData not found in results page"))
	}
	data := extractJSON(body[idx+len(ytInitialDataMarker):])
	if data == nil {
		engine.IncrSourceErrors()
		return nil, unavailable("youtube page", errors.New("unterminated ytInitialData object"))
	}
	return collectRenderers(data, limit, p.now()), nil
}

// extractJSON returns the JSON object starting at b[0] by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr, escaped := false, false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

// collectRenderers walks ytInitialData depth-first and converts every
// videoRenderer found, in page order, up to limit. Duplicates are dropped.
func collectRenderers(data []byte, limit int, now time.Time) []engine.RawVideo {
	var out []engine.RawVideo
	seen := map[string]bool{}
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if len(out) >= limit || len(v) == 0 {
			return
		}
		switch v[0] {
		case '{':
			var obj map[string]json.RawMessage
			if json.Unmarshal(v, &obj) != nil {
				return
			}
			if raw, ok := obj["videoRenderer"]; ok {
				var r ytVideoRenderer
				if json.Unmarshal(raw, &r) == nil && r.VideoID != "" && !seen[r.VideoID] {
					seen[r.VideoID] = true
					out = append(out, r.raw(now))
				}
				return
			}
			// Map iteration order is random; walk the known container keys first
			// so results keep the page order.
			for _, k := range []string{"contents", "twoColumnSearchResultsRenderer", "primaryContents",
				"sectionListRenderer", "itemSectionRenderer"} {
				if child, ok := obj[k]; ok {
					walk(child)
					delete(obj, k)
				}
			}
			for _, child := range obj {
				walk(child)
			}
		case '[':
			var arr []json.RawMessage
			if json.Unmarshal(v, &arr) != nil {
				return
			}
			for _, item := range arr {
				walk(item)
			}
		}
	}
	walk(data)
	return out
}

// --- Innertube player (details) ---

type innertubeReq struct {
	VideoID        string       `json:"videoId"`
	Context        innertubeCtx `json:"context"`
	RacyCheckOk    bool         `json:"racyCheckOk"`
	ContentCheckOk bool         `json:"contentCheckOk"`
}

type innertubeCtx struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type playerResp struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails *struct {
		VideoID          string   `json:"videoId"`
		LengthSeconds    string   `json:"lengthSeconds"`
		Keywords         []string `json:"keywords"`
		ShortDescription string   `json:"shortDescription"`
		ViewCount        string   `json:"viewCount"`
	} `json:"videoDetails"`
	Microformat *struct {
		Renderer struct {
			PublishDate string `json:"publishDate"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`
}

// FetchDetails asks the Innertube player for description, keywords, length and publish date.
func (p *PageScraper) FetchDetails(ctx context.Context, id string) (engine.RawVideoDetails, error) {
	payload, err := json.Marshal(innertubeReq{
		VideoID: id,
		Context: innertubeCtx{Client: innertubeClient{
			ClientName: "ANDROID", ClientVersion: ytAndroidVersion, AndroidSdkVersion: 30, Hl: "en", Gl: "US",
		}},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return engine.RawVideoDetails{}, err
	}
	headers := map[string]string{
		"content-type": "application/json",
		"user-agent":   ytAndroidUA,
	}
	body, err := p.fetch(ctx, http.MethodPost, p.playerURL+"?prettyPrint=false", headers, payload)
	if err != nil {
		return engine.RawVideoDetails{}, fmt.Errorf("innertube player %s: %w", id, err)
	}
	var resp playerResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return engine.RawVideoDetails{}, fmt.Errorf("decode innertube player: %w", err)
	}
	if resp.VideoDetails == nil {
		reason := "no videoDetails"
		if resp.PlayabilityStatus != nil && resp.PlayabilityStatus.Reason != "" {
			reason = resp.PlayabilityStatus.Reason
		}
		return engine.RawVideoDetails{}, fmt.Errorf("innertube player %s: %s", id, reason)
	}
	vd := resp.VideoDetails
	length, _ := strconv.Atoi(vd.LengthSeconds)
	views, _ := strconv.ParseInt(vd.ViewCount, 10, 64)
	d := engine.RawVideoDetails{
		Description:     vd.ShortDescription,
		Tags:            vd.Keywords,
		DurationSeconds: length,
		ViewCount:       views,
	}
	if resp.Microformat != nil {
		d.PublishedAt = parsePublishDate(resp.Microformat.Renderer.PublishDate)
	}
	return d, nil
}

func parsePublishDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// fetch goes through the browser client when configured, otherwise plain HTTP.
func (p *PageScraper) fetch(ctx context.Context, method, u string, headers map[string]string, body []byte) ([]byte, error) {
	if p.browser != nil {
		return engine.Retry(ctx, p.backoff, func() ([]byte, error) {
			data, _, status, err := p.browser.Do(method, u, headers, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			if status != http.StatusOK {
				return nil, &engine.StatusError{Code: status}
			}
			return data, nil
		})
	}
	return engine.FetchBody(ctx, p.client, p.backoff, 4<<20, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", engine.RandomUserAgent())
		}
		return req, nil
	})
}
