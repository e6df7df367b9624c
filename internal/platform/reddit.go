package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/feedveil/feedveil/internal/pipeline"
)

// RedditAdapter parses the JSON listing shape Reddit serves for feeds.
type RedditAdapter struct{}

// NewRedditAdapter creates a Reddit feed adapter.
func NewRedditAdapter() *RedditAdapter {
	return &RedditAdapter{}
}

func (a *RedditAdapter) Platform() string { return "reddit" }

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditItem `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	URL        string  `json:"url"`
	CreatedUTC float64 `json:"created_utc"`
	Promoted   bool    `json:"promoted"`
	Subreddit  string  `json:"subreddit"`
	Preview    struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

// Parse extracts posts from a Reddit listing. Promoted items are skipped;
// they are ads, not content.
func (a *RedditAdapter) Parse(ctx context.Context, raw []byte) ([]pipeline.Post, error) {
	var listing redditListing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, fmt.Errorf("parsing reddit listing: %w", err)
	}

	posts := make([]pipeline.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		item := child.Data
		if item.Promoted || item.ID == "" {
			continue
		}
		posts = append(posts, a.toPost(item))
	}
	return posts, nil
}

func (a *RedditAdapter) toPost(item redditItem) pipeline.Post {
	post := pipeline.Post{
		ID:        item.ID,
		Platform:  a.Platform(),
		CreatedAt: time.Unix(int64(item.CreatedUTC), 0).UTC(),
		Metadata:  map[string]any{"subreddit": item.Subreddit},
	}
	if item.Title != "" {
		title := item.Title
		post.Title = &title
	}
	if item.Selftext != "" {
		body := item.Selftext
		post.Body = &body
	}

	for _, image := range item.Preview.Images {
		if image.Source.URL != "" {
			// Listing JSON entity-escapes preview URLs.
			post.MediaURLs = append(post.MediaURLs, html.UnescapeString(image.Source.URL))
		}
	}
	if len(post.MediaURLs) == 0 && isImageURL(item.URL) {
		post.MediaURLs = append(post.MediaURLs, item.URL)
	}
	return post
}

func isImageURL(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return strings.Contains(lower, "preview.redd.it") || strings.Contains(lower, "i.redd.it")
}
