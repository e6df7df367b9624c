package platform

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/feedveil/feedveil/internal/pipeline"
)

// HTMLAdapter extracts posts from generic article-shaped HTML feeds. Each
// item's heading becomes the title and the remaining markup is normalized to
// markdown for the body.
type HTMLAdapter struct {
	platform  string
	selector  string
	converter *md.Converter
}

// NewHTMLAdapter creates an adapter for the given platform name. selector
// picks the per-post elements; empty means "article".
func NewHTMLAdapter(platform, selector string) *HTMLAdapter {
	if selector == "" {
		selector = "article"
	}
	return &HTMLAdapter{
		platform:  platform,
		selector:  selector,
		converter: md.NewConverter("", true, nil),
	}
}

func (a *HTMLAdapter) Platform() string { return a.platform }

// Parse extracts one post per matched element. Element parsing is CPU bound,
// so items fan out across the host's processors.
func (a *HTMLAdapter) Parse(ctx context.Context, raw []byte) ([]pipeline.Post, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML document: %w", err)
	}

	items := doc.Find(a.selector)
	posts := make([]pipeline.Post, items.Length())

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	items.Each(func(i int, sel *goquery.Selection) {
		g.Go(func() error {
			post, err := a.toPost(i, sel)
			if err != nil {
				return err
			}
			posts[i] = post
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Drop elements that yielded no content.
	out := posts[:0]
	for _, post := range posts {
		if post.ID != "" {
			out = append(out, post)
		}
	}
	return out, nil
}

func (a *HTMLAdapter) toPost(index int, sel *goquery.Selection) (pipeline.Post, error) {
	title := strings.TrimSpace(sel.Find("h1, h2, h3").First().Text())

	bodyHTML, err := sel.Html()
	if err != nil {
		return pipeline.Post{}, fmt.Errorf("reading element markup: %w", err)
	}
	body, err := a.converter.ConvertString(bodyHTML)
	if err != nil {
		return pipeline.Post{}, fmt.Errorf("converting element to markdown: %w", err)
	}
	if title != "" {
		// The heading already became the title; keep it out of the body.
		body = strings.TrimSpace(strings.Replace(body, title, "", 1))
	}
	body = strings.TrimSpace(strings.TrimLeft(body, "#= \n"))

	if title == "" && body == "" {
		return pipeline.Post{}, nil
	}

	id, ok := sel.Attr("id")
	if !ok || id == "" {
		id = fmt.Sprintf("%s-%d", a.platform, index)
	}

	post := pipeline.Post{
		ID:        id,
		Platform:  a.platform,
		CreatedAt: time.Now().UTC(),
	}
	if title != "" {
		post.Title = &title
	}
	if body != "" {
		post.Body = &body
	}

	sel.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			post.MediaURLs = append(post.MediaURLs, src)
		}
	})
	return post, nil
}
