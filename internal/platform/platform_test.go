package platform

import (
	"context"
	"strings"
	"testing"
)

const redditListingJSON = `{
  "data": {
    "children": [
      {
        "kind": "t3",
        "data": {
          "id": "abc1",
          "title": "Giant spiders found downtown",
          "selftext": "A nest appeared near the market",
          "subreddit": "news",
          "created_utc": 1700000000,
          "preview": {
            "images": [
              {"source": {"url": "https://preview.redd.it/a.jpg?width=640&amp;format=pjpg"}}
            ]
          }
        }
      },
      {
        "kind": "t3",
        "data": {
          "id": "abc2",
          "title": "Link post",
          "url": "https://i.redd.it/photo.png",
          "created_utc": 1700000100
        }
      },
      {
        "kind": "t3",
        "data": {
          "id": "ad99",
          "title": "Buy things",
          "promoted": true
        }
      }
    ]
  }
}`

func TestRedditAdapterParse(t *testing.T) {
	adapter := NewRedditAdapter()
	posts, err := adapter.Parse(context.Background(), []byte(redditListingJSON))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2 (ads skipped)", len(posts))
	}

	first := posts[0]
	if first.ID != "abc1" || first.Platform != "reddit" {
		t.Errorf("post identity wrong: %+v", first)
	}
	if first.Title == nil || *first.Title != "Giant spiders found downtown" {
		t.Errorf("Title = %v", first.Title)
	}
	if first.Body == nil || *first.Body != "A nest appeared near the market" {
		t.Errorf("Body = %v", first.Body)
	}
	if len(first.MediaURLs) != 1 || strings.Contains(first.MediaURLs[0], "&amp;") {
		t.Errorf("MediaURLs = %v, want unescaped preview URL", first.MediaURLs)
	}
	if first.Metadata["subreddit"] != "news" {
		t.Errorf("Metadata = %v", first.Metadata)
	}

	second := posts[1]
	if len(second.MediaURLs) != 1 || second.MediaURLs[0] != "https://i.redd.it/photo.png" {
		t.Errorf("link post media = %v", second.MediaURLs)
	}
	if second.Body != nil {
		t.Errorf("link post should have no body, got %q", *second.Body)
	}
}

func TestRedditAdapterBadJSON(t *testing.T) {
	adapter := NewRedditAdapter()
	if _, err := adapter.Parse(context.Background(), []byte("<html>")); err == nil {
		t.Error("Parse() should reject non-JSON input")
	}
}

const htmlFeed = `<html><body>
<article id="post-1">
  <h2>Spider invasion continues</h2>
  <p>Residents report webs on <b>every</b> porch.</p>
  <img src="https://img.example/webs.jpg">
</article>
<article id="post-2">
  <p>Quiet day otherwise.</p>
</article>
<article id="empty"></article>
</body></html>`

func TestHTMLAdapterParse(t *testing.T) {
	adapter := NewHTMLAdapter("generic", "")
	posts, err := adapter.Parse(context.Background(), []byte(htmlFeed))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2 (empty element dropped)", len(posts))
	}

	first := posts[0]
	if first.ID != "post-1" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.Title == nil || *first.Title != "Spider invasion continues" {
		t.Errorf("Title = %v", first.Title)
	}
	if first.Body == nil || !strings.Contains(*first.Body, "every") {
		t.Errorf("Body = %v", first.Body)
	}
	if first.Title != nil && first.Body != nil && strings.Contains(*first.Body, *first.Title) {
		t.Errorf("title duplicated in body: %q", *first.Body)
	}
	if len(first.MediaURLs) != 1 || first.MediaURLs[0] != "https://img.example/webs.jpg" {
		t.Errorf("MediaURLs = %v", first.MediaURLs)
	}

	second := posts[1]
	if second.Title != nil {
		t.Errorf("second post should have no title, got %v", second.Title)
	}
	if second.Body == nil || !strings.Contains(*second.Body, "Quiet day") {
		t.Errorf("second Body = %v", second.Body)
	}
}

func TestHTMLAdapterPreservesDocumentOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range []string{"one", "two", "three", "four", "five"} {
		b.WriteString(`<article id="` + id + `"><p>content ` + id + `</p></article>`)
	}
	b.WriteString("</body></html>")

	adapter := NewHTMLAdapter("generic", "article")
	posts, err := adapter.Parse(context.Background(), []byte(b.String()))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	want := []string{"one", "two", "three", "four", "five"}
	if len(posts) != len(want) {
		t.Fatalf("got %d posts, want %d", len(posts), len(want))
	}
	for i, post := range posts {
		if post.ID != want[i] {
			t.Errorf("posts[%d].ID = %q, want %q", i, post.ID, want[i])
		}
	}
}
