package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/feedveil/feedveil/internal/config"
	"github.com/feedveil/feedveil/internal/filter"
	"github.com/feedveil/feedveil/internal/imagepipe"
	"github.com/feedveil/feedveil/internal/llm"
	"github.com/feedveil/feedveil/internal/markup"
)

type fakeFilterStore struct {
	filters []filter.Filter
	err     error
}

func (s *fakeFilterStore) ActiveFilters(ctx context.Context, userID string) ([]filter.Filter, error) {
	return s.filters, s.err
}

type fakePrefStore struct {
	prefs filter.Prefs
	err   error
}

func (s *fakePrefStore) Preferences(ctx context.Context, userID string) (filter.Prefs, error) {
	return s.prefs, s.err
}

// fakeEvaluator matches everything and panics on texts containing poison.
type fakeEvaluator struct {
	poison string
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, text string, filters []filter.Filter) []filter.Filter {
	if e.poison != "" && strings.Contains(text, e.poison) {
		panic("evaluator blew up")
	}
	return filters
}

type fakeTransformer struct {
	mu            sync.Mutex
	lastIntensity int
}

func (t *fakeTransformer) Transform(ctx context.Context, text string, intensity int, filters []filter.Filter) string {
	t.mu.Lock()
	t.lastIntensity = intensity
	t.mu.Unlock()
	return markup.TitleOpen + "processed" + markup.TitleClose + "\n" + markup.BodyOpen + "processed" + markup.BodyClose
}

type fakeImages struct {
	calls []string
}

func (f *fakeImages) ProcessImage(ctx context.Context, imageURL string, filters []filter.Filter, userID string) imagepipe.InterventionResult {
	f.calls = append(f.calls, imageURL)
	return imagepipe.InterventionResult{
		ImageURL: imageURL,
		Type:     imagepipe.InterventionReplace,
		Status:   imagepipe.StatusDeferred,
		Filters:  filter.Texts(filters),
	}
}

func strptr(s string) *string { return &s }

func textPost(id, title, body string) Post {
	return Post{ID: id, Title: strptr(title), Body: strptr(body), Platform: "reddit"}
}

var storeFilters = []filter.Filter{{ID: 1, Text: "spiders", Intensity: 5, ContentType: "all"}}

func staticComponents(e Evaluator, tr Transformer) ComponentsFunc {
	return func(mode string) (Evaluator, Transformer) { return e, tr }
}

func TestProcessFeedOrderAndIsolation(t *testing.T) {
	posts := make([]Post, 10)
	for i := range posts {
		posts[i] = textPost(string(rune('a'+i)), "title", "body text")
	}
	// Post #4 carries the text that makes the evaluator panic.
	posts[3] = textPost("d", "title", "poisoned body")

	evaluator := &fakeEvaluator{poison: "poisoned"}
	transformer := &fakeTransformer{}
	o := NewOrchestrator(&fakeFilterStore{filters: storeFilters}, nil, staticComponents(evaluator, transformer), nil, nil, DefaultLimits(), nil)

	got := o.ProcessFeed(context.Background(), "user-1", posts)

	if len(got) != len(posts) {
		t.Fatalf("feed length changed: %d -> %d", len(posts), len(got))
	}
	for i, post := range got {
		if post.ID != posts[i].ID {
			t.Errorf("post order changed at %d: got %s, want %s", i, post.ID, posts[i].ID)
		}
	}

	if got[3].ProcessedTitle != nil || got[3].ProcessedBody != nil {
		t.Errorf("poisoned post should come back unmodified: %+v", got[3])
	}
	for i, post := range got {
		if i == 3 {
			continue
		}
		if post.ProcessedTitle == nil || *post.ProcessedTitle != "processed" {
			t.Errorf("post %d not processed: %+v", i, post)
		}
	}
}

func TestProcessFeedForcesMaxIntensity(t *testing.T) {
	transformer := &fakeTransformer{}
	o := NewOrchestrator(&fakeFilterStore{filters: storeFilters}, nil, staticComponents(&fakeEvaluator{}, transformer), nil, nil, DefaultLimits(), nil)

	o.ProcessFeed(context.Background(), "user-1", []Post{textPost("a", "t", "b")})

	if transformer.lastIntensity != 5 {
		t.Errorf("transform intensity = %d, want 5", transformer.lastIntensity)
	}
}

func TestProcessFeedImageCaps(t *testing.T) {
	posts := make([]Post, 8)
	for i := range posts {
		posts[i] = textPost(string(rune('a'+i)), "t", "b")
		posts[i].MediaURLs = []string{"https://img.example/one.jpg", "https://img.example/two.jpg"}
	}

	images := &fakeImages{}
	limits := Limits{MaxWorkers: 1, MaxImagesPerPost: 1, MaxPostsWithImages: 5}
	o := NewOrchestrator(&fakeFilterStore{filters: storeFilters}, nil, staticComponents(&fakeEvaluator{}, &fakeTransformer{}), images, nil, limits, nil)

	got := o.ProcessFeed(context.Background(), "user-1", posts)

	withMedia := 0
	for i, post := range got {
		if len(post.ProcessedMedia) > 0 {
			withMedia++
			if len(post.ProcessedMedia) != 1 {
				t.Errorf("post %d processed %d images, want 1", i, len(post.ProcessedMedia))
			}
			media := post.ProcessedMedia[0]
			if media.Config == nil || media.Config.Status != imagepipe.StatusDeferred {
				t.Errorf("post %d media config = %+v", i, media.Config)
			}
		}
		// Text treatment is unaffected by the image cap.
		if post.ProcessedTitle == nil {
			t.Errorf("post %d missing text treatment", i)
		}
	}
	if withMedia != 5 {
		t.Errorf("%d posts got image treatment, want 5", withMedia)
	}
	if len(images.calls) != 5 {
		t.Errorf("image pipeline called %d times, want 5", len(images.calls))
	}
}

func TestProcessFeedDegenerateInputs(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		o := NewOrchestrator(&fakeFilterStore{}, nil, staticComponents(&fakeEvaluator{}, &fakeTransformer{}), nil, nil, DefaultLimits(), nil)
		posts := []Post{textPost("a", "t", "b")}
		got := o.ProcessFeed(context.Background(), "user-1", posts)
		if got[0].ProcessedTitle != nil {
			t.Error("posts must pass through untouched without filters")
		}
	})

	t.Run("filter store fails", func(t *testing.T) {
		o := NewOrchestrator(&fakeFilterStore{err: errors.New("db down")}, nil, staticComponents(&fakeEvaluator{}, &fakeTransformer{}), nil, nil, DefaultLimits(), nil)
		posts := []Post{textPost("a", "t", "b")}
		got := o.ProcessFeed(context.Background(), "user-1", posts)
		if len(got) != 1 || got[0].ProcessedTitle != nil {
			t.Errorf("feed should come back unmodified: %+v", got)
		}
	})

	t.Run("empty feed", func(t *testing.T) {
		o := NewOrchestrator(&fakeFilterStore{filters: storeFilters}, nil, staticComponents(&fakeEvaluator{}, &fakeTransformer{}), nil, nil, DefaultLimits(), nil)
		if got := o.ProcessFeed(context.Background(), "user-1", nil); len(got) != 0 {
			t.Errorf("empty feed returned %d posts", len(got))
		}
	})
}

func TestCombinedTextRoundTrip(t *testing.T) {
	post := textPost("a", "Giant spiders found", "A nest appeared downtown")
	combined := post.CombinedText()

	want := "[TITLE]Giant spiders found[/TITLE]\n[BODY]A nest appeared downtown[/BODY]"
	if combined != want {
		t.Errorf("CombinedText() = %q, want %q", combined, want)
	}

	post.ApplyProcessed("[TITLE]new title[/TITLE]\n[BODY]new body[/BODY]")
	if post.ProcessedTitle == nil || *post.ProcessedTitle != "new title" {
		t.Errorf("ProcessedTitle = %v", post.ProcessedTitle)
	}
	if post.ProcessedBody == nil || *post.ProcessedBody != "new body" {
		t.Errorf("ProcessedBody = %v", post.ProcessedBody)
	}

	titleOnly := Post{ID: "b", Title: strptr("just a title")}
	if got := titleOnly.CombinedText(); got != "[TITLE]just a title[/TITLE]\n" {
		t.Errorf("title-only CombinedText() = %q", got)
	}
}

// scriptedModel returns canned responses in call order.
type scriptedModel struct {
	responses []string
	calls     int
}

func (m *scriptedModel) Prompt(ctx context.Context, req llm.Request) (string, error) {
	if m.calls >= len(m.responses) {
		return "", errors.New("unexpected model call")
	}
	response := m.responses[m.calls]
	m.calls++
	return response, nil
}

func TestProcessFeedEndToEndRewrite(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"matched_filter_ids": [0], "confidence_scores": {"0": 0.9}}`,
		"[TITLE]Local wildlife news[/TITLE]\n[BODY]Unusual animal activity was reported downtown[/BODY]",
	}}

	build := func(mode string) (Evaluator, Transformer) {
		return filter.NewEvaluator(model, mode, nil), markup.NewTransformer(model, mode, nil)
	}
	prefs := &fakePrefStore{prefs: filter.Prefs{Mode: config.ModeBalanced}}
	o := NewOrchestrator(&fakeFilterStore{filters: storeFilters}, prefs, build, nil, nil, DefaultLimits(), nil)

	posts := []Post{textPost("a", "Giant spiders found", "A nest of spiders appeared downtown")}
	got := o.ProcessFeed(context.Background(), "user-1", posts)

	if got[0].ProcessedTitle == nil || got[0].ProcessedBody == nil {
		t.Fatalf("post not processed: %+v", got[0])
	}

	title := *got[0].ProcessedTitle
	body := *got[0].ProcessedBody
	if !strings.HasPrefix(title, markup.RewriteStart) || !strings.HasSuffix(title, markup.RewriteEnd) {
		t.Errorf("title not rewrite-wrapped: %q", title)
	}
	if !strings.HasPrefix(body, markup.RewriteStart) || !strings.HasSuffix(body, markup.RewriteEnd) {
		t.Errorf("body not rewrite-wrapped: %q", body)
	}
	if strings.Contains(title, "spiders") || strings.Contains(body, "spiders") {
		t.Errorf("filtered topic still present: %q / %q", title, body)
	}
}
