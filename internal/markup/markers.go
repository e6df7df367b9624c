// Package markup rewrites matched content into marker-delimited text that a
// downstream renderer consumes. Marker literals are part of the wire format
// and must stay byte-exact.
package markup

import (
	"regexp"
	"strings"
)

// Marker literals consumed by downstream renderers.
const (
	BlurStart    = "__BLUR_START__"
	BlurEnd      = "__BLUR_END__"
	OverlayStart = "__OVERLAY_START__"
	OverlayEnd   = "__OVERLAY_END__"
	RewriteStart = "__REWRITE_START__"
	RewriteEnd   = "__REWRITE_END__"
)

// Section tags delimiting the title and body regions of a post.
const (
	TitleOpen  = "[TITLE]"
	TitleClose = "[/TITLE]"
	BodyOpen   = "[BODY]"
	BodyClose  = "[/BODY]"
)

type markerKind struct {
	start string
	end   string
}

var markerKinds = []markerKind{
	{BlurStart, BlurEnd},
	{OverlayStart, OverlayEnd},
	{RewriteStart, RewriteEnd},
}

var (
	titleRe = regexp.MustCompile(`(?s)\[TITLE\](.*?)\[/TITLE\]`)
	bodyRe  = regexp.MustCompile(`(?s)\[BODY\](.*?)\[/BODY\]`)
)

// StripMarkers removes every transformation marker from s. Used to clean
// marker text the model may have echoed before our own markers are applied.
func StripMarkers(s string) string {
	for _, kind := range markerKinds {
		s = strings.ReplaceAll(s, kind.start, "")
		s = strings.ReplaceAll(s, kind.end, "")
	}
	return s
}

// TitleContent returns the inner text of the first [TITLE] section.
func TitleContent(text string) (string, bool) {
	m := titleRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// BodyContent returns the inner text of the first [BODY] section.
func BodyContent(text string) (string, bool) {
	m := bodyRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// mapSections applies fn to the inner content of the [TITLE] and [BODY]
// sections, keeping the tags verbatim. Text without either tag is treated as
// a single untagged region.
func mapSections(text string, fn func(content string) string) string {
	result, replacedTitle := replaceSection(text, titleRe, TitleOpen, TitleClose, fn)
	result, replacedBody := replaceSection(result, bodyRe, BodyOpen, BodyClose, fn)
	if !replacedTitle && !replacedBody {
		return fn(text)
	}
	return result
}

func replaceSection(text string, re *regexp.Regexp, open, close string, fn func(string) string) (string, bool) {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, false
	}
	content := text[loc[2]:loc[3]]
	return text[:loc[0]] + open + fn(content) + close + text[loc[1]:], true
}
