package markup

import (
	"sort"
	"strings"
)

// Validate repairs marker well-formedness. It operates per section so the
// [TITLE]/[BODY] tags themselves never end up inside a marker span. For each
// marker kind: mismatched start/end counts strip that kind and re-wrap the
// section body once; same-kind nesting is flattened to the outermost pair.
func Validate(text string) string {
	return mapSections(text, repairRegion)
}

func repairRegion(region string) string {
	for _, kind := range markerKinds {
		region = repairKind(region, kind)
	}
	return region
}

func repairKind(region string, kind markerKind) string {
	starts := strings.Count(region, kind.start)
	ends := strings.Count(region, kind.end)

	if starts == 0 && ends == 0 {
		return region
	}

	if starts != ends {
		return wrapWhole(region, kind)
	}

	flattened := flattenKind(region, kind)
	if strings.Count(flattened, kind.start) != strings.Count(flattened, kind.end) {
		// Ordering was pathological (an end before any start); fall back to
		// the same strip-and-rewrap repair as a count mismatch.
		return wrapWhole(flattened, kind)
	}
	return flattened
}

func wrapWhole(region string, kind markerKind) string {
	stripped := strings.ReplaceAll(region, kind.start, "")
	stripped = strings.ReplaceAll(stripped, kind.end, "")
	if kind.start == OverlayStart {
		// Overlay payloads are warning|content; supply a generic warning when
		// re-wrapping so the renderer contract holds.
		return OverlayStart + genericWarning + "|" + stripped + OverlayEnd
	}
	return kind.start + stripped + kind.end
}

// flattenKind removes same-kind markers nested inside an outer pair, keeping
// only the outermost span. Dangling ends at depth zero are dropped.
func flattenKind(region string, kind markerKind) string {
	type token struct {
		pos     int
		isStart bool
	}

	var tokens []token
	for idx := 0; ; {
		rel := strings.Index(region[idx:], kind.start)
		if rel < 0 {
			break
		}
		tokens = append(tokens, token{pos: idx + rel, isStart: true})
		idx += rel + len(kind.start)
	}
	for idx := 0; ; {
		rel := strings.Index(region[idx:], kind.end)
		if rel < 0 {
			break
		}
		tokens = append(tokens, token{pos: idx + rel, isStart: false})
		idx += rel + len(kind.end)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].pos < tokens[j].pos })

	var b strings.Builder
	last := 0
	depth := 0
	for _, t := range tokens {
		b.WriteString(region[last:t.pos])
		if t.isStart {
			depth++
			if depth == 1 {
				b.WriteString(kind.start)
			}
			last = t.pos + len(kind.start)
		} else {
			if depth == 1 {
				b.WriteString(kind.end)
			}
			if depth > 0 {
				depth--
			}
			last = t.pos + len(kind.end)
		}
	}
	b.WriteString(region[last:])
	return b.String()
}
