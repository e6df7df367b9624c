package llm

// Prompts for the content filtering pipeline. Marker and section tag
// literals referenced here must stay aligned with the markup package.

// FilterEvaluationPrompt asks for per-filter match flags with confidence.
const FilterEvaluationPrompt = `Analyze if content matches any of the given filters.
Consider contextual meaning, implications, and related concepts.
Return matched filter indices and confidence scores in a JSON object. Follow the format exactly as shown below.

Example:
Content: "The administration's new economic policy has led to protests"
Filters: [
    {"filter_text": "politics", "filter_metadata": {"context": "political news"}},
    {"filter_text": "economic policy", "filter_metadata": {"context": "finance"}},
    {"filter_text": "protests", "filter_metadata": {"context": "civil unrest"}}
]

All three filters match with different confidence: strong political content
(filter 0), a direct mention of economic policy (filter 1), and protests
mentioned but not detailed (filter 2). So the JSON output is:
{
    "matched_filter_ids": [0, 1, 2],
    "confidence_scores": {
        "0": 0.85,
        "1": 0.90,
        "2": 0.70
    }
}`

// FilterEvaluationSchema constrains the evaluation response shape.
const FilterEvaluationSchema = `{
  "name": "filter_match",
  "schema": {
    "type": "object",
    "properties": {
      "matched_filter_ids": {
        "type": "array",
        "items": {"type": "integer"}
      },
      "confidence_scores": {
        "type": "object",
        "additionalProperties": {"type": "number"}
      }
    },
    "required": ["matched_filter_ids", "confidence_scores"]
  }
}`

// LowIntensityPrompt asks for the exact segments to blur.
const LowIntensityPrompt = `For the given content that may contain [TITLE] and [BODY] sections,
identify specific words or phrases that match the given filters.
Return a list of exact text segments that should be modified, one per line.
Do not add any markers or formatting - just return the raw text segments.
Preserve all [TITLE] and [BODY] tags exactly as they appear.`

// MediumIntensityPrompt asks for a short personalized warning. The warning
// must never name the filtered topic itself.
const MediumIntensityPrompt = `You are given two things:
1) content that may contain [TITLE] and [BODY] sections,
2) a list of filters with their corresponding sensitive topics.

Your job: create a brief warning message (under 100 characters) about this sensitive content.
Return only the warning message without any formatting or markers.

Guidelines:
Preserve all [TITLE] and [BODY] tags and their ending [/TITLE] and [/BODY] exactly as they appear.
Keep the warning no longer than the title content when a title is present.
Use a personalized tone; the warning is crafted for this particular user.
DO NOT mention the filter topics in the warning, because that is exactly what the user wants to avoid.`

// HighIntensityPrompt asks for a rewrite that neutralizes only the filtered topics.
const HighIntensityPrompt = `For the given content that may contain [TITLE] and [BODY] sections,
rewrite the content to remove or neutralize sensitive topics only related to the filters shared below,
preserving the general meaning.
Return only the rewritten text without any formatting or markers.
Preserve all [TITLE] and [BODY] tags and their ending [/TITLE] and [/BODY] exactly as they appear.
Only rewrite their corresponding content.`

// AggressiveModePrompt asks for a comprehensive rewrite across all filters.
const AggressiveModePrompt = `For the given content that may contain [TITLE] and [BODY] sections,
aggressively rewrite the content to fully remove or neutralize all sensitive topics.
Consider all filters together for a comprehensive rewrite.
Return only the rewritten text without any formatting or markers.
Preserve all [TITLE] and [BODY] tags exactly as they appear.
Keep sections between [TITLE] and [BODY] tags intact and only rewrite their content.`

// CacheKeyMatchPrompt picks the best existing cache sub-key for a new filter
// signature, or nothing when no key is close enough.
const CacheKeyMatchPrompt = `Here is a list of strings: %s. From this list return one string that matches the most with the string: %s. Only return the string from the list and nothing else. Also, if none of the items match, then return an empty string`

// ImageAnalysisPrompt scores the presence and visual weight of each filter
// element in an image.
const ImageAnalysisPrompt = `You are a helpful assistant whose task is to analyze an image and evaluate the presence and importance of a list of elements.

For each element, provide:
1. 'present': 1 if the element is clearly visible in the image, otherwise 0.
2. 'coverage': a score from 0 to 10 representing how much of the image's area the element visually occupies (0 = very little, 10 = dominant).
3. 'centrality': a score from 0 to 10 representing how important the element is to the main idea or theme of the image (0 = minor background detail, 10 = core/only subject of the image).

The elements to analyze are: %s.

Please respond with a JSON array of objects, each including: 'element', 'present', 'coverage', and 'centrality'.
Example format: [{"element": "guitar", "present": 1, "coverage": 8, "centrality": 9}]`

// ImageAnalysisSchema constrains the analyzer response shape.
const ImageAnalysisSchema = `{
  "name": "image_analysis",
  "schema": {
    "type": "array",
    "items": {
      "type": "object",
      "properties": {
        "element": {"type": "string"},
        "present": {"type": "integer"},
        "coverage": {"type": "integer"},
        "centrality": {"type": "integer"}
      },
      "required": ["element", "present", "coverage"]
    }
  }
}`
