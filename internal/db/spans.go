package db

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/wesm/revenueos/internal/roi"
)

// Alternate key spellings seen in span payloads. The first key
// present wins.
var (
	inputTokenKeys  = []string{"inputTokens", "input_tokens", "usage.input_tokens"}
	outputTokenKeys = []string{"outputTokens", "output_tokens", "usage.output_tokens"}
	cacheReadKeys   = []string{"cacheRead", "cache_read", "cache_read_tokens", "usage.cache_read_input_tokens"}
	costKeys        = []string{"cost", "cost_usd", "costUsd"}
)

// DecodeSpans parses a JSON span array into typed spans. Missing
// or negative numbers become 0. Non-object elements are skipped.
// An empty payload decodes to no spans.
func DecodeSpans(raw string) ([]roi.Span, error) {
	if raw == "" || raw == "null" {
		return []roi.Span{}, nil
	}
	if !gjson.Valid(raw) {
		return []roi.Span{}, fmt.Errorf("invalid span json")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return []roi.Span{}, fmt.Errorf("span payload is not an array")
	}
	return decodeSpanArray(parsed), nil
}

func decodeSpanArray(arr gjson.Result) []roi.Span {
	spans := []roi.Span{}
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			spans = append(spans, decodeSpan(v))
		}
		return true
	})
	return spans
}

func decodeSpan(v gjson.Result) roi.Span {
	return roi.Span{
		Model:        v.Get("model").String(),
		InputTokens:  firstInt(v, inputTokenKeys),
		OutputTokens: firstInt(v, outputTokenKeys),
		CacheRead:    firstInt(v, cacheReadKeys),
		Cost:         firstFloat(v, costKeys),
	}
}

func firstInt(v gjson.Result, keys []string) int64 {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return max(r.Int(), 0)
		}
	}
	return 0
}

func firstFloat(v gjson.Result, keys []string) float64 {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return max(r.Float(), 0)
		}
	}
	return 0
}

// encodeSpans stores spans in the canonical snake_case shape.
func encodeSpans(spans []roi.Span) (string, error) {
	if spans == nil {
		spans = []roi.Span{}
	}
	b, err := json.Marshal(spans)
	if err != nil {
		return "", fmt.Errorf("encoding spans: %w", err)
	}
	return string(b), nil
}
