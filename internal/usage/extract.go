package usage

import "strings"

// maxSearchDepth bounds the fallback deep search so large unrelated
// payloads (tool results, document content) are never fully traversed.
const maxSearchDepth = 5

// matcher attempts to locate a usage object in a decoded JSON value.
type matcher func(obj map[string]any) (Fields, bool)

// matchers are tried in priority order. Earlier entries are the common
// provider shapes; the deep search in Extract is the last resort.
var matchers = []matcher{
	matchDirectUsage,
	matchMessageUsage,
	matchStreamEnvelope,
	matchVendorUsage,
	matchRootCacheFields,
	matchWrappedUsage,
}

// Extract locates token usage fields in an arbitrary decoded JSON value.
// It recognizes direct `usage` properties, `message.usage` nesting,
// Anthropic streaming envelopes, vendor-prefixed aggregator keys,
// root-level cache fields, and one level of response/data wrapping,
// falling back to a bounded deep search. Returns false when the value
// carries no usage-like object.
func Extract(v any) (Fields, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Fields{}, false
	}

	for _, m := range matchers {
		if f, ok := m(obj); ok {
			return f, true
		}
	}

	return deepSearch(obj, 0)
}

func matchDirectUsage(obj map[string]any) (Fields, bool) {
	return normalize(childObject(obj, "usage"))
}

func matchMessageUsage(obj map[string]any) (Fields, bool) {
	msg, ok := childObject(obj, "message")
	if !ok {
		return Fields{}, false
	}
	return normalize(childObject(msg, "usage"))
}

// matchStreamEnvelope handles Anthropic SSE event payloads:
// message_start carries `message.usage` (input side), message_delta
// carries a sibling `usage` (output side).
func matchStreamEnvelope(obj map[string]any) (Fields, bool) {
	typ, _ := obj["type"].(string)
	switch typ {
	case "message_start":
		if msg, ok := childObject(obj, "message"); ok {
			return normalize(childObject(msg, "usage"))
		}
	case "message_delta":
		return normalize(childObject(obj, "usage"))
	}
	return Fields{}, false
}

// matchVendorUsage handles aggregator responses that namespace usage
// under a vendor-prefixed key.
func matchVendorUsage(obj map[string]any) (Fields, bool) {
	return normalize(childObject(obj, "x_usage"))
}

// matchRootCacheFields handles payloads where cache counters sit directly
// at the object root alongside input/output counts.
func matchRootCacheFields(obj map[string]any) (Fields, bool) {
	_, hasRead := numberField(obj, "cache_read_input_tokens", "cacheReadInputTokens")
	_, hasWrite := numberField(obj, "cache_creation_input_tokens", "cacheCreationInputTokens")
	if !hasRead && !hasWrite {
		return Fields{}, false
	}
	return normalize(obj, true)
}

func matchWrappedUsage(obj map[string]any) (Fields, bool) {
	for _, key := range []string{"response", "data"} {
		if inner, ok := childObject(obj, key); ok {
			if f, ok := normalize(childObject(inner, "usage")); ok {
				return f, true
			}
		}
	}
	return Fields{}, false
}

// deepSearch walks child objects whose key names suggest usage data.
// Only keys containing "usage", "token", or "cache" are descended into,
// and depth is capped, keeping the traversal cheap on hostile payloads.
func deepSearch(obj map[string]any, depth int) (Fields, bool) {
	if depth >= maxSearchDepth {
		return Fields{}, false
	}

	for key, val := range obj {
		if !usageLikeKey(key) {
			continue
		}
		child, ok := val.(map[string]any)
		if !ok {
			continue
		}
		if f, ok := normalize(child, true); ok {
			return f, true
		}
		if f, ok := deepSearch(child, depth+1); ok {
			return f, true
		}
	}
	return Fields{}, false
}

func usageLikeKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "usage") ||
		strings.Contains(k, "token") ||
		strings.Contains(k, "cache")
}

// normalize converts a candidate usage object into canonical Fields,
// accepting snake_case, camelCase, and OpenAI prompt/completion naming.
// The candidate is valid when at least one known token field is present.
// The ok parameter lets callers chain childObject lookups directly.
func normalize(obj map[string]any, ok bool) (Fields, bool) {
	if !ok || obj == nil {
		return Fields{}, false
	}

	var f Fields
	var found bool

	if n, present := numberField(obj, "cache_read_input_tokens", "cacheReadInputTokens", "cache_read_tokens"); present {
		f.CacheReadTokens = n
		found = true
	}
	if n, present := numberField(obj, "cache_creation_input_tokens", "cacheCreationInputTokens", "cache_creation_tokens"); present {
		f.CacheWriteTokens = n
		found = true
	} else if cc, present := childObject(obj, "cache_creation"); present {
		// Newer Anthropic responses break cache writes down by TTL bucket.
		n5m, ok5m := numberField(cc, "ephemeral_5m_input_tokens")
		n1h, ok1h := numberField(cc, "ephemeral_1h_input_tokens")
		if ok5m || ok1h {
			f.CacheWriteTokens = n5m + n1h
			found = true
		}
	}
	if n, present := numberField(obj, "input_tokens", "inputTokens", "prompt_tokens", "promptTokens"); present {
		f.InputTokens = n
		found = true
	}
	if n, present := numberField(obj, "output_tokens", "outputTokens", "completion_tokens", "completionTokens"); present {
		f.OutputTokens = n
		found = true
	}

	return f, found
}

// childObject returns obj[key] when it is a JSON object. The two-value
// form lets callers chain it straight into normalize.
func childObject(obj map[string]any, key string) (map[string]any, bool) {
	if obj == nil {
		return nil, false
	}
	child, ok := obj[key].(map[string]any)
	return child, ok
}

// numberField returns the first present numeric value among the given
// key aliases. JSON numbers decode as float64; negative counts are
// clamped to zero since token counts cannot go below it.
func numberField(obj map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		v, present := obj[key]
		if !present {
			continue
		}
		n, ok := v.(float64)
		if !ok {
			continue
		}
		if n < 0 {
			return 0, true
		}
		return int64(n), true
	}
	return 0, false
}

// ExtractModel pulls the model identifier from a response payload when
// present, checking the object root and the message envelope.
func ExtractModel(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	if m, ok := obj["model"].(string); ok {
		return m
	}
	if msg, ok := childObject(obj, "message"); ok {
		if m, ok := msg["model"].(string); ok {
			return m
		}
	}
	return ""
}
