// Package usage extracts token and cache usage data from model API
// response payloads. Providers report usage under several shapes and
// naming conventions; extraction is tolerant and side-effect free.
package usage

// Fields holds normalized token counts for a single API request.
type Fields struct {
	CacheReadTokens  int64
	CacheWriteTokens int64
	InputTokens      int64
	OutputTokens     int64
}

// IsZero reports whether no field is populated.
func (f Fields) IsZero() bool {
	return f.CacheReadTokens == 0 &&
		f.CacheWriteTokens == 0 &&
		f.InputTokens == 0 &&
		f.OutputTokens == 0
}

// IsHit reports whether the request read from the provider prompt cache.
func (f Fields) IsHit() bool {
	return f.CacheReadTokens > 0
}

// Merge combines a later partial frame into f. A non-zero value wins over
// a zero or previously absent one; a zero in the later frame never
// overwrites an earlier non-zero count. Streaming responses report usage
// across multiple frames (input counts in message_start, output counts in
// message_delta), so later frames refine earlier ones.
func (f Fields) Merge(later Fields) Fields {
	if later.CacheReadTokens != 0 {
		f.CacheReadTokens = later.CacheReadTokens
	}
	if later.CacheWriteTokens != 0 {
		f.CacheWriteTokens = later.CacheWriteTokens
	}
	if later.InputTokens != 0 {
		f.InputTokens = later.InputTokens
	}
	if later.OutputTokens != 0 {
		f.OutputTokens = later.OutputTokens
	}
	return f
}
