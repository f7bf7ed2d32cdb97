package proxy

import (
	"encoding/json"
	"io"
	"sync"

	"cachewarm/internal/stream"
	"cachewarm/internal/usage"
)

// tap wraps a streaming response body. Bytes pass through to the
// caller untouched while a copy feeds the usage accumulator. The
// result is reported exactly once, when the upstream body closes.
type tap struct {
	inner    io.ReadCloser
	acc      *stream.Accumulator
	meta     Meta
	onResult ResultFunc
	once     sync.Once
}

func newTap(inner io.ReadCloser, meta Meta, onResult ResultFunc) *tap {
	return &tap{
		inner:    inner,
		acc:      stream.NewAccumulator(),
		meta:     meta,
		onResult: onResult,
	}
}

func (t *tap) Read(p []byte) (int, error) {
	n, err := t.inner.Read(p)
	if n > 0 {
		t.acc.Write(p[:n])
	}
	if err == io.EOF {
		t.finish()
	}
	return n, err
}

func (t *tap) Close() error {
	err := t.inner.Close()
	t.finish()
	return err
}

func (t *tap) finish() {
	t.once.Do(func() {
		f, found := t.acc.Finish()
		t.meta.Model = t.acc.Model()
		finishMeta(&t.meta)
		t.onResult(t.meta, f, found)
	})
}

// extractJSON decodes a complete JSON body and runs usage extraction,
// filling in the observed model name when present.
func extractJSON(body []byte, meta *Meta) (usage.Fields, bool) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return usage.Fields{}, false
	}
	meta.Model = usage.ExtractModel(v)
	return usage.Extract(v)
}
