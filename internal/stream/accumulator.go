// Package stream reconstructs usage telemetry from streamed model API
// response bodies. Bodies arrive as server-sent-event lines whose chunk
// boundaries do not respect lines (or even UTF-8 sequences), so input is
// buffered byte-wise until a complete line is available.
package stream

import (
	"bytes"
	"encoding/json"
	"io"

	"cachewarm/internal/usage"
)

var (
	dataPrefix  = []byte("data:")
	eventPrefix = []byte("event:")
	doneToken   = []byte("[DONE]")
)

// Accumulator consumes a streamed response body chunk by chunk and merges
// every usage frame it finds into a single report. It never fails: lines
// that are not valid JSON are simply buffered or skipped.
type Accumulator struct {
	buf    bytes.Buffer
	merged usage.Fields
	found  bool
	model  string
}

// NewAccumulator returns an empty accumulator for one response body.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Write feeds a raw chunk into the accumulator. Complete lines are
// processed immediately; a trailing partial line stays buffered until the
// next chunk completes it. Always returns len(p), nil to satisfy
// io.Writer so the accumulator can sit behind io.TeeReader.
func (a *Accumulator) Write(p []byte) (int, error) {
	a.buf.Write(p)

	for {
		line, err := a.buf.ReadBytes('\n')
		if err != nil {
			// No newline yet; put the partial line back for later.
			a.buf.Write(line)
			break
		}
		a.processLine(line)
	}
	return len(p), nil
}

// Finish flushes any buffered trailing line and returns the merged usage
// report. The second result is false when the stream carried no usage
// telemetry at all, which is not an error.
func (a *Accumulator) Finish() (usage.Fields, bool) {
	if a.buf.Len() > 0 {
		line := a.buf.Bytes()
		a.buf = bytes.Buffer{}
		a.processLine(line)
	}
	return a.merged, a.found
}

// processLine handles one complete SSE line: comments and event names are
// skipped, the data prefix is stripped, the [DONE] sentinel is ignored,
// and whatever remains is parsed as JSON on a best-effort basis.
func (a *Accumulator) processLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	if line[0] == ':' || bytes.HasPrefix(line, eventPrefix) {
		return
	}
	if bytes.HasPrefix(line, dataPrefix) {
		line = bytes.TrimSpace(line[len(dataPrefix):])
	}
	if len(line) == 0 || bytes.Equal(line, doneToken) {
		return
	}

	var v any
	if err := json.Unmarshal(line, &v); err != nil {
		return
	}

	if f, ok := usage.Extract(v); ok {
		a.merged = a.merged.Merge(f)
		a.found = true
	}
	if a.model == "" {
		a.model = usage.ExtractModel(v)
	}
}

// Model returns the model identifier seen in the stream, if any.
func (a *Accumulator) Model() string {
	return a.model
}

// Consume drains an entire reader through a fresh accumulator and
// reports the merged usage plus the model seen in the stream. Read
// errors after partial data still yield whatever usage was observed.
func Consume(r io.Reader) (usage.Fields, string, bool, error) {
	a := NewAccumulator()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = a.Write(buf[:n])
		}
		if err == io.EOF {
			f, found := a.Finish()
			return f, a.Model(), found, nil
		}
		if err != nil {
			f, found := a.Finish()
			return f, a.Model(), found, err
		}
	}
}
