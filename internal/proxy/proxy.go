// Package proxy implements the local HTTP proxy that sits between a chat
// client and the model APIs. Matching responses are passively inspected
// for cache usage telemetry; payloads are never altered for the caller.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cachewarm/internal/usage"
)

// HeaderConversation lets chat clients tag requests with an opaque
// conversation identity. Requests without it fall back to a
// provider/model derived identity.
const HeaderConversation = "X-Cachewarm-Conversation"

// maxInspectBytes caps how much of a JSON response is buffered for
// usage extraction. Generation responses are far smaller; anything
// bigger passes through uninspected.
const maxInspectBytes = 4 << 20

// replayBody prefixes already-buffered bytes onto the unread remainder
// of a response body while keeping the original Closer.
type replayBody struct {
	io.Reader
	io.Closer
}

// Meta describes one intercepted exchange.
type Meta struct {
	RequestID      string
	Provider       string
	Endpoint       string
	Model          string
	ConversationID string
	Streaming      bool
}

// ResultFunc receives the outcome of every intercepted exchange. found
// is false when the response carried no usage telemetry, which is
// normal for non-generation endpoints.
type ResultFunc func(meta Meta, f usage.Fields, found bool)

// Config holds proxy configuration.
type Config struct {
	// Addr to listen on; empty picks a random localhost port.
	Addr string
	// Upstreams overrides provider base URLs (tests, regional gateways).
	Upstreams map[string]string
	// OnResult is called once per completed matching exchange.
	OnResult ResultFunc
}

// defaultUpstreams maps provider path prefixes to their API base URLs.
var defaultUpstreams = map[string]string{
	"anthropic":  "https://api.anthropic.com",
	"openai":     "https://api.openai.com",
	"openrouter": "https://openrouter.ai",
}

// modelAPIFragments are the path fragments identifying chat-completion
// style endpoints worth inspecting.
var modelAPIFragments = []string{
	"/v1/messages",
	"/chat/completions",
	"/v1/complete",
}

// Server is the interception proxy.
type Server struct {
	config   Config
	listener net.Listener
	httpSrv  *http.Server
	mu       sync.Mutex
	started  bool
}

// NewServer creates a proxy server from config.
func NewServer(config Config) *Server {
	s := &Server{config: config}
	s.httpSrv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Start begins listening. Install is idempotent: starting a started
// server is an error rather than a second interception layer.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return "", fmt.Errorf("proxy already started")
	}

	addr := s.config.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	var err error
	s.listener, err = net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("proxy listen: %w", err)
	}
	s.started = true

	go func() { _ = s.httpSrv.Serve(s.listener) }()

	return s.listener.Addr().String(), nil
}

// Stop shuts the proxy down and releases the listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	return s.httpSrv.Close()
}

// upstreamFor resolves a provider's base URL, honoring overrides.
func (s *Server) upstreamFor(provider string) (string, bool) {
	if base, ok := s.config.Upstreams[provider]; ok {
		return base, true
	}
	base, ok := defaultUpstreams[provider]
	return base, ok
}

// isModelAPIPath reports whether an endpoint looks like a generation
// call whose response may carry usage telemetry.
func isModelAPIPath(path string) bool {
	for _, frag := range modelAPIFragments {
		if strings.Contains(path, frag) {
			return true
		}
	}
	return false
}

// ServeHTTP routes /<provider>/<api-path> to the provider's upstream,
// forking matching response bodies through a usage tap.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(pathParts) < 1 || pathParts[0] == "" {
		http.Error(w, "expected /<provider>/<api-path>", http.StatusBadRequest)
		return
	}

	provider := pathParts[0]
	targetBase, ok := s.upstreamFor(provider)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown provider: %s", provider), http.StatusBadRequest)
		return
	}

	targetPath := "/"
	if len(pathParts) > 1 {
		targetPath = "/" + pathParts[1]
	}

	targetURL, err := url.Parse(targetBase)
	if err != nil {
		http.Error(w, "bad upstream", http.StatusInternalServerError)
		return
	}

	meta := Meta{
		RequestID:      uuid.NewString(),
		Provider:       provider,
		Endpoint:       targetPath,
		ConversationID: r.Header.Get(HeaderConversation),
	}

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = targetURL.Scheme
			req.URL.Host = targetURL.Host
			req.URL.Path = targetPath
			req.Host = targetURL.Host
			req.Header.Del(HeaderConversation)
		},
		ModifyResponse: func(resp *http.Response) error {
			return s.inspectResponse(meta, resp)
		},
		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, fmt.Sprintf("proxy error: %v", err), http.StatusBadGateway)
		},
	}

	rp.ServeHTTP(w, r)
}

// inspectResponse forks matching response bodies for usage extraction.
// The original payload always reaches the client byte for byte.
func (s *Server) inspectResponse(meta Meta, resp *http.Response) error {
	if s.config.OnResult == nil {
		return nil
	}
	if !isModelAPIPath(meta.Endpoint) {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "text/event-stream"):
		meta.Streaming = true
		resp.Body = newTap(resp.Body, meta, s.config.OnResult)
		return nil

	case strings.Contains(contentType, "application/json"):
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxInspectBytes+1))
		if err != nil {
			return nil // leave the response alone if we can't read it
		}
		if len(body) > maxInspectBytes {
			// Too large to buffer for inspection. Stitch the prefix back
			// onto the unread remainder and pass it through untouched.
			resp.Body = &replayBody{
				Reader: io.MultiReader(bytes.NewReader(body), resp.Body),
				Closer: resp.Body,
			}
			return nil
		}
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.ContentLength = int64(len(body))

		s.report(meta, body)
		return nil
	}

	return nil
}

// report extracts usage from a complete JSON body and emits the result.
func (s *Server) report(meta Meta, body []byte) {
	f, found := extractJSON(body, &meta)
	finishMeta(&meta)
	s.config.OnResult(meta, f, found)
}

func finishMeta(meta *Meta) {
	if meta.ConversationID == "" {
		// No client-supplied identity: fall back to provider/model so
		// distinct models never share refresh state.
		meta.ConversationID = meta.Provider + "/" + meta.Model
	}
}
