package embeddings

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

// unreachable is a URL nothing listens on.
const unreachable = "http://127.0.0.1:1"

// vectorFor is the deterministic embedding both fakes return.
func vectorFor(text string) Vector {
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	return Vector{float32(utf8.RuneCountInString(text)), sum}
}

// fakeOllama is an httptest Ollama server. Zero-value hooks give a healthy
// server with a working bulk endpoint.
type fakeOllama struct {
	srv *httptest.Server

	// bulk answers /api/embed; nil serves vectorFor for every input.
	bulk func(w http.ResponseWriter, input []string)
	// single answers /api/embeddings; nil serves vectorFor(prompt).
	single func(w http.ResponseWriter, prompt string)
	// noBulk makes /api/embed return 404.
	noBulk bool
	// tagsDelay delays the health check.
	tagsDelay time.Duration
	// showStatus is returned by /api/show; 0 means 200.
	showStatus int
	// pullBody is streamed by /api/pull.
	pullBody string

	mu         sync.Mutex
	prompts    []string
	bulkInputs [][]string
	pulls      []string
	authHeader string
}

func newFakeOllama(t *testing.T, configure func(f *fakeOllama)) *fakeOllama {
	t.Helper()
	f := &fakeOllama{}
	if configure != nil {
		configure(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		if f.tagsDelay > 0 {
			select {
			case <-time.After(f.tagsDelay):
			case <-r.Context().Done():
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"models": []any{}})
	})
	mux.HandleFunc("POST /api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbeddingRequest
		decode(t, r.Body, &req)
		f.mu.Lock()
		f.prompts = append(f.prompts, req.Prompt)
		f.authHeader = r.Header.Get("Authorization")
		f.mu.Unlock()
		if f.single != nil {
			f.single(w, req.Prompt)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"embedding": vectorFor(req.Prompt)})
	})
	mux.HandleFunc("POST /api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		decode(t, r.Body, &req)
		f.mu.Lock()
		f.bulkInputs = append(f.bulkInputs, req.Input)
		f.mu.Unlock()
		if f.noBulk {
			http.NotFound(w, r)
			return
		}
		if f.bulk != nil {
			f.bulk(w, req.Input)
			return
		}
		out := make([]Vector, len(req.Input))
		for i, s := range req.Input {
			out[i] = vectorFor(s)
		}
		writeJSON(w, http.StatusOK, map[string]any{"embeddings": out})
	})
	mux.HandleFunc("POST /api/show", func(w http.ResponseWriter, r *http.Request) {
		status := f.showStatus
		if status == 0 {
			status = http.StatusOK
		}
		if status != http.StatusOK {
			writeJSON(w, status, map[string]any{"error": "model not found"})
			return
		}
		writeJSON(w, status, map[string]any{"modelfile": "FROM nomic-embed-text"})
	})
	mux.HandleFunc("POST /api/pull", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaModelRequest
		decode(t, r.Body, &req)
		f.mu.Lock()
		f.pulls = append(f.pulls, req.Name)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, f.pullBody)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOllama) URL() string { return f.srv.URL }

func (f *fakeOllama) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeOllama) BulkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bulkInputs)
}

func (f *fakeOllama) Pulls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pulls...)
}

// fakeOpenAI is an httptest OpenAI-compatible server rooted at /v1.
type fakeOpenAI struct {
	srv *httptest.Server

	// embed answers /v1/embeddings; nil serves vectorFor(input).
	embed func(w http.ResponseWriter, input string)

	mu         sync.Mutex
	inputs     []string
	authHeader string
}

func newFakeOpenAI(t *testing.T, configure func(f *fakeOpenAI)) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{}
	if configure != nil {
		configure(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	})
	mux.HandleFunc("POST /v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbeddingRequest
		decode(t, r.Body, &req)
		f.mu.Lock()
		f.inputs = append(f.inputs, req.Input)
		f.authHeader = r.Header.Get("Authorization")
		f.mu.Unlock()
		if f.embed != nil {
			f.embed(w, req.Input)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []any{map[string]any{"embedding": vectorFor(req.Input)}},
		})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOpenAI) URL() string { return f.srv.URL + "/v1" }

func (f *fakeOpenAI) Inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

func (f *fakeOpenAI) AuthHeader() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authHeader
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(t *testing.T, r io.Reader, v any) {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Errorf("decoding request body: %v", err)
	}
}

// testConfig returns a config with fast retries and no group pause.
func testConfig(ollamaHost, openAIHost string) Config {
	cfg := DefaultConfig()
	cfg.OllamaHost = ollamaHost
	cfg.OpenAIHost = openAIHost
	cfg.ProbeTimeout = time.Second
	cfg.RequestTimeout = 5 * time.Second
	cfg.GroupPause = 0
	cfg.Retry.Backoff = LinearBackoff(time.Millisecond)
	return cfg
}

func ollamaInfo(f *fakeOllama) ProviderInfo {
	return ProviderInfo{Kind: KindOllama, BaseURL: f.URL()}
}

func openAIInfo(f *fakeOpenAI) ProviderInfo {
	return ProviderInfo{Kind: KindOpenAI, BaseURL: f.URL()}
}
