package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/config"
)

const testDim = 4

// fakeEmbeddings serves an OpenAI-compatible /embeddings endpoint with vectors derived
// from the input text, so identical text always gets the identical vector.
func fakeEmbeddings(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode embeddings request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, text := range req.Input {
			data[i] = item{Object: "embedding", Embedding: textVector(text), Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-model",
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func textVector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum64()
	v := make([]float32, testDim)
	for i := range v {
		v[i] = float32((sum>>(16*i))&0xffff) + 1
	}
	return v
}

func memoryConfig(t *testing.T, embeddingsURL string) config.Config {
	t.Helper()
	return memoryConfigWith(t, embeddingsURL, "")
}

func memoryConfigWith(t *testing.T, embeddingsURL, extra string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
http:
  port: 8080
index:
  dimensions: 4
embedding:
  provider: test
  api_key: test-key
  base_url: ` + embeddingsURL + `
  model: test-model
ingest:
  warmup: true
resilience:
  retry_max_attempts: 1
` + extra))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func TestBuild_MemoryEndToEnd(t *testing.T) {
	emb := fakeEmbeddings(t)
	cfg := memoryConfig(t, emb.URL)

	app, err := build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.close()

	if app.consumer != nil {
		t.Error("consumer must be nil when NATS is disabled")
	}
	h := app.server.Routes()

	rec := serve(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, body %s", rec.Code, rec.Body.String())
	}

	const material = "Книга Пример запрещенного материала"
	rec = serve(t, h, http.MethodPut, "/v1/documents",
		`{"documents":[{"id":"e-1","content":"`+material+`","source":"minjust"}]}`)
	var batch struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &batch); err != nil {
		t.Fatalf("decode upsert: %v (%s)", err, rec.Body.String())
	}
	if batch.Succeeded != 1 || batch.Failed != 0 {
		t.Fatalf("upsert = %+v, body %s", batch, rec.Body.String())
	}

	rec = serve(t, h, http.MethodPost, "/v1/check", `{"query":"`+material+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("check status = %d, body %s", rec.Code, rec.Body.String())
	}
	var verdict struct {
		Classification  string `json:"classification"`
		MatchedDocument *struct {
			ID string `json:"id"`
		} `json:"matched_document"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode check: %v", err)
	}
	if verdict.Classification != "MATCHED" {
		t.Fatalf("classification = %q, body %s", verdict.Classification, rec.Body.String())
	}
	if verdict.MatchedDocument == nil || verdict.MatchedDocument.ID != "e-1" {
		t.Errorf("matched document = %+v", verdict.MatchedDocument)
	}

	report, err := app.ingest.Warmup(context.Background())
	if err != nil {
		t.Fatalf("warmup: %v", err)
	}
	if report.Scanned != 1 || report.Indexed != 0 {
		t.Errorf("warmup after live ingest = %+v, want one scanned and nothing new", report)
	}
}

func TestBuild_HybridRetrievalMatchesKeywords(t *testing.T) {
	emb := fakeEmbeddings(t)
	cfg := memoryConfigWith(t, emb.URL, `
retrieval:
  mode: hybrid
`)

	app, err := build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.close()
	h := app.server.Routes()

	rec := serve(t, h, http.MethodPut, "/v1/documents",
		`{"documents":[{"id":"e-2","content":"Книга Пример запрещенного материала","source":"minjust"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The partial query embeds to an unrelated vector; only the keyword pass can find it.
	rec = serve(t, h, http.MethodPost, "/v1/check", `{"query":"пример запрещенного"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("check status = %d, body %s", rec.Code, rec.Body.String())
	}
	var verdict struct {
		Classification  string `json:"classification"`
		MatchedDocument *struct {
			ID string `json:"id"`
		} `json:"matched_document"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode check: %v", err)
	}
	if verdict.Classification != "MATCHED" || verdict.MatchedDocument == nil || verdict.MatchedDocument.ID != "e-2" {
		t.Errorf("verdict = %s", rec.Body.String())
	}
}

func TestBuildStore_MissingBackend(t *testing.T) {
	for _, driver := range []string{config.DriverRedis, config.DriverPostgres} {
		cfg := config.Config{Storage: config.StorageConfig{Driver: driver}}
		if _, err := buildStore(context.Background(), cfg, backends{}); !errors.Is(err, errNoBackend) {
			t.Errorf("%s: err = %v, want errNoBackend", driver, err)
		}
	}
}

func TestBuildIndex_MissingBackend(t *testing.T) {
	for _, backend := range []string{config.IndexRedis, config.IndexPGVector} {
		cfg := config.Config{Index: config.IndexConfig{Backend: backend, Dimensions: testDim}}
		if _, err := buildIndex(context.Background(), cfg, backends{}, zap.NewNop()); !errors.Is(err, errNoBackend) {
			t.Errorf("%s: err = %v, want errNoBackend", backend, err)
		}
	}
}

func TestBuildIndex_Memory(t *testing.T) {
	cfg := config.Config{Index: config.IndexConfig{Backend: config.IndexMemory, Dimensions: testDim}}
	x, err := buildIndex(context.Background(), cfg, backends{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if x.Dimension() != testDim {
		t.Errorf("dimension = %d", x.Dimension())
	}
}

func TestBuildGenerator_Off(t *testing.T) {
	cfg := config.Config{Generation: config.GenerationConfig{Mode: "off"}}
	if g := buildGenerator(cfg, nil, zap.NewNop()); g != nil {
		t.Errorf("generator = %T, want nil interface", g)
	}
	cfg.Generation = config.GenerationConfig{Mode: "uncertain", Model: "m"}
	if g := buildGenerator(cfg, nil, zap.NewNop()); g == nil {
		t.Error("expected generator")
	}
}

func TestBackends_Needs(t *testing.T) {
	var be backends
	cfg := config.Config{
		Storage:   config.StorageConfig{Driver: config.DriverMemory},
		Index:     config.IndexConfig{Backend: config.IndexMemory},
		Embedding: config.EmbeddingConfig{Cache: true},
	}
	if !be.needsRedis(cfg) {
		t.Error("embedding cache needs redis")
	}
	if be.needsPostgres(cfg) {
		t.Error("memory setup must not need postgres")
	}
	cfg.Index.Backend = config.IndexPGVector
	if !be.needsPostgres(cfg) {
		t.Error("pgvector needs postgres")
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Logf("%s %s returned plain text: %s", method, path, rec.Body.String())
	}
	return rec
}
