package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/util"
	"github.com/shopspring/decimal"
)

type memTokens struct {
	mu    sync.Mutex
	token string
}

func (m *memTokens) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *memTokens) DeleteToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

func newTestClient(t *testing.T, h http.Handler, tokens *memTokens, onUnauthorized func()) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:        srv.URL,
		RetryMax:       2,
		Tokens:         tokens,
		OnUnauthorized: onUnauthorized,
		HTTPClient:     srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Keep retry waits short.
	c.reads.RetryWaitMin = 0
	c.reads.RetryWaitMax = 0
	return c
}

func TestUnauthorizedPurgesToken(t *testing.T) {
	tokens := &memTokens{token: "abc"}
	var signalled int32
	var sawToken string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawToken = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	})
	c := newTestClient(t, h, tokens, func() {
		// The token must already be gone when navigation is signalled.
		if tok, _ := tokens.Token(); tok != "" {
			t.Errorf("token still present during OnUnauthorized: %q", tok)
		}
		atomic.AddInt32(&signalled, 1)
	})

	_, err := c.Unmatched().List(context.Background())
	if !util.IsKind(err, util.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if sawToken != "Bearer abc" {
		t.Errorf("Authorization header = %q, want Bearer abc", sawToken)
	}
	if tok, _ := tokens.Token(); tok != "" {
		t.Errorf("token = %q after 401, want absent", tok)
	}
	if atomic.LoadInt32(&signalled) != 1 {
		t.Errorf("OnUnauthorized called %d times, want 1", signalled)
	}

	// The next call goes out without credentials.
	c.Unmatched().List(context.Background())
	if sawToken != "" {
		t.Errorf("second call sent Authorization %q", sawToken)
	}
}

func TestRequestHeaders(t *testing.T) {
	tokens := &memTokens{token: "tok"}
	var got http.Header
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`[]`))
	})
	c := newTestClient(t, h, tokens, nil)

	if _, err := c.NewlyMapped().List(context.Background()); err != nil {
		t.Fatalf("List: %v", err)
	}
	if got.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", got.Get("Accept"))
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    util.Kind
		message string
	}{
		{"string detail", 400, `{"detail":"Master pharmacy ID not found"}`, util.KindConflict, "Master pharmacy ID not found"},
		{"validation detail", 422, `{"detail":[{"loc":["body","ratio"],"msg":"field required","type":"value_error"}]}`, util.KindConflict, "ratio: field required"},
		{"no detail", 409, `oops`, util.KindConflict, "request rejected (409 Conflict)"},
		{"server error", 500, `{"detail":"Failed to map unmatched record"}`, util.KindUnavailable, "Failed to map unmatched record"},
		{"server error without body", 502, ``, util.KindUnavailable, "backend error (502 Bad Gateway)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			c := newTestClient(t, h, &memTokens{}, nil)

			err := c.Unmatched().Map(context.Background(), 1, "P1")
			var e *util.Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *util.Error, got %v", err)
			}
			if e.Kind != tt.kind || e.Message != tt.message || e.Status != tt.status {
				t.Errorf("got {%s %q %d}, want {%s %q %d}", e.Kind, e.Message, e.Status, tt.kind, tt.message, tt.status)
			}
		})
	}
}

func TestRetriesOnlyReads(t *testing.T) {
	var gets, posts int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&gets, 1)
		} else {
			atomic.AddInt32(&posts, 1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := newTestClient(t, h, &memTokens{}, nil)

	_, err := c.SplitRules().List(context.Background())
	if !util.IsKind(err, util.KindUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
	if gets != 3 {
		t.Errorf("GET attempts = %d, want 3 (1 + 2 retries)", gets)
	}

	c.Analytics().ClearCache(context.Background())
	if posts != 1 {
		t.Errorf("POST attempts = %d, want 1", posts)
	}
}

func TestUnreachableIsUnavailable(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", RetryMax: 0, Tokens: &memTokens{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Auth().Me(context.Background())
	if !util.IsKind(err, util.KindUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{BaseURL: "not a url", Tokens: &memTokens{}}); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := New(Config{BaseURL: "http://x"}); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("missing token store should be rejected, got %v", err)
	}
}

func TestMasterDataEndpoints(t *testing.T) {
	var createBody map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/master-data", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("skip") != "1000" || r.URL.Query().Get("limit") != "1000" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"data":[{"id":5,"pharmacy_id":"P1","pharmacy_names":"A","product_names":"B","product_id":"C","product_price":12.5}],"total":1001}`))
		case http.MethodPost:
			json.NewDecoder(r.Body).Decode(&createBody)
			w.Write([]byte(`{"id":77,"pharmacy_id":"P9","pharmacy_names":"N","product_names":"X","product_id":"Y"}`))
		}
	})
	mux.HandleFunc("/api/v1/master-data/duplicates", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c := newTestClient(t, mux, &memTokens{}, nil)
	ctx := context.Background()

	page, err := c.MasterData().List(ctx, 1000, 1000)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1001 || len(page.Data) != 1 || !page.Data[0].ProductPrice.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("unexpected page %+v", page)
	}

	created, err := c.MasterData().Create(ctx, model.MasterRow{ID: 3, PharmacyID: "P9", PharmacyNames: "N", ProductNames: "X", ProductID: "Y"})
	if err != nil || created.ID != 77 {
		t.Fatalf("Create = %+v, %v", created, err)
	}
	if _, hasID := createBody["id"]; hasID {
		t.Error("create body must not carry an id")
	}

	groups, ok, err := c.MasterData().Duplicates(ctx)
	if err != nil || ok || groups != nil {
		t.Errorf("Duplicates on 404 = %v, %v, %v; want absent", groups, ok, err)
	}
}

func TestSplitRulesListShapes(t *testing.T) {
	bodies := []string{
		`[{"id":1,"pharmacy_id":"P1","product_key":"P1|EXACT|A","rules":[{"master_mapping_id":1,"ratio":100}]}]`,
		`{"rules":[{"id":1,"pharmacy_id":"P1","product_key":"P1|EXACT|A","rules":[{"master_mapping_id":1,"ratio":100}]}]}`,
	}
	for _, body := range bodies {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(body)) })
		c := newTestClient(t, h, &memTokens{}, nil)

		rules, err := c.SplitRules().List(context.Background())
		if err != nil || len(rules) != 1 || rules[0].ProductKey != "P1|EXACT|A" {
			t.Errorf("List(%s) = %+v, %v", body, rules, err)
		}
	}
}

func TestSplitRuleCreateBody(t *testing.T) {
	var raw string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		w.Write([]byte(`{"id":7,"invoices_reprocessed":12}`))
	})
	c := newTestClient(t, h, &memTokens{}, nil)

	out, err := c.SplitRules().Create(context.Background(), model.SplitRuleCreate{
		PharmacyID: "P1",
		ProductKey: "P1|EXACT|PARACETAMOL",
		Rules:      []model.SplitEntry{{MasterMappingID: 1, Ratio: decimal.RequireFromString("100")}},
	})
	if err != nil || out.ID != 7 || out.InvoicesReprocessed != 12 {
		t.Fatalf("Create = %+v, %v", out, err)
	}
	if !strings.Contains(raw, `"ratio":100`) {
		t.Errorf("ratio should be sent as a number: %s", raw)
	}
}

func TestExportBlob(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", mimeXLSX)
		w.Header().Set("Content-Disposition", `attachment; filename="unmatched_2024.xlsx"`)
		w.Write([]byte("PK\x03\x04opaque"))
	})
	c := newTestClient(t, h, &memTokens{}, nil)

	blob, err := c.Unmatched().ExportXlsx(context.Background())
	if err != nil {
		t.Fatalf("ExportXlsx: %v", err)
	}
	if blob.Filename != "unmatched_2024.xlsx" || blob.ContentType != mimeXLSX || string(blob.Body) != "PK\x03\x04opaque" {
		t.Errorf("unexpected blob %+v", blob)
	}

	path, err := blob.Save(t.TempDir())
	if err != nil || !strings.HasSuffix(path, "unmatched_2024.xlsx") {
		t.Errorf("Save = %q, %v", path, err)
	}
}

func TestDetail(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail":"nope"}`, "nope"},
		{`{"detail":{"message":"wrapped"}}`, "wrapped"},
		{`{"error":{"message":"enveloped"}}`, "enveloped"},
		{`{"message":"plain"}`, "plain"},
		{`not json`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		if got := Detail([]byte(tt.body)); got != tt.want {
			t.Errorf("Detail(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
