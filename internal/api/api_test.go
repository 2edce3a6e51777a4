package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/craftwiki/internal/checksum"
	"github.com/starford/craftwiki/internal/summary"
	"github.com/starford/craftwiki/internal/testutil"
)

const sampleOutline = "# Summary\n\n## Guides\n\n* [Intro](intro)\n* [Advanced](advanced)\n"

// testEnv sets up a temp store, wiki dir, service and router. An empty
// token disables auth.
func testEnv(t *testing.T, token string) (*summary.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, token, nil)
}

func testEnvWithSSE(t *testing.T, token string, sse http.Handler) (*summary.Service, http.Handler) {
	t.Helper()
	_, files := testutil.TestWiki(t)
	svc := summary.NewService(testutil.TestStore(t), summary.WithFiles(files, ""))
	return svc, NewRouter(svc, token != "", token, sse, nil)
}

func do(t *testing.T, h http.Handler, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, target, nil)
	case string:
		req = httptest.NewRequest(method, target, strings.NewReader(b))
		req.Header.Set("Content-Type", "text/markdown")
	default:
		data, _ := json.Marshal(b)
		req = httptest.NewRequest(method, target, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPutThenGetSummary(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/summary", ContentRequest{Content: sampleOutline}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}
	var res SyncResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Success || res.Pages.Created != 2 || res.Categories.Created != 1 {
		t.Errorf("sync result = %+v", res)
	}

	w = do(t, router, http.MethodGet, "/summary", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if w.Body.String() != sampleOutline {
		t.Errorf("summary = %q", w.Body.String())
	}
	if got, want := w.Header().Get("ETag"), `"`+checksum.Sum([]byte(sampleOutline))+`"`; got != want {
		t.Errorf("ETag = %q, want %q", got, want)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestPutSummary_MarkdownBody(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/summary", sampleOutline, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestGetSummary_NotModified(t *testing.T) {
	_, router := testEnv(t, "")
	tag := do(t, router, http.MethodGet, "/summary", nil, nil).Header().Get("ETag")
	w := do(t, router, http.MethodGet, "/summary", nil, map[string]string{"If-None-Match": tag})
	if w.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", w.Code)
	}
}

func TestPutSummary_ParseError(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/summary", ContentRequest{Content: "# Summary\n\n* [Orphan](orphan)\n"}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	var res SyncResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Success || res.Line != 3 || !strings.Contains(res.Message, "page outside category") {
		t.Errorf("result = %+v", res)
	}
}

func TestPutSummary_EmptyContent(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/summary", ContentRequest{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPutSummary_ExplicitClear(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/summary", ContentRequest{Content: sampleOutline}, nil)

	w := do(t, router, http.MethodPut, "/summary", ContentRequest{Content: "# Summary\n"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := do(t, router, http.MethodGet, "/summary", nil, nil).Body.String(); got != "# Summary\n" {
		t.Errorf("summary after clear = %q", got)
	}
}

func TestPutSummary_StaleIfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	tag := do(t, router, http.MethodGet, "/summary", nil, nil).Header().Get("ETag")

	if w := do(t, router, http.MethodPut, "/summary", ContentRequest{Content: sampleOutline}, map[string]string{"If-Match": tag}); w.Code != http.StatusOK {
		t.Fatalf("first put = %d, body = %s", w.Code, w.Body.String())
	}
	// the outline changed, the old tag is stale
	w := do(t, router, http.MethodPut, "/summary", ContentRequest{Content: "# Summary\n\n## Other\n"}, map[string]string{"If-Match": tag})
	if w.Code != http.StatusConflict {
		t.Errorf("stale put = %d, want 409", w.Code)
	}
}

func TestGetOutline(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/summary", ContentRequest{Content: sampleOutline}, nil)

	w := do(t, router, http.MethodGet, "/outline", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out struct {
		Nodes []struct {
			Kind     string `json:"kind"`
			Slug     string `json:"slug"`
			Children []struct {
				Kind string `json:"kind"`
				Slug string `json:"slug"`
			} `json:"children"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Nodes) != 1 || out.Nodes[0].Kind != "category" || out.Nodes[0].Slug != "guides" {
		t.Fatalf("nodes = %+v", out.Nodes)
	}
	if len(out.Nodes[0].Children) != 2 || out.Nodes[0].Children[1].Slug != "advanced" {
		t.Errorf("children = %+v", out.Nodes[0].Children)
	}
}

func TestPageUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/summary", ContentRequest{Content: sampleOutline}, nil)

	w := do(t, router, http.MethodGet, "/pages/intro", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get page = %d", w.Code)
	}
	var page PageDetail
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if w.Header().Get("ETag") != `"`+page.Checksum+`"` {
		t.Errorf("ETag = %q, checksum = %q", w.Header().Get("ETag"), page.Checksum)
	}

	w = do(t, router, http.MethodPut, "/pages/intro", ContentRequest{Content: "v2"}, map[string]string{"If-Match": `"wrong"`})
	if w.Code != http.StatusConflict {
		t.Errorf("stale update = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPut, "/pages/intro", ContentRequest{Content: "v2"}, map[string]string{"If-Match": `"` + page.Checksum + `"`})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Content != "v2" {
		t.Errorf("content = %q", page.Content)
	}
}

func TestPageUpdateWithoutIfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/summary", ContentRequest{Content: sampleOutline}, nil)

	w := do(t, router, http.MethodPut, "/pages/advanced", "# Advanced\n\nRedstone.\n", nil)
	if w.Code != http.StatusOK {
		t.Errorf("update = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestGetPage_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/pages/missing", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/pages/missing", ContentRequest{Content: "x"}, nil); w.Code != http.StatusNotFound {
		t.Errorf("update status = %d, want 404", w.Code)
	}
}

func TestGetPage_EncodedSlug(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/summary", ContentRequest{Content: "# Summary\n\n## A\n\n* [Portals](nether/portals)\n"}, nil)

	for _, target := range []string{"/pages/nether/portals", "/pages/nether%2Fportals"} {
		if w := do(t, router, http.MethodGet, target, nil, nil); w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", target, w.Code)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/summary", ContentRequest{Content: sampleOutline}, nil)

	w := do(t, router, http.MethodGet, "/search?q=advan", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Slug != "advanced" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/summary", ContentRequest{Content: sampleOutline}, nil)

	w := do(t, router, http.MethodPost, "/export", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res ExportResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Written != 2 {
		t.Errorf("written = %d, want 2 page files", res.Written)
	}
}

func TestExportWithoutWikiDir(t *testing.T) {
	svc := summary.NewService(testutil.TestStore(t))
	router := NewRouter(svc, false, "", nil, nil)
	if w := do(t, router, http.MethodPost, "/export", nil, nil); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/summary", nil, map[string]string{"Authorization": "Bearer secret123"})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingOrWrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	for _, hdr := range []map[string]string{nil, {"Authorization": "Bearer wrong"}, {"Authorization": "secret123"}} {
		if w := do(t, router, http.MethodGet, "/summary", nil, hdr); w.Code != http.StatusUnauthorized {
			t.Errorf("headers %v: status = %d, want 401", hdr, w.Code)
		}
	}
}

func TestEvents_AuthProtected(t *testing.T) {
	sse := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	_, router := testEnvWithSSE(t, "tok", sse)

	if w := do(t, router, http.MethodGet, "/events", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/events", nil, map[string]string{"Authorization": "Bearer tok"}); w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}
