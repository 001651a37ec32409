package vizapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vizflow/internal/fakesvc"
	"vizflow/internal/viz"
)

func newFakeClient(t *testing.T) (*Client, *fakesvc.Server) {
	t.Helper()
	fake := fakesvc.New(fakesvc.WithToken("test-token"))
	server := httptest.NewServer(fake.Handler())
	t.Cleanup(server.Close)
	client, err := New(server.URL, "test-token", WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return client, fake
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New("", "tok"); err == nil {
		t.Fatal("expected error for empty base URL")
	}
	if _, err := New("http://x", "tok", WithTimeout(-time.Second)); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}

func TestDoJSON_SendsHeaders(t *testing.T) {
	var gotAuth, gotID, gotCT string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotID = r.Header.Get(RequestIDHeader)
		gotCT = r.Header.Get("Content-Type")
		json.NewEncoder(w).Encode(TitlesRS{VisualizationTitles: []string{"a"}})
	}))
	defer server.Close()

	client, _ := New(server.URL+"/", "secret", WithHTTPClient(server.Client()))
	if _, err := client.GenerateTitles(context.Background(), 1); err != nil {
		t.Fatalf("GenerateTitles: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotID == "" {
		t.Error("missing request id header")
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q", gotCT)
	}
}

func TestDoJSON_TokenSourceError(t *testing.T) {
	client, _ := New("http://127.0.0.1:1", "", WithTokenSource(func(context.Context) (string, error) {
		return "", errors.New("vault sealed")
	}))
	_, err := client.GenerateTitles(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "vault sealed") {
		t.Fatalf("err = %v", err)
	}
}

func TestDoJSON_DetailString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"Goal generation failed"}`)
	}))
	defer server.Close()

	client, _ := New(server.URL, "tok", WithHTTPClient(server.Client()))
	_, err := client.GenerateGoals(context.Background(), 3)
	var se *viz.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.StatusCode != 500 || se.Message != "Goal generation failed" {
		t.Errorf("unexpected error %+v", se)
	}
}

func TestDoJSON_DetailList(t *testing.T) {
	client, _ := newFakeClient(t)
	_, err := client.GenerateGoals(context.Background(), 0)
	var se *viz.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", se.StatusCode)
	}
	if !strings.HasPrefix(se.Message, "body.goalCount: ") {
		t.Errorf("message = %q", se.Message)
	}
}

func TestErrorMessage_Fallback(t *testing.T) {
	got := errorMessage([]byte("<html>oops</html>"), "render visualization", "502 Bad Gateway")
	if got != "render visualization failed (502 Bad Gateway)" {
		t.Errorf("got %q", got)
	}
}

func TestDoJSON_Unauthorized(t *testing.T) {
	fake := fakesvc.New(fakesvc.WithToken("right"))
	server := httptest.NewServer(fake.Handler())
	defer server.Close()

	client, _ := New(server.URL, "wrong", WithHTTPClient(server.Client()))
	_, err := client.GenerateGoals(context.Background(), 2)
	if !viz.IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestDoJSON_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, _ := New(url, "tok")
	_, err := client.GenerateTitles(context.Background(), 1)
	if !viz.IsNetwork(err) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestDoJSON_CancelledContextIsNetwork(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.Inject(fakesvc.PathTitles, fakesvc.Fault{Hang: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.GenerateTitles(ctx, 2)
	if !viz.IsNetwork(err) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded in chain, got %v", err)
	}
}

func TestDoJSON_EmptyBodyIsDataShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := New(server.URL, "tok", WithHTTPClient(server.Client()))
	_, err := client.Explain(context.Background())
	if !viz.IsDataShape(err) {
		t.Fatalf("expected DataShapeError, got %v", err)
	}
}

func TestGenerateGoals_AssignsIcons(t *testing.T) {
	client, _ := newFakeClient(t)
	goals, err := client.GenerateGoals(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 5 {
		t.Fatalf("len = %d", len(goals))
	}
	if goals[0].ID != "0" || goals[4].ID != "4" {
		t.Errorf("ids = %q..%q", goals[0].ID, goals[4].ID)
	}
	if goals[0].Icon != viz.IconFor(0) || goals[4].Icon != viz.IconFor(4) {
		t.Errorf("icons not assigned by position")
	}
}

func TestGenerateGoals_MissingFieldIsDataShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"goals":[{"id":1}]}`)
	}))
	defer server.Close()

	client, _ := New(server.URL, "tok", WithHTTPClient(server.Client()))
	_, err := client.GenerateGoals(context.Background(), 1)
	if !viz.IsDataShape(err) {
		t.Fatalf("expected DataShapeError, got %v", err)
	}
}

func TestAddGoal(t *testing.T) {
	client, _ := newFakeClient(t)
	if _, err := client.GenerateGoals(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	g, err := client.AddGoal(context.Background(), "Top customers by revenue", 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(viz.Goal{ID: "2", Question: "Top customers by revenue"}, g); diff != "" {
		t.Errorf("goal mismatch (-want +got):\n%s", diff)
	}
}

func TestRender_EncodesNumericGoalID(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"visualization":{"type":"image/png","raster":"QUJD"}}`)
	}))
	defer server.Close()

	client, _ := New(server.URL, "tok", WithHTTPClient(server.Client()))
	r, err := client.Render(context.Background(), viz.RenderRequest{
		Goal:               viz.Goal{ID: "7", Question: "q"},
		Renderer:           viz.RendererSecondary,
		VisualizationCount: 1,
		Title:              "Chart",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Data != "QUJD" || r.MimeType != "image/png" {
		t.Errorf("raster = %+v", r)
	}
	goal := got["goal"].(map[string]any)
	if id, ok := goal["id"].(float64); !ok || id != 7 {
		t.Errorf("goal id sent as %T %v, want number 7", goal["id"], goal["id"])
	}
	if got["visualization_option"] != "seaborn" {
		t.Errorf("visualization_option = %v", got["visualization_option"])
	}
}

func TestEncodeGoalID(t *testing.T) {
	tests := []struct {
		in   viz.GoalID
		want string
	}{
		{"3", `3`},
		{"03", `"03"`},
		{"abc", `"abc"`},
	}
	for _, tt := range tests {
		if got := string(encodeGoalID(tt.in)); got != tt.want {
			t.Errorf("encodeGoalID(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRender_MissingRasterIsDataShape(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.Inject(fakesvc.PathRender, fakesvc.Fault{OmitRaster: true})
	_, err := client.Render(context.Background(), viz.RenderRequest{
		Goal: viz.Goal{ID: "0", Question: "q"}, Renderer: viz.RendererPrimary, VisualizationCount: 1, Title: "t",
	})
	if !viz.IsDataShape(err) {
		t.Fatalf("expected DataShapeError, got %v", err)
	}
	if !strings.Contains(err.Error(), "no valid image data") {
		t.Errorf("message = %v", err)
	}
}

func TestRasterResponses_RejectInvalidBase64(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"visualization":{"type":"image/png","raster":"%%% not base64 %%%"}}`)
	}))
	defer server.Close()

	client, _ := New(server.URL, "tok", WithHTTPClient(server.Client()))
	ctx := context.Background()
	_, err := client.Render(ctx, viz.RenderRequest{
		Goal: viz.Goal{ID: "0", Question: "q"}, Renderer: viz.RendererPrimary, VisualizationCount: 1, Title: "t",
	})
	if !viz.IsDataShape(err) || !strings.Contains(err.Error(), "not valid base64") {
		t.Errorf("render: expected DataShapeError, got %v", err)
	}
	if _, err := client.Edit(ctx, "add a legend"); !viz.IsDataShape(err) {
		t.Errorf("edit: expected DataShapeError, got %v", err)
	}
	if _, err := client.Undo(ctx); !viz.IsDataShape(err) {
		t.Errorf("undo: expected DataShapeError, got %v", err)
	}
}

func TestRender_AcceptsDataURIRaster(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"visualization":{"type":"","raster":"data:image/png;base64,QUJD\n"}}`)
	}))
	defer server.Close()

	client, _ := New(server.URL, "tok", WithHTTPClient(server.Client()))
	r, err := client.Render(context.Background(), viz.RenderRequest{
		Goal: viz.Goal{ID: "0", Question: "q"}, Renderer: viz.RendererPrimary, VisualizationCount: 1, Title: "t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Data != "QUJD" || r.MimeType != viz.DefaultMimeType {
		t.Errorf("raster = %+v", r)
	}
}

func TestEditUndo_AgainstFake(t *testing.T) {
	client, fake := newFakeClient(t)
	ctx := context.Background()
	base, err := client.Render(ctx, viz.RenderRequest{
		Goal: viz.Goal{ID: "0", Question: "q"}, Renderer: viz.RendererPrimary, VisualizationCount: 1, Title: "Bar chart",
	})
	if err != nil {
		t.Fatal(err)
	}
	edited, err := client.Edit(ctx, "make the bars red")
	if err != nil {
		t.Fatal(err)
	}
	if edited.Data == base.Data {
		t.Fatal("edit returned the same raster")
	}
	if fake.HistoryDepth("test-token") != 2 {
		t.Fatalf("history depth = %d", fake.HistoryDepth("test-token"))
	}

	res, err := client.Undo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Exhausted || res.Raster.Data != base.Data {
		t.Errorf("undo result = %+v", res)
	}

	res, err = client.Undo(ctx)
	if err != nil {
		t.Fatalf("exhausted undo should not error: %v", err)
	}
	if !res.Exhausted {
		t.Error("expected Exhausted after undoing past the base revision")
	}
}

func TestUndo_ExhaustedFlag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"historyExhausted":true}`)
	}))
	defer server.Close()

	client, _ := New(server.URL, "tok", WithHTTPClient(server.Client()))
	res, err := client.Undo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Exhausted {
		t.Error("expected Exhausted")
	}
}

func TestUndo_NoHistoryIsServiceError(t *testing.T) {
	client, _ := newFakeClient(t)
	res, err := client.Undo(context.Background())
	if !viz.IsService(err) || res.Exhausted {
		t.Fatalf("expected ServiceError, got %+v %v", res, err)
	}
	if !strings.Contains(err.Error(), "No visualization history found") {
		t.Errorf("message = %v", err)
	}
}

func TestUndo_ExhaustedStatuses(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		detail        string
		wantExhausted bool
	}{
		{"wrapped in 500", http.StatusInternalServerError, "Error during handle undo editing: 400: No previous edits to undo", true},
		{"bare 400", http.StatusBadRequest, "No previous edits to undo", true},
		{"conflict", http.StatusConflict, "history empty", true},
		{"other 500", http.StatusInternalServerError, "Error during handle undo editing: database down", false},
		{"bad gateway", http.StatusBadGateway, "upstream", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"detail": tt.detail})
			}))
			defer server.Close()

			client, _ := New(server.URL, "tok", WithHTTPClient(server.Client()))
			res, err := client.Undo(context.Background())
			if tt.wantExhausted {
				if err != nil || !res.Exhausted {
					t.Fatalf("Undo = %+v, %v; want exhausted", res, err)
				}
				return
			}
			if !viz.IsService(err) || res.Exhausted {
				t.Fatalf("Undo = %+v, %v; want ServiceError", res, err)
			}
		})
	}
}

func TestExplainEvaluate_AgainstFake(t *testing.T) {
	client, _ := newFakeClient(t)
	ctx := context.Background()
	if _, err := client.Render(ctx, viz.RenderRequest{
		Goal: viz.Goal{ID: "1", Question: "How?"}, Renderer: viz.RendererPrimary, VisualizationCount: 1, Title: "Line chart",
	}); err != nil {
		t.Fatal(err)
	}
	text, err := client.Explain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Line chart") {
		t.Errorf("explanation = %q", text)
	}
	evals, err := client.Evaluate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(evals) != 6 {
		t.Fatalf("len(evals) = %d", len(evals))
	}
	if _, ok := viz.MeanScore(evals); !ok {
		t.Error("scores should parse")
	}
}

func TestClearSession(t *testing.T) {
	client, fake := newFakeClient(t)
	ctx := context.Background()
	if _, err := client.Render(ctx, viz.RenderRequest{
		Goal: viz.Goal{ID: "0", Question: "q"}, Renderer: viz.RendererPrimary, VisualizationCount: 1, Title: "t",
	}); err != nil {
		t.Fatal(err)
	}
	if err := client.ClearSession(ctx); err != nil {
		t.Fatal(err)
	}
	if fake.HistoryDepth("test-token") != 0 {
		t.Error("history should be empty after clear")
	}
	if got := fake.Calls(fakesvc.PathClear); got != 1 {
		t.Errorf("clear calls = %d", got)
	}
}

func TestReadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".vizflow-token")
	if err := os.WriteFile(path, []byte("  abc123  \nsecond line\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := ReadToken(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "abc123" {
		t.Errorf("ReadToken = %q", got)
	}
}
