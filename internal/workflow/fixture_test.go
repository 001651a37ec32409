package workflow

import (
	"context"
	"net/http/httptest"
	"sync"

	"vizflow/internal/fakesvc"
	"vizflow/internal/rendercache"
	"vizflow/internal/viz"
	"vizflow/internal/vizapi"
)

const testToken = "test-token"

// countingGateway wraps a Gateway, counting calls per method. When hold is
// set every call blocks until hold is closed or the context ends.
type countingGateway struct {
	inner Gateway

	mu      sync.Mutex
	calls   map[string]int
	hold    chan struct{}
	started chan string

	goals func(n int) ([]viz.Goal, error)
}

func newCountingGateway(inner Gateway) *countingGateway {
	return &countingGateway{inner: inner, calls: make(map[string]int), started: make(chan string, 16)}
}

func (g *countingGateway) holdCalls() func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.hold = ch
	return func() {
		g.mu.Lock()
		g.hold = nil
		g.mu.Unlock()
		close(ch)
	}
}

func (g *countingGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *countingGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *countingGateway) hit(ctx context.Context, name string) error {
	g.mu.Lock()
	g.calls[name]++
	hold := g.hold
	g.mu.Unlock()
	if hold == nil {
		return nil
	}
	g.started <- name
	select {
	case <-hold:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *countingGateway) GenerateGoals(ctx context.Context, n int) ([]viz.Goal, error) {
	if err := g.hit(ctx, "GenerateGoals"); err != nil {
		return nil, err
	}
	if g.goals != nil {
		return g.goals(n)
	}
	return g.inner.GenerateGoals(ctx, n)
}

func (g *countingGateway) AddGoal(ctx context.Context, d string, n int) (viz.Goal, error) {
	if err := g.hit(ctx, "AddGoal"); err != nil {
		return viz.Goal{}, err
	}
	return g.inner.AddGoal(ctx, d, n)
}

func (g *countingGateway) GenerateTitles(ctx context.Context, n int) ([]string, error) {
	if err := g.hit(ctx, "GenerateTitles"); err != nil {
		return nil, err
	}
	return g.inner.GenerateTitles(ctx, n)
}

func (g *countingGateway) Render(ctx context.Context, r viz.RenderRequest) (viz.Raster, error) {
	if err := g.hit(ctx, "Render"); err != nil {
		return viz.Raster{}, err
	}
	return g.inner.Render(ctx, r)
}

func (g *countingGateway) Edit(ctx context.Context, instruction string) (viz.Raster, error) {
	if err := g.hit(ctx, "Edit"); err != nil {
		return viz.Raster{}, err
	}
	return g.inner.Edit(ctx, instruction)
}

func (g *countingGateway) Undo(ctx context.Context) (viz.UndoResult, error) {
	if err := g.hit(ctx, "Undo"); err != nil {
		return viz.UndoResult{}, err
	}
	return g.inner.Undo(ctx)
}

func (g *countingGateway) Explain(ctx context.Context) (string, error) {
	if err := g.hit(ctx, "Explain"); err != nil {
		return "", err
	}
	return g.inner.Explain(ctx)
}

func (g *countingGateway) Evaluate(ctx context.Context) ([]viz.Evaluation, error) {
	if err := g.hit(ctx, "Evaluate"); err != nil {
		return nil, err
	}
	return g.inner.Evaluate(ctx)
}

func (g *countingGateway) ClearSession(ctx context.Context) error {
	if err := g.hit(ctx, "ClearSession"); err != nil {
		return err
	}
	return g.inner.ClearSession(ctx)
}

// fixture is a session wired to the fake service through the real client.
type fixture struct {
	fake   *fakesvc.Server
	server *httptest.Server
	gw     *countingGateway
	cache  rendercache.Cache
	sess   *Session
}

func newFixture(mods ...func(*Options)) (*fixture, error) {
	fake := fakesvc.New(fakesvc.WithToken(testToken))
	server := httptest.NewServer(fake.Handler())
	client, err := vizapi.New(server.URL, testToken, vizapi.WithHTTPClient(server.Client()))
	if err != nil {
		server.Close()
		return nil, err
	}
	gw := newCountingGateway(client)
	opts := Options{Gateway: gw, Cache: rendercache.NewMemCache()}
	for _, m := range mods {
		m(&opts)
	}
	sess, err := Open(opts)
	if err != nil {
		server.Close()
		return nil, err
	}
	return &fixture{fake: fake, server: server, gw: gw, cache: opts.Cache, sess: sess}, nil
}

func (f *fixture) close() {
	_ = f.sess.Close()
	f.server.Close()
}

// toArtifact drives the session from Idle to ArtifactReady and returns the
// rendered artifact.
func (f *fixture) toArtifact(ctx context.Context) (viz.Artifact, error) {
	goals, err := f.sess.Goals.Generate(ctx, 3)
	if err != nil {
		return viz.Artifact{}, err
	}
	if _, err := f.sess.Goals.Select(goals[0].ID); err != nil {
		return viz.Artifact{}, err
	}
	ts, err := f.sess.Visualizer.RequestTitles(ctx, 2)
	if err != nil {
		return viz.Artifact{}, err
	}
	return f.sess.Visualizer.RequestRender(ctx, ts.Titles[0], viz.RendererPrimary, 2)
}
