// Package mcp exposes a visualization workflow session as MCP tools.
//
// One Server drives one workflow.Session. Tool handlers are thin: they
// translate arguments, call the session, and shape the result. Every
// workflow failure is also visible through get_notices, so an agent that
// ignores a tool error can still discover it later.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"vizflow/internal/format"
	"vizflow/internal/logging"
	"vizflow/internal/viz"
	"vizflow/internal/workflow"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultGoalCount = 5

// Options configures a Server.
type Options struct {
	Version string
	// GoalCount is used when generate_goals or add_goal omit goal_count.
	GoalCount int
	// Renderer is used when render_visualization omits renderer.
	Renderer viz.Renderer
	Logger   *slog.Logger
}

// Server wraps the MCP SDK server around a workflow session.
type Server struct {
	MCPServer *sdkmcp.Server
	Events    *EventLog

	sess      *workflow.Session
	goalCount int
	renderer  viz.Renderer
	log       *slog.Logger

	mu              sync.Mutex
	lastExplanation string
	lastExplainedAt string // artifact digest the explanation belongs to
}

// NewServer registers the workflow tools for sess.
func NewServer(sess *workflow.Session, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.GoalCount == 0 {
		opts.GoalCount = defaultGoalCount
	}
	if !opts.Renderer.Valid() {
		opts.Renderer = viz.RendererPrimary
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("mcp")
	}
	s := &Server{
		Events:    &EventLog{},
		sess:      sess,
		goalCount: opts.GoalCount,
		renderer:  opts.Renderer,
		log:       opts.Logger,
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "vizflow", Version: opts.Version},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "generate_goals",
		Description: "Ask the analysis service for a fresh list of analysis goals. Replaces any previous goals and discards titles and the current visualization.",
	}, s.handleGenerateGoals)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "add_goal",
		Description: "Add a user-written goal to the catalog. The current selection and visualization are kept.",
	}, s.handleAddGoal)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "select_goal",
		Description: "Select the goal to visualize by id. Clears titles and the current visualization.",
	}, s.handleSelectGoal)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "request_titles",
		Description: "Request candidate visualization titles for the selected goal.",
	}, s.handleRequestTitles)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "render_visualization",
		Description: "Render one of the candidate titles. Returns the image and its summary.",
	}, s.handleRender)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "back_to_titles",
		Description: "Leave the current visualization and return to the title list it was chosen from.",
	}, s.handleBackToTitles)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "edit_visualization",
		Description: "Apply a natural-language edit instruction to the current visualization.",
	}, s.handleEdit)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "undo_edit",
		Description: "Revert the most recent edit. exhausted=true means there was nothing left to undo.",
	}, s.handleUndo)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "explain_visualization",
		Description: "Explain the current visualization. Includes a diff against the previous explanation when the visualization changed since.",
	}, s.handleExplain)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "evaluate_visualization",
		Description: "Score the current visualization along the service's quality dimensions.",
	}, s.handleEvaluate)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "clear_session",
		Description: "Clear the remote edit history and the local render cache, and return to idle.",
	}, s.handleClear)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_state",
		Description: "Describe the workflow state without touching the network.",
	}, s.handleGetState)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_notices",
		Description: "List the failure notices posted by earlier operations.",
	}, s.handleGetNotices)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "dismiss_notice",
		Description: "Dismiss one notice by id, or all notices.",
	}, s.handleDismissNotice)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "cancel_request",
		Description: "Abort the request currently in flight, if any.",
	}, s.handleCancel)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_events",
		Description: "Read the tool call event log. Returns all events, or events since a given index.",
	}, s.handleGetEvents)
}

// --- Tool input/output types ---

type generateGoalsInput struct {
	GoalCount int `json:"goal_count,omitempty" jsonschema:"number of goals to generate (1-10, default from config)"`
}

type goalsOutput struct {
	Goals []viz.Goal     `json:"goals"`
	Stage workflow.Stage `json:"stage"`
}

type addGoalInput struct {
	Description string `json:"description" jsonschema:"the goal question in plain language"`
	GoalCount   int    `json:"goal_count,omitempty" jsonschema:"goal count shown to the user (default from config)"`
}

type addGoalOutput struct {
	Goal  viz.Goal   `json:"goal"`
	Goals []viz.Goal `json:"goals"`
}

type selectGoalInput struct {
	GoalID string `json:"goal_id" jsonschema:"id of a goal from generate_goals or add_goal"`
}

type selectGoalOutput struct {
	Goal  viz.Goal       `json:"goal"`
	Stage workflow.Stage `json:"stage"`
}

type requestTitlesInput struct {
	VisualizationCount int `json:"visualization_count,omitempty" jsonschema:"number of titles to request (1-10, default keeps the session count)"`
}

type titlesOutput struct {
	Titles []string `json:"titles"`
	Count  int      `json:"visualization_count"`
}

type renderInput struct {
	Title              string `json:"title" jsonschema:"one of the titles returned by request_titles"`
	Renderer           string `json:"renderer,omitempty" jsonschema:"primary (matplotlib) or secondary (seaborn)"`
	VisualizationCount int    `json:"visualization_count,omitempty" jsonschema:"visualization count sent with the render (default keeps the session count)"`
	IncludeDataURI     bool   `json:"include_data_uri,omitempty" jsonschema:"also return the image as a data URI in the JSON result"`
}

type artifactOutput struct {
	Artifact workflow.ArtifactSummary `json:"artifact"`
	DataURI  string                   `json:"data_uri,omitempty"`
}

type editInput struct {
	Instruction    string `json:"instruction" jsonschema:"what to change, e.g. make the bars red"`
	IncludeDataURI bool   `json:"include_data_uri,omitempty" jsonschema:"also return the image as a data URI in the JSON result"`
}

type undoOutput struct {
	Exhausted bool                     `json:"exhausted"`
	Artifact  workflow.ArtifactSummary `json:"artifact"`
}

type explainOutput struct {
	Explanation string `json:"explanation"`
	Changes     string `json:"changes,omitempty"`
}

type evaluateOutput struct {
	Evaluations []viz.Evaluation `json:"evaluations"`
	MeanScore   *float64         `json:"mean_score,omitempty"`
	Table       string           `json:"table"`
}

type stageOutput struct {
	Stage workflow.Stage `json:"stage"`
}

type noticesOutput struct {
	Notices []noticeView `json:"notices"`
}

type noticeView struct {
	ID      int      `json:"id"`
	Kind    viz.Kind `json:"kind"`
	Op      string   `json:"op"`
	Message string   `json:"message"`
	At      string   `json:"at"`
}

type dismissInput struct {
	ID  int  `json:"id,omitempty" jsonschema:"notice id to dismiss"`
	All bool `json:"all,omitempty" jsonschema:"dismiss every notice"`
}

type dismissOutput struct {
	Dismissed int `json:"dismissed"`
}

type cancelOutput struct {
	Cancelled bool   `json:"cancelled"`
	Op        string `json:"op,omitempty"`
}

type getEventsInput struct {
	Since int `json:"since,omitempty" jsonschema:"return events from this index onward (0 = all)"`
}

type getEventsOutput struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}

// --- Handlers ---

func (s *Server) handleGenerateGoals(ctx context.Context, _ *sdkmcp.CallToolRequest, input generateGoalsInput) (*sdkmcp.CallToolResult, goalsOutput, error) {
	n := input.GoalCount
	if n == 0 {
		n = s.goalCount
	}
	goals, err := s.sess.Goals.Generate(ctx, n)
	if err != nil {
		return nil, goalsOutput{}, s.failed("generate_goals", err)
	}
	s.Events.Emit("generate_goals", "", map[string]string{"count": fmt.Sprint(len(goals))})
	return nil, goalsOutput{Goals: goals, Stage: s.sess.Stage()}, nil
}

func (s *Server) handleAddGoal(ctx context.Context, _ *sdkmcp.CallToolRequest, input addGoalInput) (*sdkmcp.CallToolResult, addGoalOutput, error) {
	n := input.GoalCount
	if n == 0 {
		n = s.goalCount
	}
	g, err := s.sess.Goals.Add(ctx, input.Description, n)
	if err != nil {
		return nil, addGoalOutput{}, s.failed("add_goal", err)
	}
	s.Events.Emit("add_goal", string(g.ID), nil)
	return nil, addGoalOutput{Goal: g, Goals: s.sess.Goals.List()}, nil
}

func (s *Server) handleSelectGoal(_ context.Context, _ *sdkmcp.CallToolRequest, input selectGoalInput) (*sdkmcp.CallToolResult, selectGoalOutput, error) {
	g, err := s.sess.Goals.Select(viz.GoalID(strings.TrimSpace(input.GoalID)))
	if err != nil {
		return nil, selectGoalOutput{}, s.failed("select_goal", err)
	}
	s.Events.Emit("select_goal", string(g.ID), nil)
	return nil, selectGoalOutput{Goal: g, Stage: s.sess.Stage()}, nil
}

func (s *Server) handleRequestTitles(ctx context.Context, _ *sdkmcp.CallToolRequest, input requestTitlesInput) (*sdkmcp.CallToolResult, titlesOutput, error) {
	ts, err := s.sess.Visualizer.RequestTitles(ctx, s.countOr(input.VisualizationCount))
	if err != nil {
		return nil, titlesOutput{}, s.failed("request_titles", err)
	}
	s.Events.Emit("request_titles", string(ts.GoalID), map[string]string{"count": fmt.Sprint(len(ts.Titles))})
	return nil, titlesOutput{Titles: ts.Titles, Count: ts.Count}, nil
}

func (s *Server) handleRender(ctx context.Context, _ *sdkmcp.CallToolRequest, input renderInput) (*sdkmcp.CallToolResult, artifactOutput, error) {
	r := s.renderer
	if strings.TrimSpace(input.Renderer) != "" {
		var err error
		if r, err = viz.ParseRenderer(input.Renderer); err != nil {
			return nil, artifactOutput{}, s.failed("render_visualization", viz.Validationf("render", "%v", err))
		}
	}
	a, err := s.sess.Visualizer.RequestRender(ctx, input.Title, r, s.countOr(input.VisualizationCount))
	if err != nil {
		return nil, artifactOutput{}, s.failed("render_visualization", err)
	}
	s.Events.Emit("render_visualization", string(a.SourceGoal.ID), map[string]string{"title": a.SourceTitle, "digest": a.Digest()})
	return s.artifactResult(a, input.IncludeDataURI)
}

func (s *Server) handleBackToTitles(_ context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, titlesOutput, error) {
	ts, err := s.sess.Visualizer.BackToTitles()
	if err != nil {
		return nil, titlesOutput{}, s.failed("back_to_titles", err)
	}
	s.Events.Emit("back_to_titles", string(ts.GoalID), nil)
	return nil, titlesOutput{Titles: ts.Titles, Count: ts.Count}, nil
}

func (s *Server) handleEdit(ctx context.Context, _ *sdkmcp.CallToolRequest, input editInput) (*sdkmcp.CallToolResult, artifactOutput, error) {
	a, err := s.sess.Editor.EditByInstruction(ctx, input.Instruction)
	if err != nil {
		return nil, artifactOutput{}, s.failed("edit_visualization", err)
	}
	s.Events.Emit("edit_visualization", string(a.SourceGoal.ID), map[string]string{"digest": a.Digest()})
	return s.artifactResult(a, input.IncludeDataURI)
}

func (s *Server) handleUndo(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, undoOutput, error) {
	out, err := s.sess.Editor.UndoLast(ctx)
	if err != nil {
		return nil, undoOutput{}, s.failed("undo_edit", err)
	}
	s.Events.Emit("undo_edit", string(out.Artifact.SourceGoal.ID), map[string]string{"exhausted": fmt.Sprint(out.Exhausted)})
	return nil, undoOutput{Exhausted: out.Exhausted, Artifact: summarize(out.Artifact)}, nil
}

func (s *Server) handleExplain(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, explainOutput, error) {
	text, err := s.sess.Editor.Explain(ctx)
	if err != nil {
		return nil, explainOutput{}, s.failed("explain_visualization", err)
	}
	out := explainOutput{Explanation: text}
	digest := ""
	if a, ok := s.sess.Editor.Current(); ok {
		digest = a.Digest()
	}

	s.mu.Lock()
	if s.lastExplanation != "" && s.lastExplainedAt != digest && s.lastExplanation != text {
		out.Changes = format.ExplanationDiff(s.lastExplanation, text)
	}
	s.lastExplanation, s.lastExplainedAt = text, digest
	s.mu.Unlock()

	s.Events.Emit("explain_visualization", "", map[string]string{"digest": digest})
	return nil, out, nil
}

func (s *Server) handleEvaluate(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, evaluateOutput, error) {
	evals, err := s.sess.Editor.EvaluateAndRepair(ctx)
	if err != nil {
		return nil, evaluateOutput{}, s.failed("evaluate_visualization", err)
	}
	out := evaluateOutput{
		Evaluations: evals,
		Table:       format.EvaluationTable(format.Markdown, evals),
	}
	if mean, ok := viz.MeanScore(evals); ok {
		out.MeanScore = &mean
	}
	s.Events.Emit("evaluate_visualization", "", map[string]string{"dimensions": fmt.Sprint(len(evals))})
	return nil, out, nil
}

func (s *Server) handleClear(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, stageOutput, error) {
	if err := s.sess.Editor.Clear(ctx); err != nil {
		return nil, stageOutput{}, s.failed("clear_session", err)
	}
	s.mu.Lock()
	s.lastExplanation, s.lastExplainedAt = "", ""
	s.mu.Unlock()
	s.Events.Emit("clear_session", "", nil)
	return nil, stageOutput{Stage: s.sess.Stage()}, nil
}

func (s *Server) handleGetState(_ context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, workflow.Summary, error) {
	sum := workflow.Summarize(s.sess.Snapshot())
	if op, busy := s.sess.Busy(); busy {
		sum.InFlight = op
	}
	return nil, sum, nil
}

func (s *Server) handleGetNotices(_ context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, noticesOutput, error) {
	list := s.sess.Notices().List()
	out := noticesOutput{Notices: make([]noticeView, 0, len(list))}
	for _, n := range list {
		out.Notices = append(out.Notices, noticeView{
			ID:      n.ID,
			Kind:    n.Kind,
			Op:      n.Op,
			Message: n.Message,
			At:      n.At.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return nil, out, nil
}

func (s *Server) handleDismissNotice(_ context.Context, _ *sdkmcp.CallToolRequest, input dismissInput) (*sdkmcp.CallToolResult, dismissOutput, error) {
	board := s.sess.Notices()
	if input.All {
		n := len(board.List())
		board.DismissAll()
		return nil, dismissOutput{Dismissed: n}, nil
	}
	if !board.Dismiss(input.ID) {
		return nil, dismissOutput{}, fmt.Errorf("dismiss_notice: no notice with id %d", input.ID)
	}
	return nil, dismissOutput{Dismissed: 1}, nil
}

func (s *Server) handleCancel(_ context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, cancelOutput, error) {
	op, _ := s.sess.Busy()
	if !s.sess.Cancel() {
		return nil, cancelOutput{}, nil
	}
	s.Events.Emit("cancel_request", "", map[string]string{"op": op})
	return nil, cancelOutput{Cancelled: true, Op: op}, nil
}

func (s *Server) handleGetEvents(_ context.Context, _ *sdkmcp.CallToolRequest, input getEventsInput) (*sdkmcp.CallToolResult, getEventsOutput, error) {
	events := s.Events.Since(input.Since)
	if events == nil {
		events = []Event{}
	}
	return nil, getEventsOutput{Events: events, Total: s.Events.Len()}, nil
}

// artifactResult returns the artifact summary as JSON text followed by the
// decoded image.
func (s *Server) artifactResult(a viz.Artifact, withURI bool) (*sdkmcp.CallToolResult, artifactOutput, error) {
	out := artifactOutput{Artifact: summarize(a)}
	if withURI {
		out.DataURI = a.DataURI()
	}
	raw, err := a.Decode()
	if err != nil {
		return nil, artifactOutput{}, viz.DataShapef("render", "%v", err)
	}
	text, err := json.Marshal(out)
	if err != nil {
		return nil, artifactOutput{}, fmt.Errorf("marshal artifact summary: %w", err)
	}
	res := &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: string(text)},
			&sdkmcp.ImageContent{Data: raw, MIMEType: a.MimeType},
		},
	}
	return res, out, nil
}

// failed records a tool failure in the event log. The workflow has already
// logged it and posted the notice.
func (s *Server) failed(tool string, err error) error {
	s.Events.Emit("error", "", map[string]string{"tool": tool, "kind": string(viz.Classify(err))})
	return err
}

// Shutdown aborts any request in flight.
func (s *Server) Shutdown() {
	if s.sess.Cancel() {
		s.log.Info("cancelled in-flight request on shutdown")
	}
}

// countOr returns n, or the session's current visualization count when n
// is zero.
func (s *Server) countOr(n int) int {
	if n != 0 {
		return n
	}
	return s.sess.Count()
}

func summarize(a viz.Artifact) workflow.ArtifactSummary {
	return workflow.ArtifactSummary{
		MimeType:    a.MimeType,
		Digest:      a.Digest(),
		Bytes:       len(a.Payload),
		SourceTitle: a.SourceTitle,
		SourceGoal:  a.SourceGoal.ID,
	}
}
