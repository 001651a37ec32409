package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vizflow/internal/logging"
	mcpserver "vizflow/internal/mcp"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var serveFlags struct {
	fake bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the visualization
workflow as tools (generate_goals, select_goal, request_titles,
render_visualization, edit_visualization, ...).

With --fake the server talks to an in-process stand-in service instead of
the configured base URL.

The server monitors for parent process death and exits when the host that
launched it goes away.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveFlags.fake, "fake", false, "Use an in-process fake analysis service")
}

func runServe(cmd *cobra.Command, _ []string) error {
	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	cfg := appConfig
	if serveFlags.fake {
		token, err := cfg.ResolveToken()
		if err != nil {
			return err
		}
		url, err := startFake(gctx, g, "127.0.0.1:0", token)
		if err != nil {
			return err
		}
		cfg.Service.BaseURL = url
	}

	sess, err := openSession(cfg)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	defer sess.Close()

	srv := mcpserver.NewServer(sess, mcpserver.Options{
		Version:   version,
		GoalCount: cfg.Workflow.GoalCount,
		Renderer:  cfg.Renderer(),
	})
	defer srv.Shutdown()

	mcpserver.WatchStdin(gctx, nil, cancel)

	log := logging.New("mcp")
	log.Info("starting vizflow MCP server over stdio (parent watchdog active)", "session", sess.ID(), "fake", serveFlags.fake)
	g.Go(func() error {
		defer cancel()
		err := srv.MCPServer.Run(gctx, &sdkmcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
