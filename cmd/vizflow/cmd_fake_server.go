package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vizflow/internal/fakesvc"
	"vizflow/internal/logging"
)

var fakeServerFlags struct {
	addr  string
	token string
}

var fakeServerCmd = &cobra.Command{
	Use:   "fake-server",
	Short: "Run the local stand-in for the analysis service",
	Long: `Serves the analysis service HTTP contract from memory. Goals, titles,
explanations and evaluations are canned; rasters are small deterministic
PNGs that change with every edit. Point --base-url at the printed address
for offline demos.`,
	RunE: runFakeServer,
}

func init() {
	f := fakeServerCmd.Flags()
	f.StringVar(&fakeServerFlags.addr, "addr", "127.0.0.1:8765", "Listen address")
	f.StringVar(&fakeServerFlags.token, "token", "", "Require this bearer token (empty accepts any)")
}

func runFakeServer(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	url, err := startFake(gctx, g, fakeServerFlags.addr, fakeServerFlags.token)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Fake analysis service listening on %s\n", url)
	return g.Wait()
}

// startFake serves a fake service on addr until ctx ends. The returned URL
// is the base URL clients should use.
func startFake(ctx context.Context, g *errgroup.Group, addr, token string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	log := logging.New("fakesvc")
	fake := fakesvc.New(fakesvc.WithToken(token), fakesvc.WithLogger(log))
	hs := &http.Server{Handler: fake.Handler(), ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("fake service: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("shutting down fake service")
		return hs.Shutdown(shutdownCtx)
	})
	return "http://" + ln.Addr().String(), nil
}
