package mcp

import (
	"context"
	"os"
	"time"

	"vizflow/internal/logging"
)

// parentPollInterval is how often WatchStdin checks the parent pid.
var parentPollInterval = 2 * time.Second

// WatchStdin cancels the server when the process that launched it goes
// away. An MCP host that exits without closing our stdin would otherwise
// leave the server running with nobody to talk to.
//
// It must not read stdin: the SDK's stdio transport owns it, and any byte
// taken here corrupts the JSON-RPC stream.
//
// The goroutine exits when ctx is cancelled or the parent is gone.
func WatchStdin(ctx context.Context, _ any, cancelFn context.CancelFunc) {
	ppid := os.Getppid()
	log := logging.New("mcp")
	go func() {
		t := time.NewTicker(parentPollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if os.Getppid() != ppid {
					log.Warn("parent process exited, shutting down", "ppid", ppid)
					cancelFn()
					return
				}
			}
		}
	}()
}
