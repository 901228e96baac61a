package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/relaybus/internal/config"
	"github.com/nextlevelbuilder/relaybus/internal/gateway"
	"github.com/nextlevelbuilder/relaybus/internal/policy"
)

// watchPolicyReload recompiles path each time the watcher reports a
// change and swaps the result into gw. A malformed replacement is
// logged and discarded — the previously compiled policy stays active,
// per spec.md §9's hot-reload resolution.
func watchPolicyReload(ctx context.Context, path string, gw *gateway.Server, logger *slog.Logger) {
	changes, stop, err := config.WatchPolicyFile(path, logger)
	if err != nil {
		logger.Warn("policy: hot-reload disabled, could not watch file", "path", path, "error", err)
		return
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			src, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("policy: reload read failed, keeping previous policy", "error", err)
				continue
			}
			p, err := policy.Compile(string(src))
			if err != nil {
				logger.Warn("policy: reload compile failed, keeping previous policy", "error", err)
				continue
			}
			for _, w := range p.Warnings {
				logger.Warn("policy: " + w)
			}
			gw.SetPolicy(p)
		}
	}
}
