package rome

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nanoncore/nano-rome/types"
)

// HostFunc is an operation bound to the channel of one controller
type HostFunc[T any] func(ctx context.Context, ch types.CLIChannel) (T, error)

// RunOnHosts runs fn once per channel and returns the results keyed by host.
//
// A single channel runs inline and its error is returned as is. Several
// channels run concurrently, one worker per channel; every worker finishes
// before RunOnHosts returns, and any failures come back together as one
// *types.AggregateMultiHostError.
func RunOnHosts[T any](ctx context.Context, logger *slog.Logger, channels []types.CLIChannel, fn HostFunc[T]) (map[string]T, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("no CLI channels")
	}
	if len(channels) == 1 {
		v, err := fn(ctx, channels[0])
		if err != nil {
			return nil, err
		}
		return map[string]T{channels[0].Host(): v}, nil
	}

	values := make([]T, len(channels))
	errs := make([]error, len(channels))

	var g errgroup.Group
	g.SetLimit(len(channels))
	for i, ch := range channels {
		g.Go(func() error {
			values[i], errs[i] = fn(ctx, ch)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]T, len(channels))
	failures := make(map[string]error)
	for i, ch := range channels {
		if errs[i] != nil {
			logger.Error("host operation failed", "host", ch.Host(), "error", errs[i])
			failures[ch.Host()] = errs[i]
			continue
		}
		results[ch.Host()] = values[i]
	}
	if len(failures) > 0 {
		return nil, &types.AggregateMultiHostError{Failures: failures}
	}
	return results, nil
}
