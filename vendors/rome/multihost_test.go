package rome

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-rome/internal/logging"
	"github.com/nanoncore/nano-rome/types"
)

// hostChannel only answers Host(); RunOnHosts needs nothing else
type hostChannel struct {
	types.CLIChannel
	host string
}

func (c hostChannel) Host() string { return c.host }

func channelsFor(hosts ...string) []types.CLIChannel {
	chs := make([]types.CLIChannel, len(hosts))
	for i, h := range hosts {
		chs[i] = hostChannel{host: h}
	}
	return chs
}

var errBoom = errors.New("boom")

func TestRunOnHostsSingleChannel(t *testing.T) {
	logger := logging.NewNop()

	res, err := RunOnHosts(context.Background(), logger, channelsFor("h1"),
		func(ctx context.Context, ch types.CLIChannel) (string, error) {
			return "ok:" + ch.Host(), nil
		})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"h1": "ok:h1"}, res)

	_, err = RunOnHosts(context.Background(), logger, channelsFor("h1"),
		func(ctx context.Context, ch types.CLIChannel) (string, error) {
			return "", errBoom
		})
	// a single host keeps its own error
	assert.Same(t, errBoom, err)
	assert.NotErrorIs(t, err, types.ErrMultiHost)
}

func TestRunOnHostsAllSucceed(t *testing.T) {
	var running, peak atomic.Int32
	res, err := RunOnHosts(context.Background(), logging.NewNop(), channelsFor("h1", "h2"),
		func(ctx context.Context, ch types.CLIChannel) (int, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return len(ch.Host()), nil
		})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"h1": 2, "h2": 2}, res)
	assert.Equal(t, int32(2), peak.Load(), "hosts should run concurrently")
}

func TestRunOnHostsAggregatesFailures(t *testing.T) {
	var finished atomic.Int32
	_, err := RunOnHosts(context.Background(), logging.NewNop(), channelsFor("h1", "h2", "h3"),
		func(ctx context.Context, ch types.CLIChannel) (struct{}, error) {
			defer finished.Add(1)
			if ch.Host() == "h2" {
				return struct{}{}, errBoom
			}
			time.Sleep(10 * time.Millisecond)
			return struct{}{}, nil
		})
	require.Error(t, err)
	// every worker ran to completion
	assert.Equal(t, int32(3), finished.Load())

	assert.ErrorIs(t, err, types.ErrMultiHost)
	assert.ErrorIs(t, err, errBoom)
	var agg *types.AggregateMultiHostError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []string{"h2"}, agg.Hosts())
	assert.Contains(t, err.Error(), "h2: boom")
}

func TestRunOnHostsReachesTypedCauses(t *testing.T) {
	_, err := RunOnHosts(context.Background(), logging.NewNop(), channelsFor("h1", "h2"),
		func(ctx context.Context, ch types.CLIChannel) (struct{}, error) {
			return struct{}{}, &types.TimeoutError{Host: ch.Host(), Timeout: time.Second}
		})
	var agg *types.AggregateMultiHostError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []string{"h1", "h2"}, agg.Hosts())

	var te *types.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, types.ErrTimeout)
}

func TestRunOnHostsNoChannels(t *testing.T) {
	_, err := RunOnHosts(context.Background(), logging.NewNop(), nil,
		func(ctx context.Context, ch types.CLIChannel) (struct{}, error) { return struct{}{}, nil })
	assert.Error(t, err)
}
