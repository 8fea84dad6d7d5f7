package mock

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-rome/types"
)

func exec(t *testing.T, d *Driver, cmd string) string {
	t.Helper()
	out, err := d.ExecCommand(context.Background(), cmd)
	require.NoError(t, err)
	return out
}

func TestNewFromEquipment(t *testing.T) {
	_, err := NewFromEquipment(nil)
	assert.Error(t, err)

	d, err := NewFromEquipment(&types.EquipmentConfig{
		Address: "10.0.0.5",
		Metadata: map[string]string{
			MetaLetter:    "q",
			MetaFirstPort: "65",
			MetaLastPort:  "66",
		},
	})
	require.NoError(t, err)
	assert.False(t, d.IsConnected())
	assert.Equal(t, "10.0.0.5", d.Host())

	_, err = d.ExecCommand(context.Background(), "show board")
	assert.Error(t, err, "commands need a connection")

	require.NoError(t, d.Connect(context.Background(), nil))
	assert.True(t, d.IsConnected())
	out := exec(t, d, "port show")
	assert.Contains(t, out, "1QE65")
	assert.Contains(t, out, "1QW66")
	assert.NotContains(t, out, "1QE67")
}

func TestConnectHonoursContext(t *testing.T) {
	d, err := NewFromEquipment(&types.EquipmentConfig{Address: "h1"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Connect(ctx, nil), context.Canceled)
	assert.False(t, d.IsConnected())
}

func TestPortOutputLayouts(t *testing.T) {
	legacy := NewDriver(Config{Host: "h1", LastPort: 2, Legacy: true})
	legacy.Wire("E1", "W2")
	out := exec(t, legacy, "port show")
	assert.Contains(t, out, "E1[1AE1]  Unlocked  Enabled  Connected  1  W2[1AW2]  A1")
	assert.Contains(t, out, "E2[1AE2]  Unlocked  Enabled  Disconnected  2  -  A2")

	current := NewDriver(Config{Host: "h1", LastPort: 2})
	current.Lock(2)
	current.Disable(2)
	out = exec(t, current, "port show")
	assert.Contains(t, out, "1AE1  Unlocked  Enabled  Disconnected  1  -  E1,A1")
	assert.Contains(t, out, "1AW2  Locked  Disabled  Disconnected  2  -  W2,A2")

	one := exec(t, current, "port show 1AW2")
	assert.Equal(t, 1, strings.Count(one, "W2,A2"))
	assert.NotContains(t, one, "E2,A2")
}

func TestConnectionQueue(t *testing.T) {
	d := NewDriver(Config{Host: "h1", LastPort: 4, PendingPolls: 1})

	assert.Equal(t, "OK, operation queued", exec(t, d, "connection create 1AE1 to 1AW2"))
	assert.Equal(t, 1, d.Pending())
	assert.Contains(t, exec(t, d, "port show 1AE1"), "In Process")

	assert.Contains(t, exec(t, d, "connection show pending"), "create: 1AE1 to 1AW2 (pending)")
	assert.Equal(t, "No pending connections", exec(t, d, "connection show pending"))
	assert.Equal(t, "W2", d.Peer("E1"))
	assert.Equal(t, "E1", d.Peer("W2"))

	exec(t, d, "connection disconnect 1AE1 from 1AW2")
	exec(t, d, "connection show pending")
	exec(t, d, "connection show pending")
	assert.Empty(t, d.Peer("E1"))
	assert.Empty(t, d.Peer("W2"))
}

func TestConnectionQueueImmediate(t *testing.T) {
	d := NewDriver(Config{Host: "h1", LastPort: 4})
	assert.Equal(t, "OK", exec(t, d, "connection create E3 to W4"))
	assert.Zero(t, d.Pending())
	assert.Equal(t, "W4", d.Peer("E3"))
}

func TestColumnarPending(t *testing.T) {
	d := NewDriver(Config{Host: "h1", LastPort: 4, PendingPolls: 1, ColumnarPending: true})
	exec(t, d, "connection create 1AE1 to 1AW2")
	out := exec(t, d, "connection show pending")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"Source", "Dest", "Operation", "State"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1AE1", "1AW2", "create", "Pending"}, strings.Fields(lines[1]))
}

func TestStuckQueue(t *testing.T) {
	d := NewDriver(Config{Host: "h1", LastPort: 4})
	d.SetStuck(true)
	exec(t, d, "connection create 1AE1 to 1AW2")
	for i := 0; i < 5; i++ {
		assert.Contains(t, exec(t, d, "connection show pending"), "1AE1 to 1AW2")
	}
	d.SetStuck(false)
	exec(t, d, "connection show pending")
	assert.Equal(t, "W2", d.Peer("E1"))
}

func TestDroppingQueue(t *testing.T) {
	d := NewDriver(Config{Host: "h1", LastPort: 4, PendingPolls: 1})
	d.SetDropping(true)
	assert.Equal(t, "OK", exec(t, d, "connection create 1AE1 to 1AW2"))
	assert.Equal(t, "No pending connections", exec(t, d, "connection show pending"))
	assert.Empty(t, d.Peer("E1"))
}

func TestQueueRejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Driver)
		cmd   string
		want  string
	}{
		{name: "west source", cmd: "connection create 1AW1 to 1AW2", want: "Error: invalid source port W1"},
		{name: "missing source", cmd: "connection create 1AE9 to 1AW2", want: "Error: invalid source port E9"},
		{name: "east destination", cmd: "connection create 1AE1 to 1AE2", want: "Error: invalid destination port E2"},
		{name: "locked", setup: func(d *Driver) { d.Lock(2) }, cmd: "connection create 1AE1 to 1AW2", want: "Error: port locked or disabled"},
		{name: "disabled", setup: func(d *Driver) { d.Disable(1) }, cmd: "connection create 1AE1 to 1AW2", want: "Error: port locked or disabled"},
		{name: "unknown", cmd: "frobnicate", want: "Error: unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDriver(Config{Host: "h1", LastPort: 4})
			if tt.setup != nil {
				tt.setup(d)
			}
			assert.Equal(t, tt.want, exec(t, d, tt.cmd))
			assert.Zero(t, d.Pending())
		})
	}
}

func TestSevereFailureAndRehome(t *testing.T) {
	d := NewDriver(Config{Host: "h1", LastPort: 4, PendingPolls: 1})
	exec(t, d, "connection create 1AE1 to 1AW2")
	d.ArmSevereFailure()

	assert.Equal(t, SevereFailureText, exec(t, d, "connection show pending"))
	assert.Contains(t, d.Buffer(), SevereFailureText)
	assert.Equal(t, "Error: command execution disabled", exec(t, d, "connection create 1AE3 to 1AW4"))

	out, err := d.ExecCommandExpect(context.Background(), "connection rehome", regexp.MustCompile(`(?i)rehome completed`), time.Second)
	require.NoError(t, err)
	assert.Contains(t, out, "Rehome completed")
	assert.Zero(t, d.Pending())
	assert.Equal(t, "Command execution enabled", exec(t, d, "connection execution enable"))
	assert.Equal(t, "OK, operation queued", exec(t, d, "connection create 1AE3 to 1AW4"))

	d.ClearBuffer()
	assert.Empty(t, d.Buffer())
}

func TestExecCommandExpectMismatch(t *testing.T) {
	d := NewDriver(Config{Host: "h1"})
	_, err := d.ExecCommandExpect(context.Background(), "show board", regexp.MustCompile(`never`), time.Second)
	assert.Error(t, err)
}

func TestBufferAndHistory(t *testing.T) {
	d := NewDriver(Config{Host: "h1", SerialNumber: "RM42", ModelName: "R64"})
	board := exec(t, d, "show board")
	assert.Contains(t, board, "S/N(RM42)")
	assert.Contains(t, board, "Rome type R64")

	d.Emit("unsolicited")
	assert.True(t, strings.HasSuffix(d.Buffer(), "unsolicited\n"))

	results, err := d.ExecCommands(context.Background(), []string{"terminal length 0", "connection show pending"})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "No pending connections"}, results)
	assert.Equal(t, []string{"show board", "terminal length 0", "connection show pending"}, d.GetCommandHistory())
	assert.Equal(t, []string{"connection show pending"}, d.CommandsWithPrefix("connection"))
	assert.NoError(t, d.HealthCheck(context.Background()))

	require.NoError(t, d.Disconnect(context.Background()))
	assert.Error(t, d.HealthCheck(context.Background()))
}
