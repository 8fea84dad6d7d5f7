package rome

import (
	"context"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-rome/drivers/mock"
	"github.com/nanoncore/nano-rome/model"
	"github.com/nanoncore/nano-rome/types"
)

func mustAddress(t *testing.T, s string) Address {
	t.Helper()
	addr, err := ParseAddress(s)
	require.NoError(t, err)
	return addr
}

func mappedPorts(chassis *model.Chassis) []*model.Port {
	var out []*model.Port
	for _, b := range chassis.Blades {
		for _, p := range b.Ports {
			if p.MappedTo != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func TestBuildTopologyFullMatrix(t *testing.T) {
	table := mustTable(t, "h1", rangeRows("A", 1, 128)...)
	info := model.BoardInfo{SerialNumber: "RM1", ModelName: "R128", SoftwareVersion: "3.1.0.12"}

	chassis, err := BuildTopology(mustAddress(t, "h1:A"), info, table)
	require.NoError(t, err)

	assert.Equal(t, "R128", chassis.Name)
	assert.Equal(t, "h1:A", chassis.Address)
	assert.Equal(t, "RM1", chassis.SerialNumber)
	assert.Equal(t, "3.1.0.12", chassis.SoftwareVersion)

	require.Len(t, chassis.Blades, 1)
	blade := chassis.Blades[0]
	assert.Equal(t, "A", blade.Letter)
	assert.Equal(t, "h1:A/A", blade.Address)
	require.Len(t, blade.Ports, 128)

	ids := make([]string, len(blade.Ports))
	for i, p := range blade.Ports {
		ids[i] = p.ID
		assert.Len(t, p.ID, 3, "port ids share one width")
		n, err := strconv.Atoi(p.ID)
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}
	assert.True(t, sort.StringsAreSorted(ids), "lexical order follows numeric order")

	first := blade.Ports[0]
	assert.Equal(t, "Port 001", first.Name)
	assert.Equal(t, "A1", first.LogicalName)
	assert.Equal(t, "h1:A/A/001", first.Address)
	assert.Empty(t, mappedPorts(chassis))
}

func TestBuildTopologyMapsConnectedPair(t *testing.T) {
	rows := []string{
		row("E1", "W2", "A1"), row("W1", "E2", "A1"),
		row("E2", "W1", "A2"), row("W2", "E1", "A2"),
	}
	rows = append(rows, rangeRows("A", 3, 12)...)
	table := mustTable(t, "h1", rows...)

	chassis, err := BuildTopology(mustAddress(t, "h1:A"), model.BoardInfo{}, table)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultModelName, chassis.Name)

	mapped := mappedPorts(chassis)
	require.Len(t, mapped, 2)
	blade := chassis.Blade("A")
	require.NotNil(t, blade)
	p1, p2 := blade.Port("01"), blade.Port("02")
	require.NotNil(t, p1)
	require.NotNil(t, p2)
	assert.Equal(t, p2.Address, p1.MappedTo)
	assert.Equal(t, p1.Address, p2.MappedTo)
}

func TestBuildTopologyTapIsMappedBothWays(t *testing.T) {
	table := mustTable(t, "h1",
		row("E1", "W2", "A1"), row("W1", "", "A1"),
		row("E2", "", "A2"), row("W2", "E1", "A2"),
	)
	chassis, err := BuildTopology(mustAddress(t, "h1:A"), model.BoardInfo{}, table)
	require.NoError(t, err)
	assert.Len(t, mappedPorts(chassis), 2)
}

func TestBuildTopologyFiltersByMatrix(t *testing.T) {
	rows := append(rangeRows("A", 1, 4), rangeRows("B", 1, 6)...)
	rows = append(rows, rangeRows("X", 1, 2)...)
	rows = append(rows, rangeRows("Y", 1, 2)...)
	table := mustTable(t, "h1", rows...)

	b, err := BuildTopology(mustAddress(t, "h1:B"), model.BoardInfo{}, table)
	require.NoError(t, err)
	require.Len(t, b.Blades, 1)
	assert.Equal(t, "B", b.Blades[0].Letter)
	assert.Len(t, b.Blades[0].Ports, 6)

	xy, err := BuildTopology(mustAddress(t, "h1:XY"), model.BoardInfo{}, table)
	require.NoError(t, err)
	require.Len(t, xy.Blades, 2)
	assert.Equal(t, "X", xy.Blades[0].Letter)
	assert.Equal(t, "Y", xy.Blades[1].Letter)
}

func TestBuildTopologyAddressingMismatch(t *testing.T) {
	table := mustTable(t, "h1", rangeRows("A", 1, 4)...)

	_, err := BuildTopology(mustAddress(t, "h1:Q"), model.BoardInfo{}, table)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAddressing)
}

func TestBuildTopologyAsymmetric(t *testing.T) {
	table := mustTable(t, "h1",
		row("E1", "W2", "A1"), row("W1", "", "A1"),
		row("E2", "", "A2"), row("W2", "", "A2"),
	)
	_, err := BuildTopology(mustAddress(t, "h1:A"), model.BoardInfo{}, table)
	assert.ErrorIs(t, err, types.ErrStateConsistency)
}

func TestGetTopologyAcrossControllers(t *testing.T) {
	first := mock.NewDriver(mock.Config{Host: "h1", Letter: "Q", FirstPort: 1, LastPort: 64})
	second := mock.NewDriver(mock.Config{Host: "h2", Letter: "Q", FirstPort: 65, LastPort: 128})
	// Q1 on the first controller is fibered to Q70 on the second
	first.SetPeer("E1", "W70")
	first.SetPeer("W1", "E70")
	second.SetPeer("E70", "W1")
	second.SetPeer("W70", "E1")
	a := newTestAdapter(t, "h1:h2:Q", first, second)

	chassis, err := a.GetTopology(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "h1:h2:Q", chassis.Address)

	blade := chassis.Blade("Q")
	require.NotNil(t, blade)
	require.Len(t, blade.Ports, 128)
	q1, q70 := blade.Port("001"), blade.Port("070")
	require.NotNil(t, q1)
	require.NotNil(t, q70)
	assert.Equal(t, q70.Address, q1.MappedTo)
	assert.Equal(t, q1.Address, q70.MappedTo)
	assert.Len(t, mappedPorts(chassis), 2)
}
