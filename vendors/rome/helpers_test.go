package rome

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// row renders one legacy "port show" line. An empty peer leaves the
// sub-port disconnected.
func row(sub, peer, logical string) string {
	status, p := "Disconnected", "-"
	if peer != "" {
		status, p = "Connected", peer
	}
	return fmt.Sprintf("%s  Unlocked  Enabled  %s  0  %s  %s", sub, status, p, logical)
}

// pair renders both sub-ports of a logical port, unconnected
func pair(letter string, id int) []string {
	logical := fmt.Sprintf("%s%d", letter, id)
	return []string{
		row(fmt.Sprintf("E%d", id), "", logical),
		row(fmt.Sprintf("W%d", id), "", logical),
	}
}

func listing(rows ...string) string {
	return "Port  Admin  Oper  Status  Count  Connected  Name\n" +
		"---------------------------------------------------\n" +
		strings.Join(rows, "\n") + "\n"
}

func mustTable(t *testing.T, host string, rows ...string) *PortTable {
	t.Helper()
	table, err := ParseTable(listing(rows...), host, nil)
	require.NoError(t, err)
	return table
}

// rangeRows renders unconnected pairs for ids first..last
func rangeRows(letter string, first, last int) []string {
	var rows []string
	for id := first; id <= last; id++ {
		rows = append(rows, pair(letter, id)...)
	}
	return rows
}
