package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty string", input: "", want: ""},
		{name: "no ANSI codes", input: "1AE1  Unlocked", want: "1AE1  Unlocked"},
		{name: "red alarm", input: "\x1b[31mSEVERE FAILURE\x1b[0m", want: "SEVERE FAILURE"},
		{name: "cursor movement", input: "\x1b[2J\x1b[HROME>", want: "ROME>"},
		{name: "256 color code", input: "\x1b[38;5;196mLocked\x1b[0m", want: "Locked"},
		{name: "private mode", input: "\x1b[?25lport show\x1b[?25h", want: "port show"},
		{name: "mixed with newlines", input: "\x1b[32mE1\x1b[0m\nW1", want: "E1\nW1"},
		{name: "prompt redraw", input: "\x1b[0mROME>\x1b[K port show", want: "ROME> port show"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripANSI(tt.input))
		})
	}
}

func TestLines(t *testing.T) {
	in := "Port  Admin\r\n\r\n\x1b[1mE1[1AE1]\x1b[0m  Unlocked   \r\n   \n"
	assert.Equal(t, []string{"Port  Admin", "E1[1AE1]  Unlocked"}, Lines(in))
	assert.Empty(t, Lines(""))
}

func TestContainsFold(t *testing.T) {
	assert.True(t, ContainsFold("*** Severe Failure ***", "SEVERE FAILURE"))
	assert.False(t, ContainsFold("rehome completed", "severe"))
}
