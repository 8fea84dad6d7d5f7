package types

import (
	"context"
	"regexp"
	"time"
)

// Protocol represents the southbound transport used to reach a controller
type Protocol string

const (
	ProtocolSSH    Protocol = "ssh"
	ProtocolTelnet Protocol = "telnet"
)

// Vendor represents the optical switch vendor/family
type Vendor string

const (
	VendorRome Vendor = "rome"
	VendorMock Vendor = "mock" // For testing/simulation
)

// EquipmentType represents the type of optical equipment
type EquipmentType string

const (
	// EquipmentTypeOCS is an optical circuit (fiber cross-connect) switch
	EquipmentTypeOCS EquipmentType = "ocs"
)

// EquipmentConfig contains configuration for one controller of a switch.
// A dual-controller Q128 matrix is described by two EquipmentConfig values
// that differ only in Address.
type EquipmentConfig struct {
	// Name is a unique identifier for this equipment
	Name string

	// Type is the equipment type
	Type EquipmentType

	// Vendor is the equipment vendor
	Vendor Vendor

	// Address is the management IP/hostname of this controller
	Address string

	// Port is the management port (if not default)
	Port int

	// Protocol is the CLI transport
	Protocol Protocol

	// Username for authentication
	Username string

	// Password for authentication
	Password string

	// Timeout for a single command round-trip
	Timeout time.Duration

	// Metadata contains vendor-specific configuration
	Metadata map[string]string
}

// Driver is the interface that all southbound drivers must implement
type Driver interface {
	// Connect establishes a connection to the equipment
	Connect(ctx context.Context, config *EquipmentConfig) error

	// Disconnect closes the connection
	Disconnect(ctx context.Context) error

	// IsConnected returns true if connected
	IsConnected() bool

	// HealthCheck performs a health check on the connection
	HealthCheck(ctx context.Context) error
}

// CLIExecutor is an optional interface for drivers that support CLI execution
// Vendor adapters can use this to send vendor-specific commands
type CLIExecutor interface {
	// ExecCommand executes a CLI command and returns the output
	ExecCommand(ctx context.Context, command string) (string, error)

	// ExecCommands executes multiple CLI commands sequentially
	ExecCommands(ctx context.Context, commands []string) ([]string, error)
}

// CLIChannel is a CLI session bound to one controller. Besides per-command
// output it keeps everything received since the last ClearBuffer, because
// some device conditions are only reported asynchronously between prompts.
//
// A CLIChannel is not safe for concurrent use; callers give each worker its
// own channel.
type CLIChannel interface {
	CLIExecutor

	// Host returns the controller address this channel talks to
	Host() string

	// ExecCommandExpect sends command and waits until re matches the
	// received output instead of the prompt.
	ExecCommandExpect(ctx context.Context, command string, re *regexp.Regexp, timeout time.Duration) (string, error)

	// Buffer returns everything received since the last ClearBuffer
	Buffer() string

	// ClearBuffer discards the accumulated receive buffer
	ClearBuffer()
}
