package cli

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/nanoncore/nano-rome/types"
)

// Driver implements types.Driver and types.CLIChannel over SSH or Telnet
type Driver struct {
	config        *types.EquipmentConfig
	mode          CommandMode
	sshClient     *ssh.Client
	conn          net.Conn
	expectSession *ExpectSession
}

// NewDriver creates a new CLI driver. The zero CommandMode selects
// DefaultCommandMode.
func NewDriver(config *types.EquipmentConfig, mode CommandMode) (*Driver, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	applyDefaults(config)

	if mode.Prompt == nil {
		mode = DefaultCommandMode()
	}

	return &Driver{
		config: config,
		mode:   mode,
	}, nil
}

// applyDefaults fills the management port, protocol and timeout
func applyDefaults(config *types.EquipmentConfig) {
	if config.Protocol == "" {
		config.Protocol = types.ProtocolSSH
	}

	// Default management port
	if config.Port == 0 {
		switch config.Protocol {
		case types.ProtocolTelnet:
			config.Port = 23
		default:
			config.Port = 22
		}
	}

	// Default timeout
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
}

// Host returns the controller address
func (d *Driver) Host() string {
	return d.config.Address
}

// Connect establishes the CLI session
func (d *Driver) Connect(ctx context.Context, config *types.EquipmentConfig) error {
	if config != nil {
		c := *config
		if c.Address == "" {
			c.Address = d.config.Address
		}
		applyDefaults(&c)
		d.config = &c
	}

	target := net.JoinHostPort(d.config.Address, strconv.Itoa(d.config.Port))
	sessionCfg := ExpectSessionConfig{
		Mode:         d.mode,
		Timeout:      d.config.Timeout,
		DisablePager: true,
		Username:     d.config.Username,
		Password:     d.config.Password,
	}

	switch d.config.Protocol {
	case types.ProtocolTelnet:
		dialer := net.Dialer{Timeout: d.config.Timeout}
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			return fmt.Errorf("failed to dial telnet: %w", err)
		}
		d.conn = conn
		sessionCfg.Conn = conn

	case types.ProtocolSSH:
		// Some controllers require keyboard-interactive instead of password
		keyboardInteractive := ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = d.config.Password
			}
			return answers, nil
		})

		sshConfig := &ssh.ClientConfig{
			User: d.config.Username,
			Auth: []ssh.AuthMethod{
				ssh.Password(d.config.Password),
				keyboardInteractive,
			},
			Timeout:         d.config.Timeout,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // management network, controllers use self-generated keys
		}

		client, err := ssh.Dial("tcp", target, sshConfig)
		if err != nil {
			return fmt.Errorf("failed to dial SSH: %w", err)
		}
		d.sshClient = client
		sessionCfg.SSHClient = client

	default:
		return fmt.Errorf("unsupported protocol: %s", d.config.Protocol)
	}

	expectSession, err := NewExpectSession(sessionCfg)
	if err != nil {
		d.closeTransport()
		return fmt.Errorf("failed to create expect session: %w", err)
	}

	d.expectSession = expectSession

	return nil
}

func (d *Driver) closeTransport() error {
	var err error
	if d.sshClient != nil {
		err = d.sshClient.Close()
		d.sshClient = nil
	}
	if d.conn != nil {
		err = d.conn.Close()
		d.conn = nil
	}
	return err
}

// Disconnect closes the session and the transport
func (d *Driver) Disconnect(ctx context.Context) error {
	if d.expectSession != nil {
		_ = d.expectSession.Close()
		d.expectSession = nil
	}
	return d.closeTransport()
}

// IsConnected returns true if connected
func (d *Driver) IsConnected() bool {
	return d.expectSession != nil && (d.sshClient != nil || d.conn != nil)
}

// execCommand executes a CLI command using the expect session
func (d *Driver) execCommand(ctx context.Context, command string) (string, error) {
	if !d.IsConnected() {
		return "", fmt.Errorf("not connected to device")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	output, err := d.expectSession.Execute(command)
	if err != nil {
		return output, fmt.Errorf("command failed: %w", err)
	}

	return output, nil
}

// HealthCheck performs a health check
func (d *Driver) HealthCheck(ctx context.Context) error {
	_, err := d.execCommand(ctx, "show board")
	return err
}

// ExecCommand implements types.CLIExecutor - executes a single CLI command
func (d *Driver) ExecCommand(ctx context.Context, command string) (string, error) {
	return d.execCommand(ctx, command)
}

// ExecCommands implements types.CLIExecutor - executes multiple CLI commands sequentially
func (d *Driver) ExecCommands(ctx context.Context, commands []string) ([]string, error) {
	results := make([]string, 0, len(commands))
	for _, cmd := range commands {
		output, err := d.execCommand(ctx, cmd)
		if err != nil {
			return results, fmt.Errorf("command %q failed: %w", cmd, err)
		}
		results = append(results, output)
	}
	return results, nil
}

// ExecCommandExpect sends command and waits for re instead of the prompt
func (d *Driver) ExecCommandExpect(ctx context.Context, command string, re *regexp.Regexp, timeout time.Duration) (string, error) {
	if !d.IsConnected() {
		return "", fmt.Errorf("not connected to device")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.expectSession.ExecuteExpect(command, re, timeout)
}

// Buffer returns everything received since the last ClearBuffer
func (d *Driver) Buffer() string {
	if d.expectSession == nil {
		return ""
	}
	return d.expectSession.Buffer()
}

// ClearBuffer discards the accumulated receive buffer
func (d *Driver) ClearBuffer() {
	if d.expectSession != nil {
		d.expectSession.ClearBuffer()
	}
}

// Ensure Driver implements the channel and driver interfaces
var (
	_ types.CLIChannel = (*Driver)(nil)
	_ types.Driver     = (*Driver)(nil)
)
