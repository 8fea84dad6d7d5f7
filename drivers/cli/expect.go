package cli

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	expect "github.com/google/goexpect"
	"golang.org/x/crypto/ssh"
)

// CommandMode describes the prompts of a controller's command mode and how
// to prepare it. It is passed to every session explicitly.
type CommandMode struct {
	// Prompt matches the command prompt, e.g. "ROME>"
	Prompt *regexp.Regexp

	// LoginPrompt and PasswordPrompt match the login dialogue shown on
	// Telnet and on controllers that ask again after SSH authentication
	LoginPrompt    *regexp.Regexp
	PasswordPrompt *regexp.Regexp

	// PagerCommand disables output paging; empty skips it
	PagerCommand string
}

// DefaultCommandMode returns the prompts of a Rome controller
func DefaultCommandMode() CommandMode {
	return CommandMode{
		Prompt:         regexp.MustCompile(`(?m)[\w\-.()\[\]]+[#>]\s*$`),
		LoginPrompt:    regexp.MustCompile(`(?im)(?:login|user ?name)\s*:\s*$`),
		PasswordPrompt: regexp.MustCompile(`(?im)password\s*:\s*$`),
		PagerCommand:   "terminal length 0",
	}
}

// sessionBuffer accumulates everything the session receives
type sessionBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *sessionBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *sessionBuffer) Close() error { return nil }

func (b *sessionBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *sessionBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// ExpectSession wraps google/goexpect for controller CLI interaction
type ExpectSession struct {
	expecter    *expect.GExpect
	mode        CommandMode
	timeout     time.Duration
	received    *sessionBuffer
	initialized bool
}

// ExpectSessionConfig holds configuration for creating an expect session.
// Exactly one of SSHClient and Conn is set; Conn is a raw Telnet connection.
type ExpectSessionConfig struct {
	SSHClient    *ssh.Client
	Conn         net.Conn
	Mode         CommandMode
	Timeout      time.Duration
	DisablePager bool
	Username     string
	Password     string
}

// NewExpectSession creates a new interactive CLI session using expect
func NewExpectSession(cfg ExpectSessionConfig) (*ExpectSession, error) {
	if cfg.SSHClient == nil && cfg.Conn == nil {
		return nil, fmt.Errorf("SSH client or connection is required")
	}
	if cfg.Mode.Prompt == nil {
		cfg.Mode = DefaultCommandMode()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	received := &sessionBuffer{}
	opts := []expect.Option{
		expect.Verbose(false),
		expect.CheckDuration(500 * time.Millisecond),
		expect.Tee(received),
	}

	var (
		exp *expect.GExpect
		err error
	)
	if cfg.SSHClient != nil {
		exp, _, err = expect.SpawnSSH(cfg.SSHClient, cfg.Timeout, opts...)
	} else {
		exp, _, err = spawnTelnet(cfg.Conn, cfg.Timeout, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to spawn expect session: %w", err)
	}

	session := &ExpectSession{
		expecter: exp,
		mode:     cfg.Mode,
		timeout:  cfg.Timeout,
		received: received,
	}

	if err := session.login(cfg.Username, cfg.Password); err != nil {
		exp.Close()
		return nil, err
	}

	// Disable pager if requested (non-fatal if it fails)
	if cfg.DisablePager && cfg.Mode.PagerCommand != "" {
		_, _ = session.Execute(cfg.Mode.PagerCommand)
	}

	received.Reset()
	session.initialized = true
	return session, nil
}

// login waits for the command prompt, answering login and password prompts
// on the way.
func (s *ExpectSession) login(username, password string) error {
	re := regexp.MustCompile(fmt.Sprintf("(%s)|(%s)|(%s)",
		s.mode.Prompt.String(), s.mode.LoginPrompt.String(), s.mode.PasswordPrompt.String()))
	promptGroups := s.mode.Prompt.NumSubexp()
	loginGroups := s.mode.LoginPrompt.NumSubexp()

	for attempt := 0; attempt < 4; attempt++ {
		_, m, err := s.expecter.Expect(re, s.timeout)
		if err != nil {
			return fmt.Errorf("failed to detect initial prompt: %w", err)
		}
		switch {
		case m[1] != "":
			return nil
		case m[2+promptGroups] != "":
			if err := s.expecter.Send(username + "\n"); err != nil {
				return fmt.Errorf("failed to send username: %w", err)
			}
		case m[3+promptGroups+loginGroups] != "":
			if attempt > 2 {
				return fmt.Errorf("login failed: password rejected")
			}
			if err := s.expecter.Send(password + "\n"); err != nil {
				return fmt.Errorf("failed to send password: %w", err)
			}
		}
	}
	return fmt.Errorf("login failed: no command prompt")
}

// Execute sends a command and waits for the prompt, returning the output
func (s *ExpectSession) Execute(command string) (string, error) {
	if s.expecter == nil {
		return "", fmt.Errorf("expect session not initialized")
	}

	if err := s.expecter.Send(command + "\n"); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	output, _, err := s.expecter.Expect(s.mode.Prompt, s.timeout)
	if err != nil {
		return output, fmt.Errorf("timeout waiting for prompt after command %q: %w", command, err)
	}

	return s.cleanOutput(output, command), nil
}

// ExecuteExpect sends a command and waits up to timeout for re instead of
// the prompt. The prompt that follows is consumed if it shows up.
func (s *ExpectSession) ExecuteExpect(command string, re *regexp.Regexp, timeout time.Duration) (string, error) {
	if s.expecter == nil {
		return "", fmt.Errorf("expect session not initialized")
	}

	if err := s.expecter.Send(command + "\n"); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	output, _, err := s.expecter.Expect(re, timeout)
	if err != nil {
		return output, fmt.Errorf("timeout waiting for %q after command %q: %w", re.String(), command, err)
	}
	_, _, _ = s.expecter.Expect(s.mode.Prompt, s.timeout)

	return s.cleanOutput(output, command), nil
}

// cleanOutput removes command echo and prompt from output
func (s *ExpectSession) cleanOutput(output, command string) string {
	lines := strings.Split(output, "\n")
	var cleaned []string

	for i, line := range lines {
		// Skip the first line if it's the command echo
		if i == 0 && strings.Contains(line, command) {
			continue
		}
		if s.mode.Prompt.MatchString(strings.TrimSpace(line)) {
			continue
		}
		cleaned = append(cleaned, strings.TrimRight(line, "\r"))
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// Buffer returns everything received since the last ClearBuffer
func (s *ExpectSession) Buffer() string {
	return s.received.String()
}

// ClearBuffer discards the accumulated receive buffer
func (s *ExpectSession) ClearBuffer() {
	s.received.Reset()
}

// Close closes the expect session
func (s *ExpectSession) Close() error {
	if s.expecter != nil {
		return s.expecter.Close()
	}
	return nil
}

// SetTimeout updates the command timeout
func (s *ExpectSession) SetTimeout(timeout time.Duration) {
	s.timeout = timeout
}
