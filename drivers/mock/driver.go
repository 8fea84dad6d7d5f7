package mock

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nanoncore/nano-rome/types"
	"github.com/nanoncore/nano-rome/vendors/common"
)

// SevereFailureText is printed by the simulator when its queue is stuck
const SevereFailureText = "*** SEVERE FAILURE: connection queue stalled ***"

var (
	createRe     = regexp.MustCompile(`(?i)^connection\s+create\s+(\S+)\s+to\s+(\S+)$`)
	disconnectRe = regexp.MustCompile(`(?i)^connection\s+disconnect\s+(\S+)\s+from\s+(\S+)$`)
	portShowRe   = regexp.MustCompile(`(?i)^port\s+show\s+(\S+)$`)
	fullNameRe   = regexp.MustCompile(`(?i)^\d+[A-Z]([EW]\d+)$`)
)

// Config describes one simulated controller
type Config struct {
	// Host is the controller address reported by Host()
	Host string

	// Letter is the blade letter of the logical port names
	Letter string

	// FirstPort and LastPort bound the logical port ids; sub-port ids
	// equal logical ids
	FirstPort int
	LastPort  int

	// Legacy renders "port show" in the legacy layout
	Legacy bool

	// ColumnarPending renders "connection show pending" as columns
	// instead of "<src> to <dst>" rows
	ColumnarPending bool

	// PendingPolls is how many pending queries an operation stays listed
	PendingPolls int

	SerialNumber    string
	ModelName       string
	SoftwareVersion string
}

type pendingOp struct {
	create    bool
	src, dst  string
	remaining int
}

// Driver simulates one Rome controller behind a CLI channel. It keeps the
// sub-port state, a pending operation queue and the session buffer.
type Driver struct {
	cfg       Config
	connected bool
	mu        sync.RWMutex

	peers    map[string]string
	locked   map[string]bool
	disabled map[string]bool
	pending  []*pendingOp

	stuck        bool
	dropping     bool
	severeArmed  bool
	severeActive bool
	execDisabled bool

	buffer     strings.Builder
	cmdHistory []string
}

// NewDriver creates a connected simulated controller
func NewDriver(cfg Config) *Driver {
	if cfg.Letter == "" {
		cfg.Letter = "A"
	}
	if cfg.FirstPort == 0 {
		cfg.FirstPort = 1
	}
	if cfg.LastPort == 0 {
		cfg.LastPort = cfg.FirstPort + 15
	}
	if cfg.SerialNumber == "" {
		cfg.SerialNumber = "RM0000001"
	}
	if cfg.SoftwareVersion == "" {
		cfg.SoftwareVersion = "3.1.0.12"
	}
	return &Driver{
		cfg:       cfg,
		connected: true,
		peers:     make(map[string]string),
		locked:    make(map[string]bool),
		disabled:  make(map[string]bool),
	}
}

// Metadata keys read by NewFromEquipment
const (
	MetaLetter       = "mock.letter"
	MetaFirstPort    = "mock.first_port"
	MetaLastPort     = "mock.last_port"
	MetaPendingPolls = "mock.pending_polls"
)

// NewFromEquipment creates a disconnected simulated controller for an
// equipment config. The mock.* metadata keys select the simulated range.
func NewFromEquipment(config *types.EquipmentConfig) (*Driver, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := Config{
		Host:         config.Address,
		Letter:       common.MetaStringOr(config.Metadata, "A", MetaLetter),
		FirstPort:    common.MetaIntOr(config.Metadata, 1, MetaFirstPort),
		LastPort:     common.MetaIntOr(config.Metadata, 16, MetaLastPort),
		PendingPolls: common.MetaIntOr(config.Metadata, 1, MetaPendingPolls),
	}
	d := NewDriver(cfg)
	d.connected = false
	return d, nil
}

// Connect simulates connecting to the controller
func (d *Driver) Connect(ctx context.Context, config *types.EquipmentConfig) error {
	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	return nil
}

// Disconnect closes the simulated connection
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

// IsConnected returns connection status
func (d *Driver) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// HealthCheck simulates a health check
func (d *Driver) HealthCheck(ctx context.Context) error {
	_, err := d.ExecCommand(ctx, "show board")
	return err
}

// Host returns the simulated controller address
func (d *Driver) Host() string {
	return d.cfg.Host
}

// ExecCommand implements CLIExecutor - simulates CLI execution
func (d *Driver) ExecCommand(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return "", fmt.Errorf("not connected to device")
	}

	d.recordCommand(command)
	out := d.handle(strings.TrimSpace(command))
	d.buffer.WriteString(out)
	d.buffer.WriteString("\n")
	return out, nil
}

// ExecCommands implements CLIExecutor - executes multiple commands
func (d *Driver) ExecCommands(ctx context.Context, commands []string) ([]string, error) {
	results := make([]string, 0, len(commands))
	for _, cmd := range commands {
		output, err := d.ExecCommand(ctx, cmd)
		if err != nil {
			return results, err
		}
		results = append(results, output)
	}
	return results, nil
}

// ExecCommandExpect runs command and requires re to match its output
func (d *Driver) ExecCommandExpect(ctx context.Context, command string, re *regexp.Regexp, timeout time.Duration) (string, error) {
	out, err := d.ExecCommand(ctx, command)
	if err != nil {
		return out, err
	}
	if !re.MatchString(out) {
		return out, fmt.Errorf("timeout waiting for %q after command %q", re.String(), command)
	}
	return out, nil
}

// Buffer returns everything output since the last ClearBuffer
func (d *Driver) Buffer() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buffer.String()
}

// ClearBuffer discards the accumulated output
func (d *Driver) ClearBuffer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffer.Reset()
}

// GetCommandHistory returns the command history (useful for testing)
func (d *Driver) GetCommandHistory() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	history := make([]string, len(d.cmdHistory))
	copy(history, d.cmdHistory)
	return history
}

// CommandsWithPrefix returns the recorded commands starting with prefix
func (d *Driver) CommandsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range d.GetCommandHistory() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Wire connects East sub-port src to West sub-port dst, e.g. Wire("E1", "W2")
func (d *Driver) Wire(src, dst string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[strings.ToUpper(src)] = strings.ToUpper(dst)
	d.peers[strings.ToUpper(dst)] = strings.ToUpper(src)
}

// SetPeer sets the connected-to column of one sub-port only. It describes
// connections whose other end lives on another controller, or corrupt state.
func (d *Driver) SetPeer(sub, peer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[strings.ToUpper(sub)] = strings.ToUpper(peer)
}

// Lock marks both sub-ports of a port as locked
func (d *Driver) Lock(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked[fmt.Sprintf("E%d", id)] = true
	d.locked[fmt.Sprintf("W%d", id)] = true
}

// Disable marks both sub-ports of a port as disabled
func (d *Driver) Disable(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled[fmt.Sprintf("E%d", id)] = true
	d.disabled[fmt.Sprintf("W%d", id)] = true
}

// SetStuck keeps queued operations pending forever
func (d *Driver) SetStuck(stuck bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stuck = stuck
}

// SetDropping makes the controller acknowledge connection commands
// without ever carrying them out
func (d *Driver) SetDropping(dropping bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropping = dropping
}

// Emit appends unsolicited output to the session buffer
func (d *Driver) Emit(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffer.WriteString(text)
	d.buffer.WriteString("\n")
}

// ArmSevereFailure makes the next pending query report a stalled queue
func (d *Driver) ArmSevereFailure() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.severeArmed = true
}

// Pending returns the number of queued operations
func (d *Driver) Pending() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pending)
}

// Peer returns the connected-to ref of a sub-port
func (d *Driver) Peer(sub string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.peers[strings.ToUpper(sub)]
}

// Helper methods

func (d *Driver) recordCommand(cmd string) {
	d.cmdHistory = append(d.cmdHistory, cmd)
}

func (d *Driver) handle(command string) string {
	lower := strings.ToLower(command)
	switch {
	case lower == "show board":
		return d.generateBoardOutput()
	case lower == "port show":
		return d.generatePortOutput("")
	case portShowRe.MatchString(command):
		return d.generatePortOutput(d.ref(portShowRe.FindStringSubmatch(command)[1]))
	case lower == "connection show pending":
		return d.generatePendingOutput()
	case lower == "connection rehome":
		d.pending = nil
		d.severeActive = false
		d.execDisabled = false
		return "Rehoming all connections...\nRehome completed"
	case lower == "connection execution enable":
		d.execDisabled = false
		return "Command execution enabled"
	case lower == "terminal length 0":
		return ""
	}

	if m := createRe.FindStringSubmatch(command); m != nil {
		return d.queue(true, d.ref(m[1]), d.ref(m[2]))
	}
	if m := disconnectRe.FindStringSubmatch(command); m != nil {
		return d.queue(false, d.ref(m[1]), d.ref(m[2]))
	}
	return "Error: unknown command"
}

// ref turns a full name such as 1AE5 into the sub-port ref E5
func (d *Driver) ref(name string) string {
	name = strings.ToUpper(name)
	if m := fullNameRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

func (d *Driver) exists(ref string) bool {
	if len(ref) < 2 || (ref[0] != 'E' && ref[0] != 'W') {
		return false
	}
	var id int
	if _, err := fmt.Sscanf(ref[1:], "%d", &id); err != nil {
		return false
	}
	return id >= d.cfg.FirstPort && id <= d.cfg.LastPort
}

func (d *Driver) queue(create bool, src, dst string) string {
	if d.execDisabled || d.severeActive {
		return "Error: command execution disabled"
	}
	if !strings.HasPrefix(src, "E") || !d.exists(src) {
		return fmt.Sprintf("Error: invalid source port %s", src)
	}
	if !strings.HasPrefix(dst, "W") {
		return fmt.Sprintf("Error: invalid destination port %s", dst)
	}
	if create && (d.locked[src] || d.disabled[src] || d.locked[dst] || d.disabled[dst]) {
		return "Error: port locked or disabled"
	}
	if d.dropping {
		return "OK"
	}
	op := &pendingOp{create: create, src: src, dst: dst, remaining: d.cfg.PendingPolls}
	if op.remaining <= 0 && !d.stuck {
		d.apply(op)
		return "OK"
	}
	d.pending = append(d.pending, op)
	return "OK, operation queued"
}

func (d *Driver) apply(op *pendingOp) {
	if op.create {
		d.peers[op.src] = op.dst
		if d.exists(op.dst) {
			d.peers[op.dst] = op.src
		}
		return
	}
	if d.peers[op.src] == op.dst {
		delete(d.peers, op.src)
	}
	if d.peers[op.dst] == op.src {
		delete(d.peers, op.dst)
	}
}

func (d *Driver) fullName(ref string) string {
	return fmt.Sprintf("1%s%s", strings.ToUpper(d.cfg.Letter), ref)
}

func (d *Driver) generateBoardOutput() string {
	var b strings.Builder
	fmt.Fprintf(&b, "BOARD 1 : CONTROLLER  S/N(%s)\n", d.cfg.SerialNumber)
	if d.cfg.ModelName != "" {
		fmt.Fprintf(&b, "Rome type %s\n", d.cfg.ModelName)
	}
	fmt.Fprintf(&b, "ACTIVE SW VER : %s\n", d.cfg.SoftwareVersion)
	b.WriteString("STANDBY SW VER : 3.0.9.4")
	return b.String()
}

func (d *Driver) pendingFor(ref string) *pendingOp {
	for _, op := range d.pending {
		if op.create && (op.src == ref || op.dst == ref) {
			return op
		}
	}
	return nil
}

func (d *Driver) generatePortOutput(only string) string {
	var b strings.Builder
	b.WriteString("Port        Admin     Oper      Status        Count  Connected  Name\n")
	b.WriteString("----------------------------------------------------------------------\n")
	for id := d.cfg.FirstPort; id <= d.cfg.LastPort; id++ {
		for _, dir := range []string{"E", "W"} {
			ref := fmt.Sprintf("%s%d", dir, id)
			if only != "" && only != ref {
				continue
			}
			admin, oper := "Unlocked", "Enabled"
			if d.locked[ref] {
				admin = "Locked"
			}
			if d.disabled[ref] {
				oper = "Disabled"
			}
			status, peer := "Disconnected", "-"
			if p, ok := d.peers[ref]; ok {
				status = "Connected"
				peer = fmt.Sprintf("%s[%s]", p, d.fullName(p))
			} else if op := d.pendingFor(ref); op != nil {
				status = "In Process"
			}
			logical := fmt.Sprintf("%s%d", strings.ToUpper(d.cfg.Letter), id)
			if d.cfg.Legacy {
				fmt.Fprintf(&b, "%s[%s]  %s  %s  %s  %d  %s  %s\n",
					ref, d.fullName(ref), admin, oper, status, id, peer, logical)
			} else {
				fmt.Fprintf(&b, "%s  %s  %s  %s  %d  %s  %s,%s\n",
					d.fullName(ref), admin, oper, status, id, peer, ref, logical)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Driver) generatePendingOutput() string {
	if d.severeArmed {
		d.severeArmed = false
		d.severeActive = true
		return SevereFailureText
	}

	remaining := d.pending[:0]
	for _, op := range d.pending {
		if op.remaining <= 0 && !d.stuck {
			d.apply(op)
			continue
		}
		remaining = append(remaining, op)
	}
	d.pending = remaining

	if len(d.pending) == 0 {
		return "No pending connections"
	}

	rows := make([]string, 0, len(d.pending))
	for _, op := range d.pending {
		kind := "disconnect"
		if op.create {
			kind = "create"
		}
		if d.cfg.ColumnarPending {
			rows = append(rows, fmt.Sprintf("%-8s %-8s %-10s Pending", d.fullName(op.src), d.fullName(op.dst), kind))
		} else {
			rows = append(rows, fmt.Sprintf("%s: %s to %s (pending)", kind, d.fullName(op.src), d.fullName(op.dst)))
		}
		if !d.stuck {
			op.remaining--
		}
	}
	sort.Strings(rows)
	header := "Pending connections:"
	if d.cfg.ColumnarPending {
		header = "Source   Dest     Operation  State"
	}
	return header + "\n" + strings.Join(rows, "\n")
}

// Ensure Driver implements the channel and driver interfaces
var (
	_ types.CLIChannel = (*Driver)(nil)
	_ types.Driver     = (*Driver)(nil)
)
