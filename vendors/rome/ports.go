package rome

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/nanoncore/nano-rome/types"
	"github.com/nanoncore/nano-rome/vendors/common"
)

// Direction is the side of a port pair a sub-port sits on
type Direction int

const (
	East Direction = iota + 1
	West
)

// ParseDirection maps "E"/"W" (any case) onto a Direction
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(s) {
	case "E":
		return East, true
	case "W":
		return West, true
	}
	return 0, false
}

func (d Direction) String() string {
	switch d {
	case East:
		return "E"
	case West:
		return "W"
	}
	return "?"
}

// Opposite returns the other side of the pair
func (d Direction) Opposite() Direction {
	if d == East {
		return West
	}
	return East
}

// SubPortRef identifies a sub-port on one controller, e.g. E12
type SubPortRef struct {
	Direction Direction
	ID        string
}

func (r SubPortRef) String() string {
	if r.IsZero() {
		return ""
	}
	return r.Direction.String() + r.ID
}

// IsZero reports whether the ref is unset
func (r SubPortRef) IsZero() bool {
	return r.Direction == 0 && r.ID == ""
}

// SubPort is one physical fiber endpoint, as reported in a single listing
type SubPort struct {
	Direction   Direction
	ID          string
	FullName    string
	Locked      bool
	Enabled     bool
	Connected   bool
	ConnectedTo SubPortRef
	LogicalName string

	// Host is the controller the listing came from
	Host string
}

// Ref returns the direction+id identifier of the sub-port
func (s *SubPort) Ref() SubPortRef {
	return SubPortRef{Direction: s.Direction, ID: s.ID}
}

// Name is the identifier used in device commands
func (s *SubPort) Name() string {
	if s.FullName != "" {
		return s.FullName
	}
	return s.Ref().String()
}

// BladeLetter is the first letter of the logical name
func (s *SubPort) BladeLetter() string {
	if s.LogicalName == "" {
		return ""
	}
	return strings.ToUpper(s.LogicalName[:1])
}

// Usable reports whether the sub-port may take a new connection
func (s *SubPort) Usable() bool {
	return !s.Locked && s.Enabled
}

// PairedPort is the East and West sub-port sharing a port name on one host
type PairedPort struct {
	PortName string
	Host     string
	East     *SubPort
	West     *SubPort
}

// Set places sp into the slot for its direction
func (p *PairedPort) Set(sp *SubPort) error {
	var slot **SubPort
	switch sp.Direction {
	case East:
		slot = &p.East
	case West:
		slot = &p.West
	default:
		return fmt.Errorf("sub-port %s has no direction", sp.Name())
	}
	if *slot != nil {
		return &types.StateConsistencyError{
			Kind:   types.ConsistencyDirectionSet,
			Port:   p.PortName,
			Detail: fmt.Sprintf("%s side on %s already holds %s", sp.Direction, p.Host, (*slot).Name()),
		}
	}
	*slot = sp
	return nil
}

// Get returns the sub-port on the given side, or nil
func (p *PairedPort) Get(d Direction) *SubPort {
	if d == East {
		return p.East
	}
	return p.West
}

// SubPorts returns the populated sides, East first
func (p *PairedPort) SubPorts() []*SubPort {
	return lo.Compact([]*SubPort{p.East, p.West})
}

// LogicalPort is the externally addressed port. It wraps one PairedPort,
// or two (one per controller) for a dual-controller Q128 matrix.
type LogicalPort struct {
	Name        string
	BladeLetter string
	PortID      int
	PairedPorts []*PairedPort
}

// PairedPort returns the pair that lives on host, or nil
func (lp *LogicalPort) PairedPort(host string) *PairedPort {
	for _, pp := range lp.PairedPorts {
		if pp.Host == host {
			return pp
		}
	}
	return nil
}

// Hosts returns the controllers the port has sub-ports on
func (lp *LogicalPort) Hosts() []string {
	return lo.Map(lp.PairedPorts, func(pp *PairedPort, _ int) string { return pp.Host })
}

// SubPorts returns every sub-port of every pair
func (lp *LogicalPort) SubPorts() []*SubPort {
	return lo.FlatMap(lp.PairedPorts, func(pp *PairedPort, _ int) []*SubPort { return pp.SubPorts() })
}

// ConnectedSubPorts returns the sub-port refs the East sides are connected to
func (lp *LogicalPort) ConnectedSubPorts() []SubPortRef {
	refs := make([]SubPortRef, 0, len(lp.PairedPorts))
	for _, pp := range lp.PairedPorts {
		if pp.East != nil && pp.East.Connected && !pp.East.ConnectedTo.IsZero() {
			refs = append(refs, pp.East.ConnectedTo)
		}
	}
	return lo.Uniq(refs)
}

// Usable reports whether every sub-port may take a new connection
func (lp *LogicalPort) Usable() error {
	for _, sp := range lp.SubPorts() {
		if !sp.Usable() {
			return &types.LockedOrDisabledError{Port: lp.Name, Locked: sp.Locked, Disabled: !sp.Enabled}
		}
	}
	return nil
}

func (lp *LogicalPort) clone() *LogicalPort {
	c := *lp
	c.PairedPorts = append([]*PairedPort(nil), lp.PairedPorts...)
	return &c
}

// splitLogicalName splits "Q07" into "Q" and 7
func splitLogicalName(name string) (string, int, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if len(name) < 2 {
		return "", 0, false
	}
	letter := name[:1]
	if letter < "A" || letter > "Z" {
		return "", 0, false
	}
	id, err := strconv.Atoi(name[1:])
	if err != nil || id < 0 {
		return "", 0, false
	}
	return letter, id, true
}

// NormalizePortName turns "q07" into "Q7"
func NormalizePortName(name string) (string, bool) {
	letter, id, ok := splitLogicalName(name)
	if !ok {
		return "", false
	}
	return letter + strconv.Itoa(id), true
}

type hostRef struct {
	host string
	ref  SubPortRef
}

// PortTable maps logical port names onto LogicalPorts and indexes every
// sub-port by the controller it lives on.
type PortTable struct {
	ports map[string]*LogicalPort

	subPorts map[hostRef]*SubPort
	owners   map[hostRef]*LogicalPort
	byRef    map[SubPortRef][]hostRef
}

// NewPortTable returns an empty table
func NewPortTable() *PortTable {
	t := &PortTable{ports: make(map[string]*LogicalPort)}
	t.rebuildIndex()
	return t
}

// ParseTable runs the record parser over every line of a "port show"
// listing from host and groups the sub-ports into logical ports.
func ParseTable(text, host string, remap BladeRemap) (*PortTable, error) {
	t := &PortTable{ports: make(map[string]*LogicalPort)}
	for _, line := range common.Lines(text) {
		sp, ok := ParseSubPort(line, remap)
		if !ok {
			continue
		}
		sp.Host = host
		if err := t.add(sp); err != nil {
			return nil, err
		}
	}
	t.rebuildIndex()
	return t, nil
}

func (t *PortTable) add(sp *SubPort) error {
	name, ok := NormalizePortName(sp.LogicalName)
	if !ok {
		return fmt.Errorf("sub-port %s has invalid logical name %q", sp.Name(), sp.LogicalName)
	}
	lp := t.ports[name]
	if lp == nil {
		letter, id, _ := splitLogicalName(name)
		lp = &LogicalPort{Name: name, BladeLetter: letter, PortID: id}
		t.ports[name] = lp
	}
	pp := lp.PairedPort(sp.Host)
	if pp == nil {
		pp = &PairedPort{PortName: name, Host: sp.Host}
		lp.PairedPorts = append(lp.PairedPorts, pp)
	}
	return pp.Set(sp)
}

// rebuildIndex recomputes the sub-port indices. It runs once after every
// mutation of the table.
func (t *PortTable) rebuildIndex() {
	t.subPorts = make(map[hostRef]*SubPort)
	t.owners = make(map[hostRef]*LogicalPort)
	t.byRef = make(map[SubPortRef][]hostRef)
	for _, lp := range t.ports {
		for _, sp := range lp.SubPorts() {
			key := hostRef{host: sp.Host, ref: sp.Ref()}
			t.subPorts[key] = sp
			t.owners[key] = lp
			t.byRef[sp.Ref()] = append(t.byRef[sp.Ref()], key)
		}
	}
}

// MergeTables returns the union of a and b. Logical names must be disjoint,
// except that a Q-family port may collect one pair from each of two hosts.
func MergeTables(a, b *PortTable) (*PortTable, error) {
	t := &PortTable{ports: make(map[string]*LogicalPort, len(a.ports)+len(b.ports))}
	for name, lp := range a.ports {
		t.ports[name] = lp.clone()
	}
	for name, lp := range b.ports {
		existing, ok := t.ports[name]
		if !ok {
			t.ports[name] = lp.clone()
			continue
		}
		if existing.BladeLetter != "Q" {
			return nil, &types.StateConsistencyError{
				Kind:   types.ConsistencyDuplicateName,
				Port:   name,
				Detail: "reported by more than one controller",
			}
		}
		for _, pp := range lp.PairedPorts {
			if existing.PairedPort(pp.Host) != nil || len(existing.PairedPorts) >= 2 {
				return nil, &types.StateConsistencyError{
					Kind:   types.ConsistencyDuplicateName,
					Port:   name,
					Detail: fmt.Sprintf("pair from %s already present", pp.Host),
				}
			}
			existing.PairedPorts = append(existing.PairedPorts, pp)
		}
	}
	t.rebuildIndex()
	return t, nil
}

// Len returns the number of logical ports
func (t *PortTable) Len() int {
	return len(t.ports)
}

// Lookup returns the logical port with the given name
func (t *PortTable) Lookup(name string) (*LogicalPort, error) {
	norm, ok := NormalizePortName(name)
	if !ok {
		return nil, &types.PortLookupError{Name: name}
	}
	lp, ok := t.ports[norm]
	if !ok {
		return nil, &types.PortLookupError{Name: name}
	}
	return lp, nil
}

// LookupSubPort resolves ref as seen from host. A ref that does not exist on
// host resolves to the single other controller that has it.
func (t *PortTable) LookupSubPort(host string, ref SubPortRef) (*SubPort, *LogicalPort, error) {
	key := hostRef{host: host, ref: ref}
	if sp, ok := t.subPorts[key]; ok {
		return sp, t.owners[key], nil
	}
	if keys := t.byRef[ref]; len(keys) == 1 {
		return t.subPorts[keys[0]], t.owners[keys[0]], nil
	}
	return nil, nil, &types.PortLookupError{Name: fmt.Sprintf("%s on %s", ref, host)}
}

// Ports returns all logical ports ordered by blade letter and port id
func (t *PortTable) Ports() []*LogicalPort {
	ports := lo.Values(t.ports)
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].BladeLetter != ports[j].BladeLetter {
			return ports[i].BladeLetter < ports[j].BladeLetter
		}
		return ports[i].PortID < ports[j].PortID
	})
	return ports
}

// BladeLetters returns the distinct blade letters present, sorted
func (t *PortTable) BladeLetters() []string {
	letters := lo.Uniq(lo.Map(lo.Values(t.ports), func(lp *LogicalPort, _ int) string { return lp.BladeLetter }))
	sort.Strings(letters)
	return letters
}

// ConnectedPeer returns the logical port lp is connected to, or nil. Every
// connected sub-port of lp must agree on the peer, and the far sub-port must
// report the connection back.
func (t *PortTable) ConnectedPeer(lp *LogicalPort) (*LogicalPort, error) {
	var peer *LogicalPort
	for _, sp := range lp.SubPorts() {
		if !sp.Connected || sp.ConnectedTo.IsZero() {
			continue
		}
		far, owner, err := t.LookupSubPort(sp.Host, sp.ConnectedTo)
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", lp.Name, err)
		}
		if far.ConnectedTo != sp.Ref() {
			return nil, &types.StateConsistencyError{
				Kind:   types.ConsistencyAsymmetric,
				Port:   lp.Name,
				Detail: fmt.Sprintf("%s reports %s but %s reports %q", sp.Name(), far.Name(), far.Name(), far.ConnectedTo.String()),
			}
		}
		if peer != nil && peer != owner {
			return nil, &types.StateConsistencyError{
				Kind:   types.ConsistencyDifferentPorts,
				Port:   lp.Name,
				Detail: fmt.Sprintf("%s and %s", peer.Name, owner.Name),
			}
		}
		peer = owner
	}
	return peer, nil
}

// VerifyConnectable checks that a and b may be connected to each other:
// both usable, and neither connected to a third port.
func VerifyConnectable(t *PortTable, a, b *LogicalPort) error {
	for _, pair := range [][2]*LogicalPort{{a, b}, {b, a}} {
		lp, counterpart := pair[0], pair[1]
		if err := lp.Usable(); err != nil {
			return err
		}
		peer, err := t.ConnectedPeer(lp)
		if err != nil {
			return err
		}
		if peer != nil && peer != counterpart {
			return &types.StateConsistencyError{
				Kind:   types.ConsistencyAlreadyConnected,
				Port:   lp.Name,
				Detail: "connected to " + peer.Name,
			}
		}
	}
	return nil
}
