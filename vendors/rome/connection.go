package rome

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/nanoncore/nano-rome/types"
	"github.com/nanoncore/nano-rome/vendors/common"
)

// ErrUnidirectionalUnsupported is returned for a tap (one-way) connection on
// a port that spans controllers.
var ErrUnidirectionalUnsupported = errors.New("unidirectional connections are only supported on single-controller ports")

// PortPair names two logical ports
type PortPair struct {
	Src string
	Dst string
}

type linkOp int

const (
	opCreate linkOp = iota
	opDisconnect
)

func (op linkOp) String() string {
	if op == opCreate {
		return "create"
	}
	return "disconnect"
}

// link is one device-level connection from an East sub-port to a West
// sub-port. Commands for it go to the controller owning the East side.
type link struct {
	host string
	src  *SubPort
	dst  *SubPort
}

func (l link) command(op linkOp) string {
	if op == opCreate {
		return fmt.Sprintf(cmdConnectFmt, l.src.Name(), l.dst.Name())
	}
	return fmt.Sprintf(cmdDisconnectFmt, l.src.Name(), l.dst.Name())
}

func (l link) String() string {
	return l.src.Name() + "->" + l.dst.Name()
}

// key identifies the link across controllers; both halves of a Q128 port
// share sub-port names
func (l link) key() string {
	return l.host + "/" + l.String()
}

// present reports whether table shows the link as connected
func (l link) present(table *PortTable) bool {
	sp, _, err := table.LookupSubPort(l.src.Host, l.src.Ref())
	if err != nil {
		return false
	}
	return sp.Connected && sp.ConnectedTo == l.dst.Ref()
}

// pairLinks returns the links wiring a to b. A bidirectional request wires
// both directions of every per-controller pair; a unidirectional one wires
// a's East side to b's West side only.
func (a *Adapter) pairLinks(src, dst *LogicalPort, bidirectional bool) ([]link, error) {
	if !bidirectional {
		if len(src.PairedPorts) != 1 || len(dst.PairedPorts) != 1 || len(a.channels) > 1 {
			return nil, fmt.Errorf("%s to %s: %w", src.Name, dst.Name, ErrUnidirectionalUnsupported)
		}
		l, err := newLink(src.PairedPorts[0], dst.PairedPorts[0])
		if err != nil {
			return nil, err
		}
		return []link{l}, nil
	}

	if len(dst.PairedPorts) != len(src.PairedPorts) {
		return nil, &types.StateConsistencyError{
			Kind:   types.ConsistencyDifferentPorts,
			Port:   dst.Name,
			Detail: fmt.Sprintf("spans %d controller(s), %s spans %d", len(dst.PairedPorts), src.Name, len(src.PairedPorts)),
		}
	}

	var links []link
	for _, ppSrc := range src.PairedPorts {
		ppDst := dst.PairedPort(ppSrc.Host)
		if ppDst == nil {
			return nil, &types.PortLookupError{Name: fmt.Sprintf("%s on %s", dst.Name, ppSrc.Host)}
		}
		forward, err := newLink(ppSrc, ppDst)
		if err != nil {
			return nil, err
		}
		backward, err := newLink(ppDst, ppSrc)
		if err != nil {
			return nil, err
		}
		links = append(links, forward, backward)
	}
	return lo.UniqBy(links, link.key), nil
}

func newLink(from, to *PairedPort) (link, error) {
	if from.East == nil {
		return link{}, &types.PortLookupError{Name: fmt.Sprintf("%s East side on %s", from.PortName, from.Host)}
	}
	if to.West == nil {
		return link{}, &types.PortLookupError{Name: fmt.Sprintf("%s West side on %s", to.PortName, to.Host)}
	}
	return link{host: from.Host, src: from.East, dst: to.West}, nil
}

// currentLinks returns the links the table shows between a and b, in
// either direction.
func currentLinks(table *PortTable, a, b *LogicalPort) []link {
	var links []link
	for _, pair := range [][2]*LogicalPort{{a, b}, {b, a}} {
		for _, pp := range pair[0].PairedPorts {
			sp := pp.East
			if sp == nil || !sp.Connected || sp.ConnectedTo.IsZero() {
				continue
			}
			far, owner, err := table.LookupSubPort(sp.Host, sp.ConnectedTo)
			if err != nil || owner != pair[1] {
				continue
			}
			links = append(links, link{host: sp.Host, src: sp, dst: far})
		}
	}
	return lo.UniqBy(links, link.key)
}

// portLinks returns every connection touching lp, whichever side it is on
func portLinks(table *PortTable, lp *LogicalPort) []link {
	var links []link
	for _, sp := range lp.SubPorts() {
		if !sp.Connected || sp.ConnectedTo.IsZero() {
			continue
		}
		far, _, err := table.LookupSubPort(sp.Host, sp.ConnectedTo)
		if err != nil {
			continue
		}
		if sp.Direction == East {
			links = append(links, link{host: sp.Host, src: sp, dst: far})
		} else {
			links = append(links, link{host: far.Host, src: far, dst: sp})
		}
	}
	return lo.UniqBy(links, link.key)
}

// timeoutFor scales the per-port timeout by the number of logical ports
func (a *Adapter) timeoutFor(ports int) time.Duration {
	if ports < 1 {
		ports = 1
	}
	return a.opts.PortTimeout * time.Duration(ports)
}

// resolvePair looks up both ports of a pair in table
func (a *Adapter) resolvePair(table *PortTable, src, dst string) (*LogicalPort, *LogicalPort, error) {
	srcName, err := a.address.ResolvePort(src)
	if err != nil {
		return nil, nil, err
	}
	dstName, err := a.address.ResolvePort(dst)
	if err != nil {
		return nil, nil, err
	}
	lpSrc, err := table.Lookup(srcName)
	if err != nil {
		return nil, nil, err
	}
	lpDst, err := table.Lookup(dstName)
	if err != nil {
		return nil, nil, err
	}
	return lpSrc, lpDst, nil
}

// loadTable starts an orchestration: it checks what the sessions received
// since the last one for the severe failure marker, clears their buffers,
// then reads the port table and checks it against the address.
func (a *Adapter) loadTable(ctx context.Context) (*PortTable, error) {
	for _, ch := range a.channels {
		if err := a.checkSevereFailure(ctx, ch); err != nil {
			return nil, err
		}
		ch.ClearBuffer()
	}
	table, err := a.PortTable(ctx)
	if err != nil {
		return nil, err
	}
	if err := CheckAddressing(a.address, table); err != nil {
		return nil, err
	}
	return table, nil
}

// ConnectPorts connects src to dst. A pair that is already connected as
// requested is left alone and no command is sent.
func (a *Adapter) ConnectPorts(ctx context.Context, src, dst string, bidirectional bool) error {
	table, err := a.loadTable(ctx)
	if err != nil {
		return err
	}
	lpSrc, lpDst, err := a.resolvePair(table, src, dst)
	if err != nil {
		return err
	}
	links, err := a.pairLinks(lpSrc, lpDst, bidirectional)
	if err != nil {
		return err
	}

	todo := lo.Reject(links, func(l link, _ int) bool { return l.present(table) })
	if len(todo) == 0 {
		a.logger.Info("ports already connected", "src", lpSrc.Name, "dst", lpDst.Name)
		return nil
	}
	if err := VerifyConnectable(table, lpSrc, lpDst); err != nil {
		return err
	}

	timeout := a.timeoutFor(len(lo.Uniq([]string{lpSrc.Name, lpDst.Name})))
	a.logger.Info("connecting ports", "src", lpSrc.Name, "dst", lpDst.Name, "bidirectional", bidirectional,
		"links", len(todo), "present", len(links)-len(todo))

	if err := a.applyLinks(ctx, todo, opCreate, timeout); err != nil {
		if !errors.Is(err, types.ErrSevereHardwareFault) && errors.Is(err, types.ErrTimeout) {
			a.compensate(ctx, todo, timeout)
		}
		return fmt.Errorf("connect %s to %s: %w", lpSrc.Name, lpDst.Name, err)
	}

	after, err := a.PortTable(ctx)
	if err != nil {
		return err
	}
	if missing := lo.Reject(links, func(l link, _ int) bool { return l.present(after) }); len(missing) > 0 {
		a.compensate(ctx, todo, timeout)
		return &types.ConnectionPortsError{
			Op:      "connect",
			Src:     lpSrc.Name,
			Dst:     lpDst.Name,
			Timeout: timeout,
			Cause:   fmt.Errorf("links not established: %s", strings.Join(lo.Map(missing, func(l link, _ int) string { return l.String() }), ", ")),
		}
	}
	a.logger.Info("ports connected", "src", lpSrc.Name, "dst", lpDst.Name)
	return nil
}

// DisconnectPorts disconnects each pair. In the default mode only the
// connections the device currently shows between the two ports are
// removed; bidirectional mode removes both directions of every
// per-controller pair.
func (a *Adapter) DisconnectPorts(ctx context.Context, pairs []PortPair, bidirectional bool) error {
	table, err := a.loadTable(ctx)
	if err != nil {
		return err
	}

	var links []link
	var names []string
	for _, p := range pairs {
		lpSrc, lpDst, err := a.resolvePair(table, p.Src, p.Dst)
		if err != nil {
			return err
		}
		names = append(names, lpSrc.Name, lpDst.Name)

		current := currentLinks(table, lpSrc, lpDst)
		if !bidirectional || len(current) == 0 {
			links = append(links, current...)
			continue
		}
		all, err := a.pairLinks(lpSrc, lpDst, true)
		if err != nil {
			return err
		}
		links = append(links, all...)
	}
	links = lo.UniqBy(links, link.key)

	if len(links) == 0 {
		a.logger.Info("ports already disconnected", "ports", names)
		return nil
	}
	return a.removeLinks(ctx, links, len(lo.Uniq(names)))
}

// ClearPorts removes every connection touching the given ports
func (a *Adapter) ClearPorts(ctx context.Context, ports []string) error {
	table, err := a.loadTable(ctx)
	if err != nil {
		return err
	}

	var links []link
	for _, name := range ports {
		resolved, err := a.address.ResolvePort(name)
		if err != nil {
			return err
		}
		lp, err := table.Lookup(resolved)
		if err != nil {
			return err
		}
		links = append(links, portLinks(table, lp)...)
	}
	links = lo.UniqBy(links, link.key)

	if len(links) == 0 {
		a.logger.Info("ports have no connections", "ports", ports)
		return nil
	}
	return a.removeLinks(ctx, links, len(ports))
}

func (a *Adapter) removeLinks(ctx context.Context, links []link, ports int) error {
	timeout := a.timeoutFor(ports)
	a.logger.Info("disconnecting", "links", len(links))
	if err := a.applyLinks(ctx, links, opDisconnect, timeout); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}

	after, err := a.PortTable(ctx)
	if err != nil {
		return err
	}
	if remaining := lo.Filter(links, func(l link, _ int) bool { return l.present(after) }); len(remaining) > 0 {
		return &types.ConnectionPortsError{
			Op:      "disconnect",
			Src:     remaining[0].src.LogicalName,
			Dst:     remaining[0].dst.LogicalName,
			Timeout: timeout,
		}
	}
	return nil
}

// compensate makes one attempt to remove links after a failed connect
func (a *Adapter) compensate(ctx context.Context, links []link, timeout time.Duration) {
	a.logger.Warn("compensating disconnect", "links", len(links))
	if err := a.applyLinks(ctx, links, opDisconnect, timeout); err != nil {
		a.logger.Error("compensating disconnect failed", "error", err)
	}
}

// applyLinks issues op for every link on the controller that owns it and
// waits until the controller no longer lists them as pending. Controllers
// are worked in parallel.
func (a *Adapter) applyLinks(ctx context.Context, links []link, op linkOp, timeout time.Duration) error {
	byHost := lo.GroupBy(links, func(l link) string { return l.host })
	channels := make([]types.CLIChannel, 0, len(byHost))
	for _, ch := range a.channels {
		if _, ok := byHost[ch.Host()]; ok {
			channels = append(channels, ch)
		}
	}
	if len(channels) != len(byHost) {
		return fmt.Errorf("links reference a controller outside %s", a.address)
	}

	_, err := RunOnHosts(ctx, a.logger, channels, func(ctx context.Context, ch types.CLIChannel) (struct{}, error) {
		hostLinks := byHost[ch.Host()]
		for _, l := range hostLinks {
			cmd := l.command(op)
			a.logger.Debug("issuing command", "host", ch.Host(), "command", cmd)
			if _, err := execChecked(ctx, ch, cmd); err != nil {
				return struct{}{}, err
			}
			a.opts.Metrics.commandIssued(ch.Host(), op)
		}
		return struct{}{}, a.waitNotPending(ctx, ch, hostLinks, timeout)
	})
	return err
}

// waitNotPending polls the pending queue of ch until none of links is
// listed or timeout elapses. The session buffer is checked for the severe
// failure marker around every query.
func (a *Adapter) waitNotPending(ctx context.Context, ch types.CLIChannel, links []link, timeout time.Duration) error {
	matchers := lo.Map(links, func(l link, _ int) pendingMatcher { return newPendingMatcher(l) })
	start := time.Now()
	deadline := start.Add(timeout)
	for {
		if err := a.checkSevereFailure(ctx, ch); err != nil {
			return err
		}
		out, err := execChecked(ctx, ch, cmdShowPending)
		if err != nil {
			return err
		}
		if err := a.checkSevereFailure(ctx, ch); err != nil {
			return err
		}

		pending := lo.Filter(matchers, func(m pendingMatcher, _ int) bool { return m.match(out) })
		if len(pending) == 0 {
			a.opts.Metrics.pendingCleared(time.Since(start))
			a.logger.Debug("pending operations cleared", "host", ch.Host(), "elapsed", time.Since(start))
			return nil
		}
		if !time.Now().Before(deadline) {
			a.opts.Metrics.timedOut(ch.Host())
			a.logger.Warn("pending operations timed out", "host", ch.Host(), "pending", len(pending), "timeout", timeout)
			return &types.TimeoutError{
				Host:    ch.Host(),
				Pending: lo.Map(pending, func(m pendingMatcher, _ int) string { return m.link.String() }),
				Timeout: timeout,
			}
		}
		a.logger.Debug("operations pending", "host", ch.Host(), "pending", len(pending))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.opts.PollInterval):
		}
	}
}

// pendingMatcher recognises one link in a pending listing. The controller
// prints either "<src> to <dst>" (or "from") on one line, or src and dst
// as separate columns of one row.
type pendingMatcher struct {
	link    link
	inline  []*regexp.Regexp
	columns [][2]string
}

func newPendingMatcher(l link) pendingMatcher {
	m := pendingMatcher{link: l}
	srcNames := lo.Uniq([]string{strings.ToUpper(l.src.Name()), l.src.Ref().String()})
	dstNames := lo.Uniq([]string{strings.ToUpper(l.dst.Name()), l.dst.Ref().String()})
	for _, s := range srcNames {
		for _, d := range dstNames {
			m.inline = append(m.inline, regexp.MustCompile(
				`(?:^|[^\w])`+regexp.QuoteMeta(s)+`\s*(?:TO|FROM|->|<->)\s*`+regexp.QuoteMeta(d)+`(?:[^\w]|$)`))
			m.columns = append(m.columns, [2]string{s, d})
		}
	}
	return m
}

func (m pendingMatcher) match(listing string) bool {
	for _, line := range strings.Split(strings.ToUpper(listing), "\n") {
		for _, re := range m.inline {
			if re.MatchString(line) {
				return true
			}
		}
		fields := strings.Fields(line)
		for _, c := range m.columns {
			si, di := lo.IndexOf(fields, c[0]), lo.IndexOf(fields, c[1])
			if si >= 0 && di > si {
				return true
			}
		}
	}
	return false
}

// isPending reports whether the pending listing mentions l
func isPending(listing string, l link) bool {
	return newPendingMatcher(l).match(listing)
}

// checkSevereFailure looks for the severe failure marker anywhere in the
// session buffer. When found it runs the recovery sequence, clears the
// buffer and returns a *types.SevereHardwareFault regardless of how the
// recovery went.
func (a *Adapter) checkSevereFailure(ctx context.Context, ch types.CLIChannel) error {
	marker := a.opts.SevereFailureMarker
	if marker == "" || !common.ContainsFold(common.StripANSI(ch.Buffer()), marker) {
		return nil
	}

	a.opts.Metrics.severeFault(ch.Host())
	a.logger.Error("severe failure detected, running recovery", "host", ch.Host(), "marker", marker)

	recoveryErr := a.recover(ctx, ch)
	if recoveryErr != nil {
		a.logger.Error("recovery sequence failed", "host", ch.Host(), "error", recoveryErr)
	}
	ch.ClearBuffer()
	return &types.SevereHardwareFault{Host: ch.Host(), Marker: marker, RecoveryErr: recoveryErr}
}

func (a *Adapter) recover(ctx context.Context, ch types.CLIChannel) error {
	r := a.opts.Recovery
	a.logger.Error("recovery: rehome", "host", ch.Host(), "command", r.Rehome)
	if _, err := ch.ExecCommandExpect(ctx, r.Rehome, a.doneRE, r.RehomeTimeout); err != nil {
		return fmt.Errorf("%s: %w", r.Rehome, err)
	}
	a.logger.Error("recovery: re-enable command execution", "host", ch.Host(), "command", r.Enable)
	if _, err := execChecked(ctx, ch, r.Enable); err != nil {
		return fmt.Errorf("%s: %w", r.Enable, err)
	}
	return nil
}
