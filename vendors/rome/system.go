package rome

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nanoncore/nano-rome/model"
	"github.com/nanoncore/nano-rome/types"
	"github.com/nanoncore/nano-rome/vendors/common"
)

var (
	boardSerialRe  = regexp.MustCompile(`(?is)\bBOARD\b.*?S/N\(\s*([^)\s]+)\s*\)`)
	boardModelRe   = regexp.MustCompile(`(?im)^\s*\S+\s+type\s+([\w.\-]+)`)
	boardVersionRe = regexp.MustCompile(`(?i)ACTIVE\s+SW\s+VER\D*?(\d+\.\d+\.\d+\.\d+)`)

	// commandErrorRe matches the lines the controller prints for rejected
	// commands
	commandErrorRe = regexp.MustCompile(`(?im)^\s*%?\s*(?:error|invalid|unknown command|command failed)\b.*$`)
)

// ParseBoardInfo scrapes the "show board" output. Missing fields stay
// empty, except the model name which falls back to model.DefaultModelName.
func ParseBoardInfo(text string) model.BoardInfo {
	text = common.StripANSI(text)
	info := model.BoardInfo{ModelName: model.DefaultModelName}
	if m := boardSerialRe.FindStringSubmatch(text); m != nil {
		info.SerialNumber = m[1]
	}
	if m := boardModelRe.FindStringSubmatch(text); m != nil {
		info.ModelName = m[1]
	}
	if m := boardVersionRe.FindStringSubmatch(text); m != nil {
		info.SoftwareVersion = m[1]
	}
	return info
}

// execChecked runs command and turns a device error message into a
// *types.CommandError
func execChecked(ctx context.Context, ch types.CLIChannel, command string) (string, error) {
	out, err := ch.ExecCommand(ctx, command)
	if err != nil {
		return out, fmt.Errorf("%s: %w", ch.Host(), err)
	}
	if m := commandErrorRe.FindString(common.StripANSI(out)); m != "" {
		return out, &types.CommandError{Host: ch.Host(), Command: command, Output: strings.TrimSpace(m)}
	}
	return out, nil
}

// BoardInfo reads the board of the first controller
func (a *Adapter) BoardInfo(ctx context.Context) (model.BoardInfo, error) {
	out, err := execChecked(ctx, a.channels[0], cmdShowBoard)
	if err != nil {
		return model.BoardInfo{}, fmt.Errorf("failed to read board info: %w", err)
	}
	return ParseBoardInfo(out), nil
}

// PortTable lists the ports of every controller, in parallel when there is
// more than one, and merges the per-controller tables.
func (a *Adapter) PortTable(ctx context.Context) (*PortTable, error) {
	tables, err := RunOnHosts(ctx, a.logger, a.channels, func(ctx context.Context, ch types.CLIChannel) (*PortTable, error) {
		out, err := execChecked(ctx, ch, cmdPortShow)
		if err != nil {
			return nil, err
		}
		return ParseTable(out, ch.Host(), a.opts.BladeRemap)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read port table: %w", err)
	}

	merged := tables[a.channels[0].Host()]
	for _, ch := range a.channels[1:] {
		merged, err = MergeTables(merged, tables[ch.Host()])
		if err != nil {
			return nil, err
		}
	}
	a.logger.Debug("port table loaded", "ports", merged.Len(), "blades", merged.BladeLetters())
	return merged, nil
}

// PortStatus re-reads every sub-port of a logical port with
// "port show <name>" on the controller that owns it.
func (a *Adapter) PortStatus(ctx context.Context, name string) ([]*SubPort, error) {
	resolved, err := a.address.ResolvePort(name)
	if err != nil {
		return nil, err
	}
	table, err := a.PortTable(ctx)
	if err != nil {
		return nil, err
	}
	lp, err := table.Lookup(resolved)
	if err != nil {
		return nil, err
	}

	var subPorts []*SubPort
	for _, sp := range lp.SubPorts() {
		ch, err := a.channel(sp.Host)
		if err != nil {
			return nil, err
		}
		out, err := execChecked(ctx, ch, fmt.Sprintf(cmdPortShowOneFmt, sp.Name()))
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(out, "\n") {
			if fresh, ok := ParseSubPort(line, a.opts.BladeRemap); ok && fresh.Ref() == sp.Ref() {
				fresh.Host = sp.Host
				subPorts = append(subPorts, fresh)
			}
		}
	}
	return subPorts, nil
}
