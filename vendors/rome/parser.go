package rome

import (
	"regexp"
	"strings"

	"github.com/nanoncore/nano-rome/vendors/common"
)

// BladeRemap rewrites the blade letter of legacy logical names. Some
// firmware lists Q-family port blocks under other letters; the mapping is
// per deployment, e.g. {"C": "Q", "D": "Q"}.
type BladeRemap map[string]string

// Apply returns the remapped blade letter
func (r BladeRemap) Apply(letter string) string {
	letter = strings.ToUpper(letter)
	if to, ok := r[letter]; ok {
		return strings.ToUpper(to)
	}
	return letter
}

// portLineRe matches one row of "port show". Legacy rows start with the
// sub-port and an optional bracketed full name:
//
//	E1[1AE1]  Unlocked  Enabled  Connected  2   W2[1AW2]  A1
//
// current rows start with the full name and repeat the sub-port before the
// logical name:
//
//	1AE1      Unlocked  Enabled  Connected  17  W2[1AW2]  E1,A1
var portLineRe = regexp.MustCompile(`(?i)^\s*` +
	`(?:(?P<ldir>[EW])(?P<lid>\d+)(?:\[(?P<lfull>[^\]\s]*)\])?|(?P<cfull>\w*?(?P<cdir>[EW])(?P<cid>\d+)))` +
	`\s+(?P<admin>unlocked|locked)` +
	`\s+(?P<oper>enabled|disabled)` +
	`\s+(?P<link>disconnected|connected|in\s+process)` +
	`\s+\d+` +
	`(?:\s+(?:(?P<pdir>[EW])(?P<pid>\d+)(?:\[[^\]\s]*\])?|-))?` +
	`\s+(?:[EW]\d+,)?(?P<logical>[A-Z]\d+)` +
	`\s*$`)

// ParseSubPort parses one "port show" row. Header, separator and blank
// lines yield false.
func ParseSubPort(line string, remap BladeRemap) (*SubPort, bool) {
	line = strings.TrimRight(common.StripANSI(line), "\r")
	m := portLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	group := func(name string) string {
		return m[portLineRe.SubexpIndex(name)]
	}

	dir, id, full := group("ldir"), group("lid"), group("lfull")
	if dir == "" {
		dir, id, full = group("cdir"), group("cid"), group("cfull")
	}
	direction, _ := ParseDirection(dir)

	sp := &SubPort{
		Direction: direction,
		ID:        strings.TrimLeft(id, "0"),
		FullName:  strings.ToUpper(full),
		Locked:    strings.EqualFold(group("admin"), "locked"),
		Enabled:   strings.EqualFold(group("oper"), "enabled"),
		Connected: strings.EqualFold(group("link"), "connected"),
	}
	if sp.ID == "" {
		sp.ID = "0"
	}

	if pdir := group("pdir"); pdir != "" {
		peerDir, _ := ParseDirection(pdir)
		peerID := strings.TrimLeft(group("pid"), "0")
		if peerID == "" {
			peerID = "0"
		}
		sp.ConnectedTo = SubPortRef{Direction: peerDir, ID: peerID}
	}

	logical := strings.ToUpper(group("logical"))
	sp.LogicalName = remap.Apply(logical[:1]) + logical[1:]

	return sp, true
}
