package rome

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/nanoncore/nano-rome/model"
	"github.com/nanoncore/nano-rome/types"
)

// CheckAddressing fails when the addressed matrix letter does not occur in
// the table, e.g. matrix A on a device that only lists Q ports.
func CheckAddressing(addr Address, table *PortTable) error {
	if addr.MatrixLetter == "" {
		return nil
	}
	letters := table.BladeLetters()
	if lo.SomeBy(letters, addr.Matches) {
		return nil
	}
	return &types.AddressingError{
		Address: addr.Raw,
		Reason: fmt.Sprintf("matrix %s not present on device (found %s)",
			addr.MatrixLetter, strings.Join(letters, ", ")),
	}
}

// BuildTopology projects the port table onto the chassis/blade/port
// hierarchy. Only ports of the addressed matrix are exported. Port ids are
// zero-padded to the widest id so that lexical and numeric order agree, and
// every connected pair is mapped in both directions.
func BuildTopology(addr Address, info model.BoardInfo, table *PortTable) (*model.Chassis, error) {
	if err := CheckAddressing(addr, table); err != nil {
		return nil, err
	}

	modelName := info.ModelName
	if modelName == "" {
		modelName = model.DefaultModelName
	}
	chassis := &model.Chassis{
		Name:            modelName,
		Address:         addr.String(),
		Model:           modelName,
		SerialNumber:    info.SerialNumber,
		SoftwareVersion: info.SoftwareVersion,
	}

	ports := lo.Filter(table.Ports(), func(lp *LogicalPort, _ int) bool { return addr.Matches(lp.BladeLetter) })
	if len(ports) == 0 {
		return chassis, nil
	}
	maxID := lo.MaxBy(ports, func(a, b *LogicalPort) bool { return a.PortID > b.PortID }).PortID
	width := len(strconv.Itoa(maxID))

	blades := make(map[string]*model.Blade)
	exported := make(map[*LogicalPort]*model.Port, len(ports))
	for _, lp := range ports {
		blade, ok := blades[lp.BladeLetter]
		if !ok {
			blade = &model.Blade{
				Name:    "Blade " + lp.BladeLetter,
				Letter:  lp.BladeLetter,
				Address: chassis.Address + "/" + lp.BladeLetter,
			}
			blades[lp.BladeLetter] = blade
			chassis.Blades = append(chassis.Blades, blade)
		}
		id := fmt.Sprintf("%0*d", width, lp.PortID)
		port := &model.Port{
			Name:        "Port " + id,
			ID:          id,
			LogicalName: lp.Name,
			Address:     blade.Address + "/" + id,
		}
		blade.Ports = append(blade.Ports, port)
		exported[lp] = port
	}

	for _, lp := range ports {
		peer, err := table.ConnectedPeer(lp)
		if err != nil {
			return nil, err
		}
		if peer == nil {
			continue
		}
		back, err := table.ConnectedPeer(peer)
		if err != nil {
			return nil, err
		}
		if back != lp {
			return nil, &types.StateConsistencyError{
				Kind:   types.ConsistencyAsymmetric,
				Port:   lp.Name,
				Detail: fmt.Sprintf("maps to %s but %s does not map back", peer.Name, peer.Name),
			}
		}
		if peerPort, ok := exported[peer]; ok {
			exported[lp].MappedTo = peerPort.Address
		}
	}
	return chassis, nil
}
