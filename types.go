package southbound

// Re-export types from the types sub-package so callers can stay on the
// root package for the common cases.

import (
	"github.com/nanoncore/nano-rome/types"
)

// Type aliases
type (
	Protocol        = types.Protocol
	Vendor          = types.Vendor
	EquipmentType   = types.EquipmentType
	EquipmentConfig = types.EquipmentConfig
	Driver          = types.Driver
	CLIExecutor     = types.CLIExecutor
	CLIChannel      = types.CLIChannel
)

// Re-export constants
const (
	ProtocolSSH    = types.ProtocolSSH
	ProtocolTelnet = types.ProtocolTelnet

	VendorRome = types.VendorRome
	VendorMock = types.VendorMock

	EquipmentTypeOCS = types.EquipmentTypeOCS
)
