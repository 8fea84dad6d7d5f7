package southbound

import (
	"fmt"

	"github.com/nanoncore/nano-rome/drivers/cli"
	"github.com/nanoncore/nano-rome/drivers/mock"
	"github.com/nanoncore/nano-rome/vendors/rome"
)

// CapabilityMatrix defines what each vendor supports
var CapabilityMatrix = map[Vendor]VendorCapabilities{
	VendorRome: {
		PrimaryProtocol: ProtocolSSH,
		SupportedProtocols: []Protocol{
			ProtocolSSH,
			ProtocolTelnet,
		},
		MaxControllers: 2,
	},
	VendorMock: {
		PrimaryProtocol: ProtocolSSH,
		SupportedProtocols: []Protocol{
			ProtocolSSH,
			ProtocolTelnet,
		},
		MaxControllers: 2,
	},
}

// VendorCapabilities defines what protocols a vendor supports and how many
// controllers one matrix may span
type VendorCapabilities struct {
	PrimaryProtocol    Protocol
	SupportedProtocols []Protocol
	MaxControllers     int
}

// NewChannel creates the CLI channel for one controller. config.Address
// is the controller host.
func NewChannel(vendor Vendor, protocol Protocol, config *EquipmentConfig) (CLIChannel, error) {
	caps, ok := CapabilityMatrix[vendor]
	if !ok {
		return nil, fmt.Errorf("unsupported vendor: %s", vendor)
	}

	// If protocol not specified, use primary
	if protocol == "" {
		protocol = caps.PrimaryProtocol
	}

	supported := false
	for _, p := range caps.SupportedProtocols {
		if p == protocol {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("vendor %s does not support protocol %s", vendor, protocol)
	}

	// Mock vendor uses the simulated controller regardless of protocol
	if vendor == VendorMock {
		return mock.NewFromEquipment(config)
	}

	c := *config
	c.Protocol = protocol
	d, err := cli.NewDriver(&c, cli.DefaultCommandMode())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s driver: %w", protocol, err)
	}
	return d, nil
}

// NewDriver creates a Rome adapter for address, with one channel per
// controller host in it. config is a template: its Address is replaced by
// each host. The adapter is returned unconnected.
func NewDriver(vendor Vendor, protocol Protocol, address string, config *EquipmentConfig, opts ...rome.Option) (*rome.Adapter, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	addr, err := rome.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if caps, ok := CapabilityMatrix[vendor]; ok && len(addr.Hosts()) > caps.MaxControllers {
		return nil, fmt.Errorf("vendor %s supports at most %d controllers", vendor, caps.MaxControllers)
	}

	channels := make([]CLIChannel, 0, len(addr.Hosts()))
	for _, host := range addr.Hosts() {
		c := *config
		c.Address = host
		ch, err := NewChannel(vendor, protocol, &c)
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", host, err)
		}
		channels = append(channels, ch)
	}

	opts = append([]rome.Option{rome.WithMetadata(config.Metadata)}, opts...)
	return rome.NewAdapter(addr, channels, opts...)
}

// GetSupportedVendors returns a list of all supported vendors
func GetSupportedVendors() []Vendor {
	vendors := make([]Vendor, 0, len(CapabilityMatrix))
	for v := range CapabilityMatrix {
		vendors = append(vendors, v)
	}
	return vendors
}

// GetVendorCapabilities returns the capabilities for a vendor
func GetVendorCapabilities(vendor Vendor) (VendorCapabilities, bool) {
	caps, ok := CapabilityMatrix[vendor]
	return caps, ok
}
