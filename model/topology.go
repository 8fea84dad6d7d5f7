// Package model contains the exported resource types of an optical switch:
// the chassis, its blades and their ports. They are the shape handed to the
// orchestration platform and are rebuilt from a live poll on every request.
package model

// DefaultModelName is used when the board listing has no model type line.
const DefaultModelName = "Rome"

// BoardInfo is scraped from the "show board" output of one controller.
// Fields the controller did not report are left empty.
type BoardInfo struct {
	SerialNumber    string `json:"serialNumber,omitempty" yaml:"serialNumber,omitempty"`
	ModelName       string `json:"modelName,omitempty" yaml:"modelName,omitempty"`
	SoftwareVersion string `json:"softwareVersion,omitempty" yaml:"softwareVersion,omitempty"`
}

// Chassis is the root of an exported topology
type Chassis struct {
	// Name is the resource name, derived from the model name
	Name string `json:"name" yaml:"name"`

	// Address is the caller-supplied address the chassis was built for
	Address string `json:"address" yaml:"address"`

	Model           string `json:"model" yaml:"model"`
	SerialNumber    string `json:"serialNumber,omitempty" yaml:"serialNumber,omitempty"`
	SoftwareVersion string `json:"softwareVersion,omitempty" yaml:"softwareVersion,omitempty"`

	Blades []*Blade `json:"blades" yaml:"blades"`
}

// Blade groups the ports of one matrix letter
type Blade struct {
	Name    string  `json:"name" yaml:"name"`
	Letter  string  `json:"letter" yaml:"letter"`
	Address string  `json:"address" yaml:"address"`
	Ports   []*Port `json:"ports" yaml:"ports"`
}

// Port is one externally addressable (logical) port
type Port struct {
	// Name is "Port <ID>"
	Name string `json:"name" yaml:"name"`

	// ID is the zero-padded port number
	ID string `json:"id" yaml:"id"`

	// LogicalName is the device name of the port, e.g. "A13"
	LogicalName string `json:"logicalName" yaml:"logicalName"`

	Address string `json:"address" yaml:"address"`

	// MappedTo is the address of the connected peer port, if any
	MappedTo string `json:"mappedTo,omitempty" yaml:"mappedTo,omitempty"`
}

// Blade returns the blade with the given letter, or nil
func (c *Chassis) Blade(letter string) *Blade {
	for _, b := range c.Blades {
		if b.Letter == letter {
			return b
		}
	}
	return nil
}

// Port returns the port with the given zero-padded id, or nil
func (b *Blade) Port(id string) *Port {
	for _, p := range b.Ports {
		if p.ID == id {
			return p
		}
	}
	return nil
}
