package serial

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	ser "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Description describes a specific serial device.
type Description struct {
	Type    Type   `json:"type"`
	Path    string `json:"path"`
	Product string `json:"product,omitempty"`
}

// Type identifies a specific serial device type, like an arduino.
type Type string

// The known device types.
const (
	TypeUnknown   Type = "unknown"
	TypeArduino   Type = "arduino"
	TypeUSBSerial Type = "usb-serial"
)

// USB vendor ids of boards that commonly drive a turtle.
var arduinoVendors = map[string]struct{}{
	"2341": {}, // Arduino SA
	"2a03": {}, // Arduino.org
	"1a86": {}, // QinHeng CH340 clones
}

// Enumeration hooks, replaceable in tests.
var (
	detailedPorts = enumerator.GetDetailedPortsList
	portNames     = ser.GetPortsList
)

// ListPorts enumerates the serial ports on this machine, arduinos first.
func ListPorts() ([]Description, error) {
	details, err := detailedPorts()
	if err == nil && len(details) > 0 {
		descs := make([]Description, 0, len(details))
		for _, d := range details {
			descs = append(descs, describe(d))
		}
		sortDescriptions(descs)
		return descs, nil
	}

	names, nameErr := portNames()
	if nameErr != nil {
		if err != nil {
			return nil, errors.Wrap(nameErr, err.Error())
		}
		return nil, errors.Wrap(nameErr, "listing serial ports")
	}
	descs := make([]Description, 0, len(names))
	for _, name := range names {
		descs = append(descs, Description{Type: TypeUnknown, Path: name})
	}
	sortDescriptions(descs)
	return descs, nil
}

func describe(d *enumerator.PortDetails) Description {
	desc := Description{Type: TypeUnknown, Path: d.Name, Product: d.Product}
	if !d.IsUSB {
		return desc
	}
	if _, ok := arduinoVendors[strings.ToLower(d.VID)]; ok {
		desc.Type = TypeArduino
	} else {
		desc.Type = TypeUSBSerial
	}
	return desc
}

func typeRank(t Type) int {
	switch t {
	case TypeArduino:
		return 0
	case TypeUSBSerial:
		return 1
	case TypeUnknown:
	}
	return 2
}

func sortDescriptions(descs []Description) {
	sort.SliceStable(descs, func(i, j int) bool {
		ri, rj := typeRank(descs[i].Type), typeRank(descs[j].Type)
		if ri != rj {
			return ri < rj
		}
		return descs[i].Path < descs[j].Path
	})
}
