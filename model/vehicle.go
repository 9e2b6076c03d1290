package model

import (
	"fmt"
	"strings"
)

// VehicleClass identifies which kind of vehicle the moving source is drawn
// and voiced as. It is a pure function of speed (see core.Classify).
type VehicleClass int

const (
	VehicleNone VehicleClass = iota // speed band with no assigned vehicle
	VehicleCar
	VehicleAmbulance
	VehicleSport
	VehicleJet
	VehicleMissile
)

var vehicleClassNames = [...]string{
	VehicleNone:      "none",
	VehicleCar:       "car",
	VehicleAmbulance: "ambulance",
	VehicleSport:     "sport",
	VehicleJet:       "jet",
	VehicleMissile:   "missile",
}

func (c VehicleClass) String() string {
	if c < 0 || int(c) >= len(vehicleClassNames) {
		return fmt.Sprintf("VehicleClass(%d)", int(c))
	}
	return vehicleClassNames[c]
}

// Supersonic reports whether the class is one that can carry a Mach cone.
func (c VehicleClass) Supersonic() bool {
	return c == VehicleJet || c == VehicleMissile
}

func (c VehicleClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *VehicleClass) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range vehicleClassNames {
		if n == name {
			*c = VehicleClass(i)
			return nil
		}
	}
	return fmt.Errorf("unknown vehicle class %q", string(text))
}
