package units

import "fmt"

// DistanceScale converts raw range readings (meters) into a display unit.
type DistanceScale interface {
	Convert(meters float64) float64
	Suffix() string
}

// Kilometers scale
type Kilometers struct{}

func (Kilometers) Convert(meters float64) float64 { return meters / 1000 }
func (Kilometers) Suffix() string                 { return "km" }

// Miles scale
type Miles struct{}

func (Miles) Convert(meters float64) float64 { return meters * 0.000621371 }
func (Miles) Suffix() string                 { return "mi" }

// Furlongs scale
type Furlongs struct{}

func (Furlongs) Convert(meters float64) float64 { return meters * 0.000621371 * 8.0 }
func (Furlongs) Suffix() string                 { return "fur" }

// ScaleFor returns the scale for a configured unit name.
func ScaleFor(unit string) (DistanceScale, error) {
	switch unit {
	case "km":
		return Kilometers{}, nil
	case "mi":
		return Miles{}, nil
	case "furlong":
		return Furlongs{}, nil
	}
	return nil, fmt.Errorf("unknown distance unit %q", unit)
}

// FormatDistance renders a raw meter reading in the given scale with one
// decimal place and the unit suffix, e.g. "117.5km".
func FormatDistance(s DistanceScale, meters float64) string {
	return fmt.Sprintf("%.1f%s", s.Convert(meters), s.Suffix())
}
