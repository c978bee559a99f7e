package internal

import (
	"math"
)

// Inspired by https://github.com/LucaTheHacker/go-haversine

const (
	earthRadiusKilometers    float64 = 6371 // Radius of Earth in kilometers
	earthRadiusNauticalMiles float64 = 3443 // Radius of Earth in nautical miles
	degToRad                 float64 = math.Pi / 180
)

const (
	dirUnknown string = "unknown"
	dirN       string = "north"
	dirNNE     string = "north-northeast"
	dirNE      string = "northeast"
	dirENE     string = "east-northeast"
	dirE       string = "east"
	dirESE     string = "east-southeast"
	dirSE      string = "southeast"
	dirSSE     string = "south-southeast"
	dirS       string = "south"
	dirSSW     string = "south-southwest"
	dirSW      string = "southwest"
	dirWSW     string = "west-southwest"
	dirW       string = "west"
	dirWNW     string = "west-northwest"
	dirNW      string = "northwest"
	dirNNW     string = "north-northwest"
)

var directions = []string{ //nolint: gochecknoglobals // lookup table
	dirN,
	dirNNE,
	dirNE,
	dirENE,
	dirE,
	dirESE,
	dirSE,
	dirSSE,
	dirS,
	dirSSW,
	dirSW,
	dirWSW,
	dirW,
	dirWNW,
	dirNW,
	dirNNW,
}

// Coordinates is a position on the earth's surface in decimal degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

func (c Coordinates) toRadians() Coordinates {
	return Coordinates{
		Latitude:  c.Latitude * degToRad,
		Longitude: c.Longitude * degToRad,
	}
}

// NewCoordinates returns a Coordinates struct based on parameters passed.
func NewCoordinates(latitude, longitude float64) Coordinates {
	return Coordinates{
		Latitude:  latitude,
		Longitude: longitude,
	}
}

// Distance is the central angle between two points. Multiply by a radius to get a length.
type Distance struct {
	C float64
}

func (d Distance) Kilometers() float64 {
	return d.C * earthRadiusKilometers
}

func (d Distance) NauticalMiles() float64 {
	return d.C * earthRadiusNauticalMiles
}

// Haversine calculates the great circle distance between p and q.
//
//nolint:mnd // readability of mathematic formula
func Haversine(p, q Coordinates) Distance {
	fromPos := p.toRadians()
	toPos := q.toRadians()

	deltaLat := toPos.Latitude - fromPos.Latitude
	deltaLon := toPos.Longitude - fromPos.Longitude

	a := math.Pow(math.Sin(deltaLat/2), 2) +
		math.Cos(fromPos.Latitude)*
			math.Cos(toPos.Latitude)*
			math.Pow(math.Sin(deltaLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return Distance{C: c}
}

// Bearing calculates the initial bearing (forward azimuth) from p to q in degrees [0, 360).
func Bearing(p, q Coordinates) float64 {
	from := p.toRadians()
	to := q.toRadians()

	dLon := to.Longitude - from.Longitude

	y := math.Sin(dLon) * math.Cos(to.Latitude)
	x := math.Cos(from.Latitude)*math.Sin(to.Latitude) -
		math.Sin(from.Latitude)*math.Cos(to.Latitude)*math.Cos(dLon)

	brngDeg := math.Atan2(y, x) / degToRad

	// The result from Atan2 ranges from -180 to +180
	return math.Mod(brngDeg+360.0, 360.0) //nolint: mnd // readability
}

// CompassDirection names the 16-point compass sector a bearing falls into.
func CompassDirection(bearing float64) string {
	if math.IsNaN(bearing) || bearing < 0 || bearing > 360 {
		return dirUnknown
	}

	step := 360.0 / float64(len(directions))
	idx := int(math.Floor((bearing+step/2)/step)) % len(directions)
	return directions[idx]
}
