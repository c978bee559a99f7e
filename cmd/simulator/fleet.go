package main

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/micutio/aerosync/internal"
	"github.com/micutio/aerosync/internal/frame"
	"github.com/micutio/aerosync/internal/track"
)

const (
	earthRadiusNM = 3440.065
	minAltitude   = 100
	maxAltitude   = 45000
	knotsToNMPerS = 1.0 / 3600
)

// simAircraft is one simulated aircraft moving along a great circle.
type simAircraft struct {
	id           string
	callsign     string
	registration string
	aircraftType string
	operator     string
	latitude     float64 // [decimal degrees]
	longitude    float64 // [decimal degrees]
	altitude     float64 // [feet]
	velocity     float64 // [knots]
	heading      float64 // [degrees]
	verticalRate float64 // [feet/minute]
	turnRate     float64 // [degrees/second]
}

// move advances the aircraft by dt along its heading.
func (a *simAircraft) move(dt time.Duration, rng *rand.Rand) {
	seconds := dt.Seconds()
	angular := a.velocity * knotsToNMPerS * seconds / earthRadiusNM
	heading := a.heading * math.Pi / 180
	lat := a.latitude * math.Pi / 180
	lon := a.longitude * math.Pi / 180

	newLat := math.Asin(math.Sin(lat)*math.Cos(angular) + math.Cos(lat)*math.Sin(angular)*math.Cos(heading))
	newLon := lon + math.Atan2(
		math.Sin(heading)*math.Sin(angular)*math.Cos(lat),
		math.Cos(angular)-math.Sin(lat)*math.Sin(newLat))

	a.latitude = newLat * 180 / math.Pi
	a.longitude = math.Mod(newLon*180/math.Pi+540, 360) - 180 //nolint:mnd // wrap to [-180, 180)

	a.altitude = math.Min(math.Max(a.altitude+a.verticalRate*seconds/60, minAltitude), maxAltitude) //nolint:mnd // per minute
	a.heading = math.Mod(a.heading+a.turnRate*seconds+360, 360)                                     //nolint:mnd // degrees
	a.velocity += float64(rng.IntN(5) - 2)                                                          //nolint:mnd // +/- 2 knots
}

func (a *simAircraft) update() track.Update {
	return track.Update{
		ID:           a.id,
		Callsign:     ptr(a.callsign),
		Registration: ptr(a.registration),
		AircraftType: ptr(a.aircraftType),
		Operator:     ptr(a.operator),
		Latitude:     ptr(a.latitude),
		Longitude:    ptr(a.longitude),
		Altitude:     ptr(a.altitude),
		Velocity:     ptr(a.velocity),
		Heading:      ptr(a.heading),
		VerticalRate: ptr(a.verticalRate),
		OnGround:     ptr(false),
		Emergency:    ptr("none"),
	}
}

// sparse returns only the fields that change between ticks.
func (a *simAircraft) sparse() track.Update {
	return track.Update{ //nolint:exhaustruct // sparse on purpose
		ID:        a.id,
		Latitude:  ptr(a.latitude),
		Longitude: ptr(a.longitude),
		Altitude:  ptr(a.altitude),
		Velocity:  ptr(a.velocity),
		Heading:   ptr(a.heading),
	}
}

func ptr[T any](v T) *T { return &v }

// fleet is the simulated traffic around a reference point. The first two aircraft fly towards
// each other to produce proximity events.
type fleet struct {
	mu       sync.Mutex
	aircraft []*simAircraft
	// hidden is the aircraft that is currently removed, empty if all are visible.
	hidden string
	ticks  int
	rng    *rand.Rand
}

func newFleet(lat, lon float64, seed uint64) *fleet {
	offset := func(nm float64) float64 { return nm / 60 } //nolint:mnd // one degree of latitude

	return &fleet{
		mu: sync.Mutex{},
		aircraft: []*simAircraft{
			{
				id: "3C6444", callsign: "DLH4AB", registration: "D-AIBD", aircraftType: "A319", operator: "Lufthansa",
				latitude: lat - offset(8), longitude: lon, altitude: 11000, velocity: 260, heading: 0,
			},
			{
				id: "4B1814", callsign: "SWR100", registration: "HB-JLT", aircraftType: "A320", operator: "Swiss",
				latitude: lat + offset(8), longitude: lon, altitude: 11400, velocity: 250, heading: 180,
			},
			{
				id: "4CA2D1", callsign: "RYR12FM", registration: "EI-DYX", aircraftType: "B738", operator: "Ryanair",
				latitude: lat + offset(20), longitude: lon - offset(30), altitude: 36000, velocity: 450, heading: 110,
			},
			{
				id: "A0B1C2", callsign: "UAL901", registration: "N12114", aircraftType: "B772", operator: "United",
				latitude: lat - offset(15), longitude: lon + offset(25), altitude: 24000, velocity: 420,
				heading: 300, verticalRate: 1500,
			},
			{
				id: "3E0F81", callsign: "DCABC", registration: "D-EABC", aircraftType: "C172", operator: "",
				latitude: lat + offset(3), longitude: lon + offset(3), altitude: 3500, velocity: 100,
				heading: 0, turnRate: 3,
			},
		},
		hidden: "",
		ticks:  0,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec,mnd // not for security
	}
}

// snapshot returns full updates for every visible aircraft.
func (f *fleet) snapshot() []track.Update {
	f.mu.Lock()
	defer f.mu.Unlock()

	updates := make([]track.Update, 0, len(f.aircraft))
	for _, a := range f.aircraft {
		if a.id != f.hidden {
			updates = append(updates, a.update())
		}
	}

	return updates
}

// tickResult is what changed in one simulation step.
type tickResult struct {
	updates   []track.Update
	removed   string
	proximity []frame.Separation
}

// step moves every aircraft. Every removeEvery ticks one aircraft disappears and comes back with
// a full update on the next removal cycle.
func (f *fleet) step(dt time.Duration, removeEvery int, proximityNM float64) tickResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ticks++
	var result tickResult

	if removeEvery > 0 && f.ticks%removeEvery == 0 {
		if f.hidden != "" {
			for _, a := range f.aircraft {
				if a.id == f.hidden {
					result.updates = append(result.updates, a.update())
				}
			}
			f.hidden = ""
		} else {
			victim := f.aircraft[len(f.aircraft)-1]
			f.hidden = victim.id
			result.removed = victim.id
		}
	}

	for _, a := range f.aircraft {
		a.move(dt, f.rng)
		if a.id != f.hidden {
			result.updates = append(result.updates, a.sparse())
		}
	}

	// The converging pair turns around once it has passed, so it keeps meeting.
	first, second := f.aircraft[0], f.aircraft[1]
	if (first.heading == 0 && first.latitude > second.latitude) ||
		(first.heading == 180 && first.latitude < second.latitude) { //nolint:mnd // reversed course
		first.heading, second.heading = second.heading, first.heading
	}

	p := internal.NewCoordinates(first.latitude, first.longitude)
	q := internal.NewCoordinates(second.latitude, second.longitude)
	if dist := internal.Haversine(p, q).NauticalMiles(); dist <= proximityNM {
		result.proximity = append(result.proximity, frame.Separation{
			AircraftID:         second.id,
			DistanceNM:         dist,
			Bearing:            internal.Bearing(p, q),
			RelativeAltitudeFt: second.altitude - first.altitude,
		})
	}

	return result
}
