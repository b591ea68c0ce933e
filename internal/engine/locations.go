package engine

import (
	"hash/fnv"

	"github.com/playperu/panoround/internal/room"
)

// Locations picks the target for a round. Pick must be deterministic in its
// arguments because it runs inside a store transaction.
type Locations interface {
	Pick(roomID string, seq int) room.Coords
}

type StaticLocations []room.Coords

// DefaultLocations are panorama spots around Peru.
var DefaultLocations = StaticLocations{
	{Lat: -12.0464, Lng: -77.0428}, // Lima, Plaza Mayor
	{Lat: -13.5163, Lng: -71.9785}, // Cusco, Plaza de Armas
	{Lat: -13.1631, Lng: -72.5450}, // Machu Picchu
	{Lat: -16.3989, Lng: -71.5350}, // Arequipa
	{Lat: -15.8402, Lng: -70.0219}, // Puno
	{Lat: -8.1116, Lng: -79.0288},  // Trujillo
	{Lat: -3.7437, Lng: -73.2516},  // Iquitos
	{Lat: -14.0875, Lng: -75.7626}, // Huacachina
	{Lat: -6.7714, Lng: -79.8409},  // Chiclayo
	{Lat: -14.7390, Lng: -75.1300}, // Nazca
	{Lat: -9.5278, Lng: -77.5278},  // Huaraz
	{Lat: -12.5933, Lng: -69.1891}, // Puerto Maldonado
}

// Pick falls back to DefaultLocations when s is empty.
func (s StaticLocations) Pick(roomID string, seq int) room.Coords {
	if len(s) == 0 {
		s = DefaultLocations
	}
	h := fnv.New32a()
	h.Write([]byte(roomID))
	offset := int(h.Sum32() % uint32(len(s)))
	return s[(offset+seq)%len(s)]
}
