// README: Geographic value objects shared across modules.
package types

import "time"

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is an address with its coordinates. Coordinates are stored GeoJSON-style
// as [lng, lat], which is what clients send.
type Place struct {
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address"`
}

func (p Place) Point() Point {
	return Point{Lat: p.Coordinates[1], Lng: p.Coordinates[0]}
}

func PlaceAt(pt Point, address string) Place {
	return Place{Coordinates: [2]float64{pt.Lng, pt.Lat}, Address: address}
}

// Sample is one reading from a device geolocation feed.
type Sample struct {
	Point
	At time.Time `json:"at"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
