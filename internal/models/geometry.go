package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// Coordinate bounds for WGS84 (SRID 4326).
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// GeoPoint is a WGS84 coordinate. It serializes as a GeoJSON Point, so the
// coordinate order on the wire is [lng, lat].
type GeoPoint struct {
	Lat float64
	Lng float64
}

// Validate checks the coordinate ranges.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < MinLatitude || p.Lat > MaxLatitude {
		return Invalid("location.lat", fmt.Sprintf("must be between %.0f and %.0f, got %f", MinLatitude, MaxLatitude, p.Lat))
	}
	if math.IsNaN(p.Lng) || p.Lng < MinLongitude || p.Lng > MaxLongitude {
		return Invalid("location.lng", fmt.Sprintf("must be between %.0f and %.0f, got %f", MinLongitude, MaxLongitude, p.Lng))
	}
	return nil
}

// MarshalJSON implements json.Marshaler using GeoJSON Point format.
func (p GeoPoint) MarshalJSON() ([]byte, error) {
	geom := struct {
		Type        string     `json:"type"`
		Coordinates [2]float64 `json:"coordinates"`
	}{
		Type:        "Point",
		Coordinates: [2]float64{p.Lng, p.Lat},
	}
	return json.Marshal(geom)
}

// UnmarshalJSON implements json.Unmarshaler for GeoJSON Point input.
func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	var geom struct {
		Type        string     `json:"type"`
		Coordinates [2]float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(data, &geom); err != nil {
		return fmt.Errorf("failed to unmarshal point: %w", err)
	}
	if geom.Type != "" && geom.Type != "Point" {
		return fmt.Errorf("expected Point type, got %s", geom.Type)
	}
	p.Lng = geom.Coordinates[0]
	p.Lat = geom.Coordinates[1]
	return nil
}
