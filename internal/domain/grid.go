package domain

import "math"

// GridCell is a quantized spatial bucket on the provider's forecast grid.
// Derived on demand from a station coordinate, never persisted.
type GridCell struct {
	NX int `json:"nx"`
	NY int `json:"ny"`
}

// Lambert conformal conic parameters for the provider's 5 km forecast grid.
const (
	gridEarthRadiusKm = 6371.00877
	gridCellKm        = 5.0
	gridStdParallel1  = 30.0 // degrees
	gridStdParallel2  = 60.0
	gridOriginLon     = 126.0
	gridOriginLat     = 38.0
	gridOriginX       = 43.0 // cell offset of the projection origin
	gridOriginY       = 136.0
)

// CellFor projects a WGS-84 coordinate onto the provider's (nx, ny) grid.
// The transform is deterministic and pure; all stations within the same 5 km
// cell map to identical output.
func CellFor(lat, lon float64) GridCell {
	const degrad = math.Pi / 180.0

	re := gridEarthRadiusKm / gridCellKm
	slat1 := gridStdParallel1 * degrad
	slat2 := gridStdParallel2 * degrad
	olon := gridOriginLon * degrad
	olat := gridOriginLat * degrad

	sn := math.Tan(math.Pi*0.25+slat2*0.5) / math.Tan(math.Pi*0.25+slat1*0.5)
	sn = math.Log(math.Cos(slat1)/math.Cos(slat2)) / math.Log(sn)
	sf := math.Pow(math.Tan(math.Pi*0.25+slat1*0.5), sn) * math.Cos(slat1) / sn
	ro := re * sf / math.Pow(math.Tan(math.Pi*0.25+olat*0.5), sn)

	ra := re * sf / math.Pow(math.Tan(math.Pi*0.25+lat*degrad*0.5), sn)
	theta := lon*degrad - olon
	if theta > math.Pi {
		theta -= 2.0 * math.Pi
	}
	if theta < -math.Pi {
		theta += 2.0 * math.Pi
	}
	theta *= sn

	return GridCell{
		NX: int(math.Floor(ra*math.Sin(theta) + gridOriginX + 0.5)),
		NY: int(math.Floor(ro - ra*math.Cos(theta) + gridOriginY + 0.5)),
	}
}

// DistanceKm returns the great-circle distance between two coordinates,
// used for nearest-neighbor matching against the AWS snapshot.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degrad = math.Pi / 180.0

	dlat := (lat2 - lat1) * degrad
	dlon := (lon2 - lon1) * degrad
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1*degrad)*math.Cos(lat2*degrad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * gridEarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
