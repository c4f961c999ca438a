// Command validate checks a region definition file before it is deployed:
// parseability, station coordinate sanity, duplicate station ids, and name
// collisions across regions. It also prints the grid dedup preview, the
// unique cell count against the station count, since that ratio drives the
// engine's call budget.
//
// Usage:
//
//	go run ./cmd/validate -regions config/regions.json
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/registry"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	regionsPath := flag.String("regions", "", "path to the regions JSON file")
	flag.Parse()

	if *regionsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	regions, err := registry.Load(*regionsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL parse: %v\n", err)
		os.Exit(1)
	}

	phases := []*phase{
		checkStations(regions),
		checkCoverage(regions),
	}

	failed := false
	for _, p := range phases {
		if p.passed() {
			fmt.Printf("PASS %s\n", p.name)
			continue
		}
		failed = true
		fmt.Printf("FAIL %s\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	stations := regions.AllStations()
	cells := make(map[domain.GridCell]struct{}, len(stations))
	for _, st := range stations {
		cells[domain.CellFor(st.Lat, st.Lon)] = struct{}{}
	}
	fmt.Printf("\nregions: %d, stations: %d, unique grid cells: %d\n",
		len(regions.RegionIDs()), len(stations), len(cells))

	if failed {
		os.Exit(1)
	}
}

// checkStations verifies station ids are unique and coordinates plausible.
func checkStations(regions *registry.Registry) *phase {
	p := &phase{name: "stations"}

	seen := make(map[string]int)
	for _, st := range regions.AllStations() {
		if prev, dup := seen[st.ID]; dup {
			p.errorf("station %s appears in regions %d and %d", st.ID, prev, st.RegionID)
		}
		seen[st.ID] = st.RegionID

		if st.Lat < -90 || st.Lat > 90 || st.Lon < -180 || st.Lon > 180 {
			p.errorf("station %s has out-of-range coordinates (%.4f, %.4f)", st.ID, st.Lat, st.Lon)
		}
		if st.Lat == 0 && st.Lon == 0 {
			p.errorf("station %s sits at the null island placeholder", st.ID)
		}
	}
	return p
}

// checkCoverage verifies every region has at least one station, so an alert
// for it can actually widen the fast tier's scope.
func checkCoverage(regions *registry.Registry) *phase {
	p := &phase{name: "coverage"}
	for _, id := range regions.RegionIDs() {
		if len(regions.StationsByRegions([]int{id})) == 0 {
			p.errorf("region %d has no stations", id)
		}
	}
	return p
}
