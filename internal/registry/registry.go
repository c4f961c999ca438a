// Package registry supplies the administrative hierarchy: which stations
// belong to which region, and how free-text region names from warning
// bulletins map to internal region ids.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/couchcryptid/rainwatch/internal/domain"
)

// Resolver maps a bulletin's free-text region name to an internal region id.
// Implemented by Registry; the alert monitor needs nothing else from it.
type Resolver interface {
	ResolveRegion(name string) (int, bool)
}

// Region is one administrative unit with its provisioned stations.
type Region struct {
	ID       int              `json:"id"`
	Name     string           `json:"name"`
	Aliases  []string         `json:"aliases,omitempty"`
	Stations []domain.Station `json:"stations"`
}

// Registry is an immutable in-memory index over the region file. Safe for
// concurrent readers.
type Registry struct {
	regions  map[int]Region
	byName   map[string]int // normalized name/alias → id
	stations []domain.Station
}

type regionFile struct {
	Regions []Region `json:"regions"`
}

// Load reads a region definition file (JSON) and builds the lookup index.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions file: %w", err)
	}

	var file regionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse regions file: %w", err)
	}
	if len(file.Regions) == 0 {
		return nil, fmt.Errorf("regions file %s defines no regions", path)
	}

	return New(file.Regions)
}

// New builds a registry from an in-memory region list.
func New(regions []Region) (*Registry, error) {
	r := &Registry{
		regions: make(map[int]Region, len(regions)),
		byName:  make(map[string]int),
	}

	for _, region := range regions {
		if _, dup := r.regions[region.ID]; dup {
			return nil, fmt.Errorf("duplicate region id %d", region.ID)
		}
		// Backfill the owning region on each station so callers never
		// need the region context to build an alarm event.
		for i := range region.Stations {
			region.Stations[i].RegionID = region.ID
		}
		r.regions[region.ID] = region
		r.byName[normalize(region.Name)] = region.ID
		for _, alias := range region.Aliases {
			r.byName[normalize(alias)] = region.ID
		}
		r.stations = append(r.stations, region.Stations...)
	}

	sort.Slice(r.stations, func(i, j int) bool { return r.stations[i].ID < r.stations[j].ID })
	return r, nil
}

// ResolveRegion maps a free-text region name to its id via exact or alias
// match after whitespace normalization.
func (r *Registry) ResolveRegion(name string) (int, bool) {
	id, ok := r.byName[normalize(name)]
	return id, ok
}

// AllStations returns every provisioned station, ordered by station id.
func (r *Registry) AllStations() []domain.Station {
	out := make([]domain.Station, len(r.stations))
	copy(out, r.stations)
	return out
}

// StationsByRegions returns the stations belonging to the given region ids.
func (r *Registry) StationsByRegions(ids []int) []domain.Station {
	var out []domain.Station
	for _, id := range ids {
		if region, ok := r.regions[id]; ok {
			out = append(out, region.Stations...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StationsExcludingRegions returns stations whose region is not in ids; the
// slow tier's scope while the fast tier covers the affected regions.
func (r *Registry) StationsExcludingRegions(ids []int) []domain.Station {
	excluded := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		excluded[id] = struct{}{}
	}
	var out []domain.Station
	for _, st := range r.stations {
		if _, skip := excluded[st.RegionID]; !skip {
			out = append(out, st)
		}
	}
	return out
}

// Region returns one region by id.
func (r *Registry) Region(id int) (Region, bool) {
	region, ok := r.regions[id]
	return region, ok
}

// RegionIDs returns all known region ids sorted ascending.
func (r *Registry) RegionIDs() []int {
	ids := make([]int, 0, len(r.regions))
	for id := range r.regions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Demo returns a small built-in region set for mock mode, covering three
// metropolitan regions with stations that partially share grid cells.
func Demo() *Registry {
	r, err := New([]Region{
		{
			ID: 1, Name: "Seoul", Aliases: []string{"Seoul Metropolitan"},
			Stations: []domain.Station{
				{ID: "108", Name: "Jongno", Lat: 37.5714, Lon: 126.9658},
				{ID: "116", Name: "Gwanak", Lat: 37.4781, Lon: 126.9515},
				{ID: "119", Name: "Songpa", Lat: 37.5113, Lon: 127.0980},
			},
		},
		{
			ID: 2, Name: "Busan", Aliases: []string{"Busan Metropolitan"},
			Stations: []domain.Station{
				{ID: "159", Name: "Jung-gu", Lat: 35.1046, Lon: 129.0320},
				{ID: "160", Name: "Haeundae", Lat: 35.1631, Lon: 129.1635},
			},
		},
		{
			ID: 3, Name: "Jeju", Aliases: []string{"Jeju Island"},
			Stations: []domain.Station{
				{ID: "184", Name: "Jeju City", Lat: 33.5141, Lon: 126.5297},
			},
		},
	})
	if err != nil {
		panic(err) // static data, cannot fail
	}
	return r
}
