package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegions() []registry.Region {
	return []registry.Region{
		{
			ID: 1, Name: "Seoul", Aliases: []string{"Seoul Metropolitan"},
			Stations: []domain.Station{
				{ID: "a1", Lat: 37.57, Lon: 126.96},
				{ID: "a2", Lat: 37.48, Lon: 126.95},
			},
		},
		{
			ID: 2, Name: "Busan",
			Stations: []domain.Station{
				{ID: "b1", Lat: 35.10, Lon: 129.03},
			},
		},
	}
}

func TestNew_BackfillsRegionIDs(t *testing.T) {
	r, err := registry.New(testRegions())
	require.NoError(t, err)

	for _, st := range r.StationsByRegions([]int{1}) {
		assert.Equal(t, 1, st.RegionID)
	}
}

func TestNew_RejectsDuplicateIDs(t *testing.T) {
	_, err := registry.New([]registry.Region{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}})
	assert.Error(t, err)
}

func TestResolveRegion(t *testing.T) {
	r, err := registry.New(testRegions())
	require.NoError(t, err)

	id, ok := r.ResolveRegion("Seoul")
	require.True(t, ok)
	assert.Equal(t, 1, id)

	// Alias and case/whitespace-insensitive matching.
	id, ok = r.ResolveRegion("  seoul   metropolitan ")
	require.True(t, ok)
	assert.Equal(t, 1, id)

	_, ok = r.ResolveRegion("Atlantis")
	assert.False(t, ok)
}

func TestStationScopes(t *testing.T) {
	r, err := registry.New(testRegions())
	require.NoError(t, err)

	assert.Len(t, r.AllStations(), 3)
	assert.Len(t, r.StationsByRegions([]int{1}), 2)
	assert.Len(t, r.StationsByRegions([]int{1, 2}), 3)
	assert.Empty(t, r.StationsByRegions([]int{99}))

	rest := r.StationsExcludingRegions([]int{1})
	require.Len(t, rest, 1)
	assert.Equal(t, "b1", rest[0].ID)

	assert.Equal(t, []int{1, 2}, r.RegionIDs())
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.json")
	data := `{"regions":[{"id":7,"name":"Daegu","aliases":["Daegu Metropolitan"],
		"stations":[{"id":"d1","name":"Jung-gu","lat":35.87,"lon":128.60}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	r, err := registry.Load(path)
	require.NoError(t, err)

	id, ok := r.ResolveRegion("daegu")
	require.True(t, ok)
	assert.Equal(t, 7, id)
	assert.Len(t, r.AllStations(), 1)
}

func TestLoad_Errors(t *testing.T) {
	_, err := registry.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"regions":[]}`), 0o644))
	_, err = registry.Load(path)
	assert.Error(t, err)
}

func TestDemo(t *testing.T) {
	r := registry.Demo()
	assert.NotEmpty(t, r.AllStations())
	_, ok := r.ResolveRegion("Seoul")
	assert.True(t, ok)
}
