// Command genregions writes a starter region definition file from the
// built-in demo set. It goes through the registry package so the output is
// guaranteed to load, and serves as the template operators extend with their
// own regions and stations.
//
// Usage:
//
//	go run ./cmd/genregions -out config/regions.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/couchcryptid/rainwatch/internal/registry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the regions JSON file")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing -out")
	}

	demo := registry.Demo()
	regions := make([]registry.Region, 0, len(demo.RegionIDs()))
	for _, id := range demo.RegionIDs() {
		region, _ := demo.Region(id)
		regions = append(regions, region)
	}

	data, err := json.MarshalIndent(map[string]any{"regions": regions}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal regions: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}

	fmt.Printf("wrote %d regions (%d stations) to %s\n",
		len(regions), len(demo.AllStations()), *out)
	return nil
}
