package enrich

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/abibardhan/EGMS-L3/internal/models"
	"github.com/abibardhan/EGMS-L3/internal/proj"
)

// Place is one gazetteer entry.
type Place struct {
	ID    string
	Name  string
	Admin string
	Lat   float64
	Lon   float64
}

// Gazetteer is the offline location source: a flat list of places joined
// to points by nearest great-circle distance. It needs no network access,
// which makes enrichment runs reproducible.
type Gazetteer struct {
	places      []Place
	toleranceKm float64
}

func NewGazetteer(places []Place, toleranceKm float64) *Gazetteer {
	return &Gazetteer{
		places:      places,
		toleranceKm: toleranceKm,
	}
}

// LoadGazetteer reads a places CSV with header id,name,admin,lat,lon.
func LoadGazetteer(path string, toleranceKm float64) (*Gazetteer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening gazetteer: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading gazetteer header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"id", "name", "admin", "lat", "lon"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("gazetteer missing column %q (have: %s)", col, strings.Join(header, ", "))
		}
	}

	var places []Place
	line := 1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gazetteer line %d: %w", line+1, err)
		}
		line++

		lat, latErr := strconv.ParseFloat(row[idx["lat"]], 64)
		lon, lonErr := strconv.ParseFloat(row[idx["lon"]], 64)
		if latErr != nil || lonErr != nil {
			return nil, fmt.Errorf("gazetteer line %d: invalid coordinates", line)
		}

		places = append(places, Place{
			ID:    row[idx["id"]],
			Name:  row[idx["name"]],
			Admin: row[idx["admin"]],
			Lat:   lat,
			Lon:   lon,
		})
	}

	if len(places) == 0 {
		return nil, fmt.Errorf("gazetteer %s holds no places", path)
	}
	return NewGazetteer(places, toleranceKm), nil
}

// ReverseGeocode returns the nearest place within the tolerance radius.
// Equidistant candidates tie-break on name, then id, so repeated runs over
// identical inputs produce identical joins.
func (g *Gazetteer) ReverseGeocode(_ context.Context, lat, lon float64) (Result, error) {
	var best *Place
	bestDist := g.toleranceKm

	for i := range g.places {
		p := &g.places[i]
		d := proj.HaversineKm(lat, lon, p.Lat, p.Lon)
		if d > bestDist {
			continue
		}
		if d == bestDist && best != nil {
			if p.Name > best.Name || (p.Name == best.Name && p.ID >= best.ID) {
				continue
			}
		}
		best = p
		bestDist = d
	}

	if best == nil {
		return Result{}, nil
	}

	name := best.Name
	if best.Admin != "" {
		name = fmt.Sprintf("%s, %s", best.Name, best.Admin)
	}
	return Result{
		Name:   name,
		Admin:  best.Admin,
		Lat:    best.Lat,
		Lon:    best.Lon,
		Source: models.GeoSourceGazetteer,
	}, nil
}
