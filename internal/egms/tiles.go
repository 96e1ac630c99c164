// Package egms models the European Ground Motion Service L3 product grid.
//
// L3 products are 100x100 km tiles in the ETRS89-LAEA (EPSG:3035) grid,
// addressed by the easting/northing of their lower-left corner in units of
// 100 km, e.g. tile E32N31. Each tile is published per displacement
// component (E = east-west, U = up-down) and per five-year span, as a zip
// archive containing a single CSV.
package egms

import (
	"fmt"
	"net/url"
	"strings"
)

// Tile index bounds of the EGMS L3 grid over Europe.
const (
	MinEasting  = 9
	MaxEasting  = 65
	MinNorthing = 9
	MaxNorthing = 55
)

// Displacement components available for L3 products.
const (
	DisplacementEast = "E"
	DisplacementUp   = "U"
)

// YearSpans lists the published five-year product spans.
var YearSpans = []string{"2018_2022", "2019_2023", "2020_2024"}

// DefaultYearSpan is the span the original service currently recommends.
const DefaultYearSpan = "2019_2023"

// Tile addresses one 100 km grid cell.
type Tile struct {
	E int
	N int
}

// Code returns the tile identifier used in product names, e.g. "E32N31".
func (t Tile) Code() string {
	return fmt.Sprintf("E%dN%d", t.E, t.N)
}

// Validate checks the tile against the L3 grid bounds.
func (t Tile) Validate() error {
	if t.E < MinEasting || t.E > MaxEasting {
		return fmt.Errorf("tile easting %d out of range [%d, %d]", t.E, MinEasting, MaxEasting)
	}
	if t.N < MinNorthing || t.N > MaxNorthing {
		return fmt.Errorf("tile northing %d out of range [%d, %d]", t.N, MinNorthing, MaxNorthing)
	}
	return nil
}

// ValidDisplacement reports whether d names a published component.
func ValidDisplacement(d string) bool {
	return d == DisplacementEast || d == DisplacementUp
}

// ValidYearSpan reports whether s names a published product span.
func ValidYearSpan(s string) bool {
	for _, span := range YearSpans {
		if s == span {
			return true
		}
	}
	return false
}

// Product identifies one downloadable archive: tile x displacement x span.
type Product struct {
	Tile         Tile
	Displacement string
	YearSpan     string
}

// Validate checks all three product dimensions.
func (p Product) Validate() error {
	if err := p.Tile.Validate(); err != nil {
		return err
	}
	if !ValidDisplacement(p.Displacement) {
		return fmt.Errorf("invalid displacement %q (want %q or %q)",
			p.Displacement, DisplacementEast, DisplacementUp)
	}
	if !ValidYearSpan(p.YearSpan) {
		return fmt.Errorf("invalid year span %q (want one of %s)",
			p.YearSpan, strings.Join(YearSpans, ", "))
	}
	return nil
}

// FileBase returns the product file stem, e.g.
// "EGMS_L3_E32N31_100km_E_2019_2023_1".
func (p Product) FileBase() string {
	return fmt.Sprintf("EGMS_L3_%s_100km_%s_%s_1", p.Tile.Code(), p.Displacement, p.YearSpan)
}

// CSVName returns the CSV member name expected inside the archive.
func (p Product) CSVName() string {
	return p.FileBase() + ".csv"
}

// ArchiveURL builds the download URL against the archive endpoint. The
// token is the user's EGMS download id, passed as a query parameter.
func (p Product) ArchiveURL(baseURL, token string) string {
	return fmt.Sprintf("%s/%s.zip?id=%s",
		strings.TrimRight(baseURL, "/"), p.FileBase(), url.QueryEscape(token))
}

// Range expands an inclusive tile range into individual tiles, easting-major
// to match the original batch ordering. Returns an error if any corner is
// out of grid bounds or the range is inverted.
func Range(minE, maxE, minN, maxN int) ([]Tile, error) {
	if minE > maxE || minN > maxN {
		return nil, fmt.Errorf("inverted tile range E[%d,%d] N[%d,%d]", minE, maxE, minN, maxN)
	}
	corners := []Tile{{E: minE, N: minN}, {E: maxE, N: maxN}}
	for _, c := range corners {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	tiles := make([]Tile, 0, (maxE-minE+1)*(maxN-minN+1))
	for e := minE; e <= maxE; e++ {
		for n := minN; n <= maxN; n++ {
			tiles = append(tiles, Tile{E: e, N: n})
		}
	}
	return tiles, nil
}
