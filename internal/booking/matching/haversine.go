package matching

import (
	"context"
	"math"
	"sort"

	"github.com/example/spacall/internal/booking/domain"
)

const earthRadiusKM = 6371.0

// DistanceKM returns the great-circle distance between two points using the
// spherical law of cosines.
func DistanceKM(a, b domain.GeoPoint) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dlng := radians(b.Lng - a.Lng)

	arg := math.Cos(lat1)*math.Cos(lat2)*math.Cos(dlng) + math.Sin(lat1)*math.Sin(lat2)
	// Rounding can push the argument a hair outside acos' domain.
	if arg > 1 {
		arg = 1
	} else if arg < -1 {
		arg = -1
	}
	return earthRadiusKM * math.Acos(arg)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// HaversineIndex is a GeoIndex that scans the eligible-provider set and
// filters by great-circle distance. It is the semantic reference
// implementation; at fleet scale the redis index replaces the scan.
type HaversineIndex struct {
	source ProviderSource
}

// NewHaversineIndex constructs the scan-based index.
func NewHaversineIndex(source ProviderSource) *HaversineIndex {
	return &HaversineIndex{source: source}
}

// Nearby filters eligible providers by distance from point. Providers without
// a base location are excluded from radius queries but included when no
// radius is given.
func (h *HaversineIndex) Nearby(ctx context.Context, point domain.GeoPoint, radiusKM float64, limit int) ([]Candidate, error) {
	providers, err := h.source.ListEligibleTherapists(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(providers))
	for _, p := range providers {
		c := Candidate{ProviderID: p.ID, DistanceKM: -1}
		if p.BasePoint != nil {
			c.DistanceKM = DistanceKM(point, *p.BasePoint)
		}
		if radiusKM > 0 {
			if c.DistanceKM < 0 || c.DistanceKM > radiusKM {
				continue
			}
		}
		candidates = append(candidates, c)
	}

	if radiusKM > 0 {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].DistanceKM < candidates[j].DistanceKM
		})
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
