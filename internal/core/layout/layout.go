// Package layout computes force-directed positions for graph projection
// points: repulsion between all points, attraction along edges. Pure
// functions only; the projection service owns persistence of the result.
package layout

import (
	"math"
	"sort"
)

// Position is a 2D point on the projection board.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge connects two point ids for the attraction pass.
type Edge struct {
	A string
	B string
}

const (
	repulsion   = 900.0
	attraction  = 0.06
	damping     = 0.85
	minDistance = 0.01
	seedRadius  = 180.0
)

// Seed returns a deterministic starting position for the index-th of total
// new points, spread around a circle so relaxation does not start from a
// degenerate pile.
func Seed(index, total int) Position {
	if total < 1 {
		total = 1
	}
	angle := 2 * math.Pi * float64(index) / float64(total)
	return Position{
		X: seedRadius * math.Cos(angle),
		Y: seedRadius * math.Sin(angle),
	}
}

// Relax runs iterations of force-directed relaxation over the given
// positions and returns a new position map; the input is not mutated.
// Points absent from positions are ignored even if referenced by edges.
func Relax(positions map[string]Position, edges []Edge, iterations int) map[string]Position {
	current := make(map[string]Position, len(positions))
	for id, p := range positions {
		current[id] = p
	}

	// Deterministic iteration order.
	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for iter := 0; iter < iterations; iter++ {
		forces := make(map[string]Position, len(current))

		// Repulsion between every pair.
		for i, a := range ids {
			for _, b := range ids[i+1:] {
				pa, pb := current[a], current[b]
				dx, dy := pa.X-pb.X, pa.Y-pb.Y
				distSq := dx*dx + dy*dy
				if distSq < minDistance {
					distSq = minDistance
					dx, dy = minDistance, minDistance
				}
				force := repulsion / distSq
				dist := math.Sqrt(distSq)
				fx, fy := force*dx/dist, force*dy/dist
				fa, fb := forces[a], forces[b]
				forces[a] = Position{X: fa.X + fx, Y: fa.Y + fy}
				forces[b] = Position{X: fb.X - fx, Y: fb.Y - fy}
			}
		}

		// Attraction along edges.
		for _, e := range edges {
			pa, okA := current[e.A]
			pb, okB := current[e.B]
			if !okA || !okB {
				continue
			}
			dx, dy := pb.X-pa.X, pb.Y-pa.Y
			fa, fb := forces[e.A], forces[e.B]
			forces[e.A] = Position{X: fa.X + dx*attraction, Y: fa.Y + dy*attraction}
			forces[e.B] = Position{X: fb.X - dx*attraction, Y: fb.Y - dy*attraction}
		}

		for _, id := range ids {
			p, f := current[id], forces[id]
			current[id] = Position{
				X: p.X + f.X*damping,
				Y: p.Y + f.Y*damping,
			}
		}
	}

	return current
}
