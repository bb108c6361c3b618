package board

import "board-api/domain"

// TargetKind distinguishes the two droppable surfaces the pointer can hover.
type TargetKind string

const (
	TargetColumn TargetKind = "column"
	TargetCard   TargetKind = "card"
)

// Rect is an axis-aligned bounding box in the client's coordinate space.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (r Rect) contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

func (r Rect) centerDistSq(x, y float64) float64 {
	dx := x - (r.X + r.W/2)
	dy := y - (r.Y + r.H/2)
	return dx*dx + dy*dy
}

// DropTarget is one droppable surface reported by the client for a
// pointer-over event: a whole column or an individual card, each resolving
// to the status a drop there would assign.
type DropTarget struct {
	Status domain.Status `json:"status"`
	Kind   TargetKind    `json:"kind"`
	Bounds Rect          `json:"bounds"`
}

// ResolveDropTarget picks the candidate status for the pointer position.
// Among targets containing the point the nearest geometric center wins;
// overlap ties are settled by distance, never by the order targets were
// reported in, so resolution is deterministic for a given geometry. When no
// target contains the point there is no candidate.
func ResolveDropTarget(x, y float64, targets []DropTarget) (domain.Status, bool) {
	best := -1
	bestDist := 0.0
	for i, tgt := range targets {
		if !tgt.Status.Valid() || !tgt.Bounds.contains(x, y) {
			continue
		}
		d := tgt.Bounds.centerDistSq(x, y)
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best == -1 {
		return "", false
	}
	return targets[best].Status, true
}
