// Package spatial provides the uniform-grid broad phase used by the
// collision pipeline. Entities are tracked by stable string id with an
// id index, so remove and update are O(k) in cells covered rather than
// O(total entities).
package spatial

import "math"

type cellKey struct {
	cx, cy int
}

type entry struct {
	x, y   float64
	radius float64
}

// Grid is a uniform-cell spatial index over circle AABBs.
// Not safe for concurrent use; each match owns exactly one.
type Grid struct {
	cellSize float64
	cells    map[cellKey][]string
	index    map[string]entry
}

// NewGrid creates a grid with the given cell size.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 64
	}
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]string),
		index:    make(map[string]entry),
	}
}

// Insert adds an entity's circle to every cell its AABB covers.
// Inserting an id that is already present replaces the previous entry.
func (g *Grid) Insert(id string, x, y, radius float64) {
	if _, ok := g.index[id]; ok {
		g.Remove(id)
	}
	e := entry{x: x, y: y, radius: radius}
	g.index[id] = e
	g.eachCell(e, func(k cellKey) {
		g.cells[k] = append(g.cells[k], id)
	})
}

// Remove strips the entity from exactly the cells its stored AABB covers.
func (g *Grid) Remove(id string) {
	e, ok := g.index[id]
	if !ok {
		return
	}
	delete(g.index, id)
	g.eachCell(e, func(k cellKey) {
		ids := g.cells[k]
		for i, other := range ids {
			if other == id {
				ids[i] = ids[len(ids)-1]
				ids = ids[:len(ids)-1]
				break
			}
		}
		if len(ids) == 0 {
			delete(g.cells, k)
		} else {
			g.cells[k] = ids
		}
	})
}

// Update moves an entity to a new position/radius.
func (g *Grid) Update(id string, x, y, radius float64) {
	old, ok := g.index[id]
	if ok {
		// Skip the cell churn when the covered cell range is unchanged
		if g.sameCells(old, entry{x: x, y: y, radius: radius}) {
			g.index[id] = entry{x: x, y: y, radius: radius}
			return
		}
		g.Remove(id)
	}
	g.Insert(id, x, y, radius)
}

// QueryRegion returns the deduplicated ids of entities whose cells
// intersect the rectangle [minX,maxX]x[minY,maxY].
func (g *Grid) QueryRegion(minX, minY, maxX, maxY float64) []string {
	seen := make(map[string]struct{})
	var out []string
	g.eachCellRange(minX, minY, maxX, maxY, func(k cellKey) {
		for _, id := range g.cells[k] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	})
	return out
}

// Nearby returns entities whose cells intersect the entity's AABB expanded
// by radius, excluding the entity itself. Unknown ids yield nil.
func (g *Grid) Nearby(id string, radius float64) []string {
	e, ok := g.index[id]
	if !ok {
		return nil
	}
	r := e.radius + radius
	all := g.QueryRegion(e.x-r, e.y-r, e.x+r, e.y+r)
	out := all[:0]
	for _, other := range all {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}

// Len returns the number of indexed entities.
func (g *Grid) Len() int {
	return len(g.index)
}

// Contains reports whether the id is indexed.
func (g *Grid) Contains(id string) bool {
	_, ok := g.index[id]
	return ok
}

func (g *Grid) eachCell(e entry, fn func(cellKey)) {
	g.eachCellRange(e.x-e.radius, e.y-e.radius, e.x+e.radius, e.y+e.radius, fn)
}

func (g *Grid) eachCellRange(minX, minY, maxX, maxY float64, fn func(cellKey)) {
	x0 := int(math.Floor(minX / g.cellSize))
	y0 := int(math.Floor(minY / g.cellSize))
	x1 := int(math.Floor(maxX / g.cellSize))
	y1 := int(math.Floor(maxY / g.cellSize))
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			fn(cellKey{cx, cy})
		}
	}
}

func (g *Grid) sameCells(a, b entry) bool {
	ax0 := int(math.Floor((a.x - a.radius) / g.cellSize))
	bx0 := int(math.Floor((b.x - b.radius) / g.cellSize))
	if ax0 != bx0 {
		return false
	}
	ay0 := int(math.Floor((a.y - a.radius) / g.cellSize))
	by0 := int(math.Floor((b.y - b.radius) / g.cellSize))
	if ay0 != by0 {
		return false
	}
	ax1 := int(math.Floor((a.x + a.radius) / g.cellSize))
	bx1 := int(math.Floor((b.x + b.radius) / g.cellSize))
	if ax1 != bx1 {
		return false
	}
	ay1 := int(math.Floor((a.y + a.radius) / g.cellSize))
	by1 := int(math.Floor((b.y + b.radius) / g.cellSize))
	return ay1 == by1
}
