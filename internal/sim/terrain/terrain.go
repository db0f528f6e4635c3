// Package terrain holds the tile grid the rail network is laid on.
//
// The game owns the real terrain; Map is the narrow contract the rail
// subsystem consumes. Grid is an in-memory implementation used by the
// server and tests.
package terrain

import (
	"fmt"

	"railnet.ai/internal/sim/logic/mathx"
)

// Tile is an opaque tile handle (y*width + x).
type Tile int32

// PlayerID identifies a territory owner. Zero means unowned.
type PlayerID uint16

type Map interface {
	Width() int
	Height() int
	Ref(x, y int) Tile
	X(t Tile) int
	Y(t Tile) int
	InBounds(x, y int) bool
	// Neighbors returns the in-bounds 4-neighbourhood in N,E,S,W order.
	Neighbors(t Tile) []Tile
	Manhattan(a, b Tile) int
	EuclideanSq(a, b Tile) int
	IsLand(t Tile) bool
	Owner(t Tile) PlayerID
}

const (
	landBit   uint16 = 1 << 15
	ownerMask uint16 = 0x0FFF

	MaxPlayerID = PlayerID(ownerMask)
)

// Grid stores one word per tile: bit 15 is land, the low 12 bits the owner.
type Grid struct {
	w, h  int
	words []uint16
}

func NewGrid(w, h int) *Grid {
	g := &Grid{w: w, h: h, words: make([]uint16, w*h)}
	for i := range g.words {
		g.words[i] = landBit
	}
	return g
}

func (g *Grid) Width() int  { return g.w }
func (g *Grid) Height() int { return g.h }

func (g *Grid) Ref(x, y int) Tile { return Tile(y*g.w + x) }
func (g *Grid) X(t Tile) int      { return int(t) % g.w }
func (g *Grid) Y(t Tile) int      { return int(t) / g.w }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.w && y < g.h
}

func (g *Grid) Neighbors(t Tile) []Tile {
	x, y := g.X(t), g.Y(t)
	out := make([]Tile, 0, 4)
	if y > 0 {
		out = append(out, t-Tile(g.w))
	}
	if x < g.w-1 {
		out = append(out, t+1)
	}
	if y < g.h-1 {
		out = append(out, t+Tile(g.w))
	}
	if x > 0 {
		out = append(out, t-1)
	}
	return out
}

func (g *Grid) Manhattan(a, b Tile) int {
	return mathx.AbsInt(g.X(a)-g.X(b)) + mathx.AbsInt(g.Y(a)-g.Y(b))
}

func (g *Grid) EuclideanSq(a, b Tile) int {
	dx := g.X(a) - g.X(b)
	dy := g.Y(a) - g.Y(b)
	return dx*dx + dy*dy
}

func (g *Grid) IsLand(t Tile) bool { return g.words[t]&landBit != 0 }

func (g *Grid) Owner(t Tile) PlayerID { return PlayerID(g.words[t] & ownerMask) }

func (g *Grid) SetLand(t Tile, land bool) {
	if land {
		g.words[t] |= landBit
	} else {
		g.words[t] &^= landBit
	}
}

func (g *Grid) SetOwner(t Tile, p PlayerID) {
	g.words[t] = (g.words[t] &^ ownerMask) | (uint16(p) & ownerMask)
}

// Claim assigns unowned land within a Manhattan radius of center to p and
// returns how many tiles changed hands.
func (g *Grid) Claim(center Tile, radius int, p PlayerID) int {
	cx, cy := g.X(center), g.Y(center)
	n := 0
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			if !g.InBounds(x, y) || mathx.AbsInt(x-cx)+mathx.AbsInt(y-cy) > radius {
				continue
			}
			t := g.Ref(x, y)
			if !g.IsLand(t) || g.Owner(t) != 0 {
				continue
			}
			g.SetOwner(t, p)
			n++
		}
	}
	return n
}

// Release clears every tile owned by p.
func (g *Grid) Release(p PlayerID) {
	for i := range g.words {
		if PlayerID(g.words[i]&ownerMask) == p {
			g.words[i] &^= ownerMask
		}
	}
}

// Words returns the raw tile words (shared, do not mutate).
func (g *Grid) Words() []uint16 { return g.words }

func (g *Grid) LoadWords(words []uint16) error {
	if len(words) != g.w*g.h {
		return fmt.Errorf("terrain: got %d words, want %d", len(words), g.w*g.h)
	}
	copy(g.words, words)
	return nil
}

// Generate carves deterministic lakes into an all-land grid. waterPermille
// is the approximate share of lake seeds per 1000 tiles.
func (g *Grid) Generate(seed int64, waterPermille int) {
	if waterPermille <= 0 {
		return
	}
	const lakeRadius = 3
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			if int(mathx.Hash2(seed, x, y)%1000) >= waterPermille {
				continue
			}
			r := 1 + int(mathx.Hash2(seed+1, x, y)%lakeRadius)
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					if dx*dx+dy*dy > r*r || !g.InBounds(x+dx, y+dy) {
						continue
					}
					g.SetLand(g.Ref(x+dx, y+dy), false)
				}
			}
		}
	}
}
