package rail

import (
	"math"
	"sort"

	"railnet.ai/internal/sim/terrain"
)

// Railroad is a tile path between two stations. tiles[0] is From's tile and
// the last tile is To's tile.
type Railroad struct {
	ID     RailroadID
	From   StationID
	To     StationID
	tiles  []terrain.Tile
	active bool

	econ *Economics

	trainCount     int
	congestionEMA  float64
	lastCongestion uint64
	publishedFare  int64

	owners     []ownerShare
	ownersTick uint64
	ownersOK   bool
}

type ownerShare struct {
	Player terrain.PlayerID
	Tiles  int
}

func NewRailroad(id RailroadID, from, to StationID, tiles []terrain.Tile, econ *Economics) *Railroad {
	r := &Railroad{
		ID:     id,
		From:   from,
		To:     to,
		tiles:  append([]terrain.Tile(nil), tiles...),
		active: true,
		econ:   econ,
	}
	r.publishedFare = r.Fare()
	return r
}

func (r *Railroad) Tiles() []terrain.Tile { return r.tiles }
func (r *Railroad) Active() bool          { return r.active }

// Length counts steps between tiles, so a track of n tiles has length n-1.
func (r *Railroad) Length() int {
	if len(r.tiles) == 0 {
		return 0
	}
	return len(r.tiles) - 1
}

func (r *Railroad) TrainCount() int        { return r.trainCount }
func (r *Railroad) CongestionEMA() float64 { return r.congestionEMA }

func (r *Railroad) Other(s StationID) StationID {
	if s == r.From {
		return r.To
	}
	return r.From
}

// Fare grows with rounded congestion and shrinks with track length.
func (r *Railroad) Fare() int64 {
	f := r.econ.BaseCongestionFare*(1+int64(math.Round(r.congestionEMA))) -
		int64(r.Length())*r.econ.LengthBonusPerTile
	if f < 0 {
		return 0
	}
	return f
}

// Enter adds one train. It reports whether the fare moved enough to publish.
func (r *Railroad) Enter(now uint64) bool {
	changed := r.updateCongestion(now)
	r.trainCount++
	return changed
}

// Exit removes one train, never going below zero.
func (r *Railroad) Exit(now uint64) bool {
	changed := r.updateCongestion(now)
	if r.trainCount > 0 {
		r.trainCount--
	}
	return changed
}

// Sample folds the current occupancy into the average without changing it.
func (r *Railroad) Sample(now uint64) bool {
	return r.updateCongestion(now)
}

// updateCongestion applies ema = a*count + (1-a)^dt * ema using the
// occupancy that held since the previous update.
func (r *Railroad) updateCongestion(now uint64) bool {
	dt := uint64(1)
	if now > r.lastCongestion {
		dt = now - r.lastCongestion
	}
	a := r.econ.CongestionAlpha
	r.congestionEMA = a*float64(r.trainCount) + math.Pow(1-a, float64(dt))*r.congestionEMA
	r.lastCongestion = now

	fare := r.Fare()
	base := math.Max(1, float64(r.publishedFare))
	if math.Abs(float64(fare-r.publishedFare)) > r.econ.FareChangeThreshold*base {
		r.publishedFare = fare
		return true
	}
	return false
}

func (r *Railroad) ownerDistribution(m terrain.Map, now uint64) []ownerShare {
	if r.ownersOK && now-r.ownersTick < r.econ.OwnerCacheTicks {
		return r.owners
	}
	counts := map[terrain.PlayerID]int{}
	for _, t := range r.tiles {
		if p := m.Owner(t); p != 0 {
			counts[p]++
		}
	}
	owners := make([]ownerShare, 0, len(counts))
	for p, n := range counts {
		owners = append(owners, ownerShare{Player: p, Tiles: n})
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].Player < owners[j].Player })
	r.owners = owners
	r.ownersTick = now
	r.ownersOK = true
	return owners
}

type Payout struct {
	Player terrain.PlayerID
	Amount int64
}

type FareReceipt struct {
	Fare    int64
	Charged int64
	Share   int64
	Payouts []Payout
}

// ChargeFare takes the fare from payer and pays the territory share to the
// owners of the tiles the track crosses. The sum of payouts always equals
// Share.
func (r *Railroad) ChargeFare(g Game, payer terrain.PlayerID, now uint64) FareReceipt {
	fare := r.Fare()
	rc := FareReceipt{Fare: fare}
	if fare == 0 {
		return rc
	}
	owners := r.ownerDistribution(g.Map(), now)
	div := r.econ.ProfitShareDivisor

	if len(owners) == 0 {
		rc.Charged = g.RemoveGold(payer, fare)
		return rc
	}
	if len(owners) == 1 && owners[0].Player == payer {
		net := fare - fare/div
		rc.Charged = g.RemoveGold(payer, net)
		return rc
	}

	rc.Charged = g.RemoveGold(payer, fare)
	rc.Share = rc.Charged / div
	if rc.Share == 0 {
		return rc
	}
	total := 0
	for _, o := range owners {
		total += o.Tiles
	}
	var paid int64
	for i, o := range owners {
		amt := rc.Share * int64(o.Tiles) / int64(total)
		if i == len(owners)-1 {
			amt = rc.Share - paid
		}
		paid += amt
		if amt > 0 {
			g.AddGold(o.Player, amt)
		}
		rc.Payouts = append(rc.Payouts, Payout{Player: o.Player, Amount: amt})
	}
	return rc
}

// Oriented is a read-only view of a railroad in one travel direction.
type Oriented struct {
	R        *Railroad
	reversed bool
}

// Orient returns the view that starts at station from.
func (r *Railroad) Orient(from StationID) Oriented {
	return Oriented{R: r, reversed: from != r.From}
}

func (o Oriented) Start() StationID {
	if o.reversed {
		return o.R.To
	}
	return o.R.From
}

func (o Oriented) End() StationID {
	if o.reversed {
		return o.R.From
	}
	return o.R.To
}

func (o Oriented) Len() int { return len(o.R.tiles) }

// At returns the i-th tile in travel order.
func (o Oriented) At(i int) terrain.Tile {
	if o.reversed {
		return o.R.tiles[len(o.R.tiles)-1-i]
	}
	return o.R.tiles[i]
}

// Tiles copies the path in travel order.
func (o Oriented) Tiles() []terrain.Tile {
	out := make([]terrain.Tile, len(o.R.tiles))
	for i := range out {
		out[i] = o.At(i)
	}
	return out
}
