package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"railnet.ai/internal/sim/rail"
	"railnet.ai/internal/sim/train"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is a resume point. In-flight trains are not part of it; routing
// tables are rebuilt by the protocol after import.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed          int64 `json:"seed"`
	TickRate      int   `json:"tick_rate_hz"`
	Width         int   `json:"width"`
	Height        int   `json:"height"`
	WaterPermille int   `json:"water_permille"`

	// Operational parameters (captured for deterministic replay/resume).
	StartingGold           int64        `json:"starting_gold"`
	ClaimRadius            int          `json:"claim_radius"`
	BuildCosts             BuildCostsV1 `json:"build_costs"`
	TradeShipLifetimeTicks int          `json:"trade_ship_lifetime_ticks"`
	TradeShipReward        int64        `json:"trade_ship_reward"`
	TrainSpawnEveryTicks   int          `json:"train_spawn_every_ticks"`
	MaxTrains              int          `json:"max_trains"`
	SnapshotEveryTicks     int          `json:"snapshot_every_ticks,omitempty"`
	Rail                   rail.Config  `json:"rail"`
	Train                  train.Config `json:"train"`

	// Terrain is the RLE+base64 packing of the tile words.
	Terrain string `json:"terrain"`

	Players    []PlayerV1    `json:"players"`
	Relations  []RelationV1  `json:"relations,omitempty"`
	Structures []StructureV1 `json:"structures"`
	Railroads  []RailroadV1  `json:"railroads"`
	Pending    [][2]int32    `json:"pending,omitempty"`
	Ships      []ShipV1      `json:"ships,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type BuildCostsV1 struct {
	City    int64 `json:"city"`
	Port    int64 `json:"port"`
	Factory int64 `json:"factory"`
	Other   int64 `json:"other"`
}

type CountersV1 struct {
	NextUnit  uint64 `json:"next_unit"`
	NextTrain uint64 `json:"next_train"`
	Cursor    uint64 `json:"cursor"`
}

type PlayerV1 struct {
	ID         uint16 `json:"id"`
	Name       string `json:"name"`
	Gold       int64  `json:"gold"`
	JoinedTick uint64 `json:"joined_tick"`
}

type RelationV1 struct {
	A      uint16 `json:"a"`
	B      uint16 `json:"b"`
	Stance uint8  `json:"stance"`
}

type StructureV1 struct {
	Station int32  `json:"station"`
	Unit    uint64 `json:"unit"`
	Owner   uint16 `json:"owner"`
	Kind    string `json:"kind"`
	Tile    int32  `json:"tile"`
}

type RailroadV1 struct {
	ID    int32   `json:"id"`
	From  int32   `json:"from"`
	To    int32   `json:"to"`
	Tiles []int32 `json:"tiles"`

	CongestionEMA  float64 `json:"congestion_ema"`
	LastCongestion uint64  `json:"last_congestion"`
	PublishedFare  int64   `json:"published_fare"`
}

type ShipV1 struct {
	Unit    uint64 `json:"unit"`
	Owner   uint16 `json:"owner"`
	Port    int32  `json:"port"`
	Tile    int32  `json:"tile"`
	Expires uint64 `json:"expires"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
