package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"railnet.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		player   = flag.Int("player", 1, "player id")
		width    = flag.Int("width", 256, "map width")
		height   = flag.Int("height", 256, "map height")
		stations = flag.Int("stations", 8, "stations to build before dispatching trains")
		every    = flag.Duration("every", 500*time.Millisecond, "delay between commands")
		seed     = flag.Int64("seed", 0, "rng seed (default: time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := newBot(uint16(*player), *width, *height, *stations, *seed)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		cmd := b.next()
		if err := conn.WriteJSON(cmd); err != nil {
			logger.Printf("send %s: %v", cmd.Cmd, err)
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		var ack protocol.AckMsg
		if err := json.Unmarshal(msg, &ack); err != nil || ack.Type != protocol.TypeAck {
			continue
		}
		b.handleAck(cmd, ack)
		if ack.Accepted {
			logger.Printf("%s ok tick=%d station=%d train=%d", cmd.Cmd, ack.ServerTick, ack.Station, ack.Train)
		} else {
			logger.Printf("%s rejected tick=%d code=%s msg=%s", cmd.Cmd, ack.ServerTick, ack.Code, ack.Message)
		}
	}
}

// bot plays one player: join, grow a station network around a home tile,
// then keep dispatching trains between its own stations.
type bot struct {
	player   uint16
	width    int
	height   int
	target   int
	rng      *rand.Rand
	joined   bool
	home     [2]int
	stations []int32
	seq      int
}

func newBot(player uint16, width, height, target int, seed int64) *bot {
	r := rand.New(rand.NewSource(seed))
	return &bot{
		player: player,
		width:  width,
		height: height,
		target: target,
		rng:    r,
		home:   [2]int{r.Intn(width), r.Intn(height)},
	}
}

func (b *bot) base(verb string) protocol.CommandMsg {
	b.seq++
	return protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("bot%d_%d", b.player, b.seq),
		Player:          b.player,
		Cmd:             verb,
	}
}

func (b *bot) next() protocol.CommandMsg {
	if !b.joined {
		return b.base(protocol.CmdJoin)
	}
	if len(b.stations) < b.target || len(b.stations) < 2 {
		c := b.base(protocol.CmdBuild)
		c.Kind = "CITY"
		switch b.rng.Intn(6) {
		case 0:
			c.Kind = "FACTORY"
		case 1:
			c.Kind = "PORT"
		}
		// Stay within a few connection ranges of home so the network
		// forms one cluster.
		c.Pos = [2]int{clamp(b.home[0]+b.rng.Intn(61)-30, b.width), clamp(b.home[1]+b.rng.Intn(61)-30, b.height)}
		return c
	}
	c := b.base(protocol.CmdSpawnTrain)
	i := b.rng.Intn(len(b.stations))
	j := b.rng.Intn(len(b.stations) - 1)
	if j >= i {
		j++
	}
	c.Src, c.Dst = b.stations[i], b.stations[j]
	return c
}

func (b *bot) handleAck(cmd protocol.CommandMsg, ack protocol.AckMsg) {
	switch cmd.Cmd {
	case protocol.CmdJoin:
		b.joined = b.joined || ack.Accepted
	case protocol.CmdBuild:
		if ack.Accepted && ack.Station != 0 {
			b.stations = append(b.stations, ack.Station)
		}
	case protocol.CmdSpawnTrain:
		// A station that is gone (destroyed by its owner or snapped away)
		// is forgotten.
		if ack.Code == protocol.ErrInvalidTarget {
			b.forget(cmd.Src)
			b.forget(cmd.Dst)
		}
	}
}

func (b *bot) forget(id int32) {
	out := b.stations[:0]
	for _, s := range b.stations {
		if s != id {
			out = append(out, s)
		}
	}
	b.stations = out
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
