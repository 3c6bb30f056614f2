package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	persistlog "worldsync.dev/internal/persistence/log"
	"worldsync.dev/internal/protocol"
	"worldsync.dev/internal/sim/delta"
	"worldsync.dev/internal/sim/world"
)

func main() {
	var (
		ticksDir = flag.String("ticks", "./data/ticks", "dir containing ticks-*.jsonl.zst")
		toTick   = flag.Uint64("to_tick", 0, "stop after tick (inclusive, optional)")
		verbose  = flag.Bool("v", false, "print every tick")
	)
	flag.Parse()

	table := newObjectTable()
	var last uint64
	err := persistlog.ReadTicks(*ticksDir, func(e world.TickLogEntry) error {
		if *toTick != 0 && e.Tick > *toTick {
			return errStop
		}
		if e.Tick <= last && last != 0 {
			return fmt.Errorf("tick %d after %d: log out of order", e.Tick, last)
		}
		last = e.Tick
		table.apply(e)
		if *verbose {
			fmt.Printf("tick=%d t=%d joins=%v leaves=%v spawned=%d destroyed=%v changed=%d bytes=%d\n",
				e.Tick, e.T, e.Joins, e.Leaves, len(e.Spawned), e.Destroyed, len(e.Diff.Objs), e.Bytes)
		}
		return nil
	})
	if err != nil && !isStop(err) {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	fmt.Printf("replayed through tick=%d players=%d objects=%d\n", last, len(table.players), len(table.objs))
	for _, obj := range table.sorted() {
		p, r := obj.Transform.Pos, obj.Transform.Rot
		fmt.Printf("  %-6s id=%d owner=%d pos=(%g,%g,%g) rot=(%g,%g,%g)\n",
			obj.Type, obj.ID, obj.OwnerID, p.X, p.Y, p.Z, r.X, r.Y, r.Z)
	}
}

var errStop = errors.New("stop")

func isStop(err error) bool { return errors.Is(err, errStop) }

// objectTable is the world state reconstructed from broadcast ticks.
type objectTable struct {
	players map[uint64]struct{}
	objs    map[uint64]protocol.ObjectPacket
}

func newObjectTable() *objectTable {
	return &objectTable{
		players: map[uint64]struct{}{},
		objs:    map[uint64]protocol.ObjectPacket{},
	}
}

// apply folds one tick: spawns, then the diff, then removals.
func (t *objectTable) apply(e world.TickLogEntry) {
	for _, id := range e.Joins {
		t.players[id] = struct{}{}
	}
	for _, obj := range e.Spawned {
		t.objs[obj.ID] = obj
	}
	for id, p := range e.Diff.Objs {
		obj, ok := t.objs[id]
		if !ok {
			continue
		}
		t.objs[id] = delta.ApplyObject(obj, p)
	}
	for _, id := range e.Destroyed {
		delete(t.objs, id)
	}
	for _, id := range e.Leaves {
		delete(t.players, id)
	}
}

func (t *objectTable) sorted() []protocol.ObjectPacket {
	out := make([]protocol.ObjectPacket, 0, len(t.objs))
	for _, obj := range t.objs {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
