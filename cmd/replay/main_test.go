package main

import (
	"io"
	"log"
	"reflect"
	"testing"

	"worldsync.dev/internal/protocol"
	"worldsync.dev/internal/sim/world"
)

type captureTicks struct{ entries []world.TickLogEntry }

func (c *captureTicks) WriteTick(e world.TickLogEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

func TestObjectTable_MatchesWorld(t *testing.T) {
	w, err := world.New(world.WorldConfig{
		TickRateHz:  64,
		SpawnPoints: []protocol.Transform{{Pos: protocol.Vec3{X: -5}}, {Pos: protocol.Vec3{X: 5}}},
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ticks := &captureTicks{}
	w.SetTickLogger(ticks)

	outs := []chan []byte{make(chan []byte, 256), make(chan []byte, 256), make(chan []byte, 256)}
	w.StepOnce([]world.JoinRequest{{Out: outs[0]}, {Out: outs[1]}}, nil, nil)
	w.StepOnce(nil, []world.MessageEnvelope{
		update(t, 1, 1, protocol.TransformPatch{Pos: &protocol.Vec3Patch{Y: protocol.Float(2)}}),
		update(t, 2, 2, protocol.TransformPatch{Rot: &protocol.Vec3Patch{Y: protocol.Float(90)}}),
	}, nil)
	w.StepOnce([]world.JoinRequest{{Out: outs[2]}}, []world.MessageEnvelope{
		update(t, 1, 1, protocol.TransformPatch{Pos: &protocol.Vec3Patch{X: protocol.Float(7)}}),
	}, []uint64{2})

	table := newObjectTable()
	for _, e := range ticks.entries {
		table.apply(e)
	}

	want := []protocol.ObjectPacket{
		{Type: protocol.ObjectPlayer, ID: 1, OwnerID: 1, Transform: protocol.Transform{Pos: protocol.Vec3{X: 7, Y: 2}}},
		{Type: protocol.ObjectPlayer, ID: 3, OwnerID: 3, Transform: protocol.Transform{Pos: protocol.Vec3{X: -5}}},
	}
	if got := table.sorted(); !reflect.DeepEqual(got, want) {
		t.Fatalf("objects=%+v\nwant %+v", got, want)
	}
	if _, ok := table.players[2]; ok || len(table.players) != 2 {
		t.Fatalf("players=%v", table.players)
	}
}

func update(t *testing.T, from, id uint64, p protocol.TransformPatch) world.MessageEnvelope {
	t.Helper()
	b, err := protocol.Encode(0, protocol.CmdUpdateComponent, protocol.UpdateComponentPacket{ID: id, Transform: &p})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := protocol.DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return world.MessageEnvelope{PlayerID: from, Msg: env}
}
