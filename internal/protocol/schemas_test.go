package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"worldsync.dev/internal/protocol"
)

func TestSchemas_ValidateEncodedPackets(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	envelopeSchema := compile("envelope.schema.json")
	connectSchema := compile("connect.schema.json")
	instantiateSchema := compile("instantiate.schema.json")
	destroySchema := compile("destroy.schema.json")
	stateUpdateSchema := compile("state_update.schema.json")
	updateSchema := compile("update_component.schema.json")

	// validate checks the envelope and then its data against s.
	validate := func(s *jsonschema.Schema, cmd string, data any) {
		t.Helper()
		b, err := protocol.Encode(1234, cmd, data)
		if err != nil {
			t.Fatalf("encode %s: %v", cmd, err)
		}
		var env map[string]any
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal %s: %v", cmd, err)
		}
		if err := envelopeSchema.Validate(env); err != nil {
			t.Fatalf("envelope %s: %v", cmd, err)
		}
		if s == nil {
			return
		}
		if err := s.Validate(env["data"]); err != nil {
			t.Fatalf("data %s: %v\n%s", cmd, err, b)
		}
	}

	obj := protocol.ObjectPacket{
		Type:    protocol.ObjectPlayer,
		ID:      1,
		OwnerID: 7,
		Transform: protocol.Transform{
			Pos: protocol.Vec3{X: -5},
		},
	}
	state := protocol.StatePacket{
		Players: []protocol.PlayerPacket{{ID: 7}},
		Objs:    []protocol.ObjectPacket{obj},
	}

	validate(connectSchema, protocol.CmdConnect, protocol.ConnectPacket{ID: 7, State: state})
	validate(connectSchema, protocol.CmdConnect, protocol.ConnectPacket{ID: 1, State: protocol.StatePacket{
		Players: []protocol.PlayerPacket{},
		Objs:    []protocol.ObjectPacket{},
	}})
	validate(instantiateSchema, protocol.CmdInstantiate, protocol.InstantiatePacket{Obj: obj})
	validate(destroySchema, protocol.CmdDestroy, protocol.DestroyPacket{IDs: []uint64{1}})
	validate(destroySchema, protocol.CmdDestroy, protocol.DestroyPacket{IDs: []uint64{1, 2, 3}})
	validate(stateUpdateSchema, protocol.CmdStateUpdate, protocol.StateUpdatePacket{Diff: protocol.Diff{
		Objs: map[uint64]*protocol.ObjectPatch{
			1: {Transform: &protocol.TransformPatch{Pos: &protocol.Vec3Patch{X: protocol.Float(1)}}},
		},
	}})
	validate(updateSchema, protocol.CmdUpdateComponent, protocol.UpdateComponentPacket{
		ID:        1,
		Transform: &protocol.TransformPatch{Rot: &protocol.Vec3Patch{Y: protocol.Float(90)}},
	})
	validate(nil, protocol.CmdSyncRequest, nil)
}
