package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

type ObjectType string

const (
	ObjectPlayer ObjectType = "PLAYER"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Transform struct {
	Pos Vec3 `json:"pos"`
	Rot Vec3 `json:"rot"`
}

type PlayerPacket struct {
	ID uint64 `json:"id"`
}

// ObjectPacket is the full wire form of a networked entity.
type ObjectPacket struct {
	Type      ObjectType `json:"type"`
	ID        uint64     `json:"id"`
	OwnerID   uint64     `json:"ownerId"`
	Transform Transform  `json:"transform"`
}

// StatePacket is a full snapshot.
type StatePacket struct {
	Players []PlayerPacket `json:"players"`
	Objs    []ObjectPacket `json:"objs"`
}

// S2C_SYNC
type SyncPacket struct {
	State StatePacket `json:"state"`
}

// S2C_CONNECT
type ConnectPacket struct {
	ID    uint64      `json:"id"`
	State StatePacket `json:"state"`
}

// S2C_JOIN
type JoinPacket struct {
	ID uint64 `json:"id"`
}

// S2C_LEAVE
type LeavePacket struct {
	ID uint64 `json:"id"`
}

// S2C_INSTANTIATE
type InstantiatePacket struct {
	Obj ObjectPacket `json:"obj"`
}

// S2C_DESTROY. On the wire "id" is either a single id or an array of ids.
type DestroyPacket struct {
	IDs []uint64
}

type destroyWire struct {
	ID json.RawMessage `json:"id"`
}

func (p DestroyPacket) MarshalJSON() ([]byte, error) {
	if len(p.IDs) == 1 {
		return json.Marshal(struct {
			ID uint64 `json:"id"`
		}{ID: p.IDs[0]})
	}
	ids := p.IDs
	if ids == nil {
		ids = []uint64{}
	}
	return json.Marshal(struct {
		ID []uint64 `json:"id"`
	}{ID: ids})
}

func (p *DestroyPacket) UnmarshalJSON(b []byte) error {
	var w destroyWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	raw := bytes.TrimSpace(w.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		p.IDs = nil
		return nil
	}
	if raw[0] == '[' {
		var ids []uint64
		if err := json.Unmarshal(raw, &ids); err != nil {
			return fmt.Errorf("destroy id list: %w", err)
		}
		p.IDs = ids
		return nil
	}
	var id uint64
	if err := json.Unmarshal(raw, &id); err != nil {
		return fmt.Errorf("destroy id: %w", err)
	}
	p.IDs = []uint64{id}
	return nil
}

// S2C_STATE_UPDATE
type StateUpdatePacket struct {
	Diff Diff `json:"diff"`
}

// UpdateComponentPacket is C2S_UPDATE_COMPONENT: an entity id plus one partial
// value per component key. Keys outside the closed component set are kept in
// Unknown so the receiver can report them.
type UpdateComponentPacket struct {
	ID        uint64
	Transform *TransformPatch
	Unknown   []string
}

func (p UpdateComponentPacket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        uint64          `json:"id"`
		Transform *TransformPatch `json:"transform,omitempty"`
	}{ID: p.ID, Transform: p.Transform})
}

func (p *UpdateComponentPacket) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	rawID, ok := fields["id"]
	if !ok {
		return fmt.Errorf("missing id")
	}
	var out UpdateComponentPacket
	if err := json.Unmarshal(rawID, &out.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	for k, v := range fields {
		switch k {
		case "id":
		case ComponentTransform:
			var tp TransformPatch
			if err := json.Unmarshal(v, &tp); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			out.Transform = &tp
		default:
			out.Unknown = append(out.Unknown, k)
		}
	}
	sort.Strings(out.Unknown)
	*p = out
	return nil
}

// Patch returns the component values as an object patch.
func (p UpdateComponentPacket) Patch() ObjectPatch {
	return ObjectPatch{Transform: p.Transform}
}
