package delta

import (
	"math/rand"
	"reflect"
	"testing"

	"worldsync.dev/internal/protocol"
)

func randLeaf(r *rand.Rand) *float64 {
	switch r.Intn(3) {
	case 0:
		return nil
	case 1:
		return protocol.Float(0)
	default:
		return protocol.Float(float64(r.Intn(5) - 2))
	}
}

func randVec3Patch(r *rand.Rand) *protocol.Vec3Patch {
	if r.Intn(4) == 0 {
		return nil
	}
	return &protocol.Vec3Patch{X: randLeaf(r), Y: randLeaf(r), Z: randLeaf(r)}
}

func randPatch(r *rand.Rand) protocol.ObjectPatch {
	if r.Intn(5) == 0 {
		return protocol.ObjectPatch{}
	}
	return protocol.ObjectPatch{Transform: &protocol.TransformPatch{
		Pos: randVec3Patch(r),
		Rot: randVec3Patch(r),
	}}
}

func randObject(r *rand.Rand) protocol.ObjectPacket {
	v := func() protocol.Vec3 {
		return protocol.Vec3{X: float64(r.Intn(5) - 2), Y: float64(r.Intn(5) - 2), Z: float64(r.Intn(5) - 2)}
	}
	return protocol.ObjectPacket{
		Type:      protocol.ObjectPlayer,
		ID:        uint64(r.Intn(10) + 1),
		OwnerID:   uint64(r.Intn(10) + 1),
		Transform: protocol.Transform{Pos: v(), Rot: v()},
	}
}

func TestDiffObject_ApplyingDiffEqualsApplyingUpdate(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		e := randObject(r)
		u := randPatch(r)

		want := ApplyObject(e, &u)
		got := ApplyObject(e, DiffObject(e, u))
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("iteration %d: apply(diff)=%+v apply(update)=%+v", i, got, want)
		}
	}
}

func TestDiffObject_Minimal(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 500; i++ {
		e := randObject(r)
		full := protocol.ObjectPatch{Transform: e.Transform.Patch()}
		if d := DiffObject(e, full); d != nil {
			t.Fatalf("diff(e,e) not empty: %+v", d)
		}

		u := randPatch(r)
		next := ApplyObject(e, &u)
		if d := DiffObject(next, u); d != nil {
			t.Fatalf("re-diff after apply not empty: %+v", d)
		}
	}
}

func TestDiffObject_OnlyChangedLeaf(t *testing.T) {
	e := protocol.ObjectPacket{Type: protocol.ObjectPlayer, ID: 1, OwnerID: 7}
	u := protocol.ObjectPatch{Transform: &protocol.TransformPatch{
		Pos: &protocol.Vec3Patch{X: protocol.Float(1), Y: protocol.Float(0), Z: protocol.Float(0)},
	}}
	got := DiffObject(e, u)
	want := &protocol.ObjectPatch{Transform: &protocol.TransformPatch{
		Pos: &protocol.Vec3Patch{X: protocol.Float(1)},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("diff=%+v want %+v", got, want)
	}
}

func TestDiffObject_NoEmptyNestedObjects(t *testing.T) {
	e := protocol.ObjectPacket{Transform: protocol.Transform{Rot: protocol.Vec3{Y: 3}}}
	u := protocol.ObjectPatch{Transform: &protocol.TransformPatch{
		Pos: &protocol.Vec3Patch{X: protocol.Float(2)},
		Rot: &protocol.Vec3Patch{Y: protocol.Float(3)},
	}}
	got := DiffObject(e, u)
	if got == nil || got.Transform == nil {
		t.Fatalf("diff=%+v", got)
	}
	if got.Transform.Rot != nil {
		t.Fatalf("unchanged rot must be omitted, got %+v", got.Transform.Rot)
	}
}

func TestApplyObject_DoesNotMutateInput(t *testing.T) {
	p := &protocol.ObjectPatch{Transform: &protocol.TransformPatch{Pos: &protocol.Vec3Patch{Z: protocol.Float(9)}}}
	e := protocol.ObjectPacket{ID: 1}
	got := ApplyObject(e, p)
	if e.Transform.Pos.Z != 0 {
		t.Fatalf("input mutated")
	}
	if got.Transform.Pos.Z != 9 || got.ID != 1 {
		t.Fatalf("got=%+v", got)
	}
}

func TestAccumulate_LastWriterWinsPerLeaf(t *testing.T) {
	var running protocol.Diff
	Accumulate(&running, 1, &protocol.ObjectPatch{Transform: &protocol.TransformPatch{
		Pos: &protocol.Vec3Patch{X: protocol.Float(1), Y: protocol.Float(2)},
	}})
	Accumulate(&running, 1, &protocol.ObjectPatch{Transform: &protocol.TransformPatch{
		Pos: &protocol.Vec3Patch{X: protocol.Float(5)},
		Rot: &protocol.Vec3Patch{Z: protocol.Float(1)},
	}})
	Accumulate(&running, 2, nil)
	Accumulate(&running, 3, &protocol.ObjectPatch{})

	want := protocol.Diff{Objs: map[uint64]*protocol.ObjectPatch{
		1: {Transform: &protocol.TransformPatch{
			Pos: &protocol.Vec3Patch{X: protocol.Float(5), Y: protocol.Float(2)},
			Rot: &protocol.Vec3Patch{Z: protocol.Float(1)},
		}},
	}}
	if !reflect.DeepEqual(running, want) {
		t.Fatalf("running=%+v", running.Objs[1].Transform)
	}

	Forget(&running, 1)
	if !running.IsEmpty() {
		t.Fatalf("expected empty after Forget")
	}
}

func TestAccumulate_DoesNotAliasInput(t *testing.T) {
	in := &protocol.ObjectPatch{Transform: &protocol.TransformPatch{Pos: &protocol.Vec3Patch{X: protocol.Float(1)}}}
	var running protocol.Diff
	Accumulate(&running, 1, in)
	*in.Transform.Pos.X = 99
	if got := *running.Objs[1].Transform.Pos.X; got != 1 {
		t.Fatalf("running diff aliased caller patch: x=%v", got)
	}

	c := Clone(running)
	*c.Objs[1].Transform.Pos.X = 42
	if got := *running.Objs[1].Transform.Pos.X; got != 1 {
		t.Fatalf("Clone aliased: x=%v", got)
	}
}

func TestMerge_NilHandling(t *testing.T) {
	if MergeObject(nil, nil) != nil {
		t.Fatalf("merge of nils must be nil")
	}
	if MergeObject(&protocol.ObjectPatch{}, nil) != nil {
		t.Fatalf("merge of empties must be nil")
	}
	if DiffObject(protocol.ObjectPacket{}, protocol.ObjectPatch{}) != nil {
		t.Fatalf("diff of absent update must be nil")
	}
}
