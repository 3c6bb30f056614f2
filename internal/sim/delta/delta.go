// Package delta computes, merges and applies structural differences over the
// closed entity schema (object -> transform -> vec3 -> leaf).
//
// All functions are pure: inputs are never mutated and results never alias
// their arguments. A nil patch means "absent"; every Diff* function returns nil
// instead of an empty nested value.
package delta

import "worldsync.dev/internal/protocol"

func diffLeaf(prev float64, upd *float64) *float64 {
	if upd == nil || *upd == prev {
		return nil
	}
	return protocol.Float(*upd)
}

func DiffVec3(prev protocol.Vec3, upd *protocol.Vec3Patch) *protocol.Vec3Patch {
	if upd == nil {
		return nil
	}
	out := &protocol.Vec3Patch{
		X: diffLeaf(prev.X, upd.X),
		Y: diffLeaf(prev.Y, upd.Y),
		Z: diffLeaf(prev.Z, upd.Z),
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

func DiffTransform(prev protocol.Transform, upd *protocol.TransformPatch) *protocol.TransformPatch {
	if upd == nil {
		return nil
	}
	out := &protocol.TransformPatch{
		Pos: DiffVec3(prev.Pos, upd.Pos),
		Rot: DiffVec3(prev.Rot, upd.Rot),
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

// DiffObject returns the leaves of upd that differ from prev, or nil when
// nothing changed.
func DiffObject(prev protocol.ObjectPacket, upd protocol.ObjectPatch) *protocol.ObjectPatch {
	out := &protocol.ObjectPatch{
		Transform: DiffTransform(prev.Transform, upd.Transform),
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

func applyLeaf(dst *float64, p *float64) {
	if p != nil {
		*dst = *p
	}
}

func ApplyVec3(v protocol.Vec3, p *protocol.Vec3Patch) protocol.Vec3 {
	if p == nil {
		return v
	}
	applyLeaf(&v.X, p.X)
	applyLeaf(&v.Y, p.Y)
	applyLeaf(&v.Z, p.Z)
	return v
}

func ApplyTransform(t protocol.Transform, p *protocol.TransformPatch) protocol.Transform {
	if p == nil {
		return t
	}
	t.Pos = ApplyVec3(t.Pos, p.Pos)
	t.Rot = ApplyVec3(t.Rot, p.Rot)
	return t
}

// ApplyObject merges the present leaves of p into o. Identity fields are
// never touched.
func ApplyObject(o protocol.ObjectPacket, p *protocol.ObjectPatch) protocol.ObjectPacket {
	if p == nil {
		return o
	}
	o.Transform = ApplyTransform(o.Transform, p.Transform)
	return o
}

func mergeLeaf(a, b *float64) *float64 {
	if b != nil {
		return protocol.Float(*b)
	}
	if a != nil {
		return protocol.Float(*a)
	}
	return nil
}

// MergeVec3 deep-merges b over a; leaves present in b win.
func MergeVec3(a, b *protocol.Vec3Patch) *protocol.Vec3Patch {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		a = &protocol.Vec3Patch{}
	}
	if b == nil {
		b = &protocol.Vec3Patch{}
	}
	out := &protocol.Vec3Patch{
		X: mergeLeaf(a.X, b.X),
		Y: mergeLeaf(a.Y, b.Y),
		Z: mergeLeaf(a.Z, b.Z),
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

func MergeTransform(a, b *protocol.TransformPatch) *protocol.TransformPatch {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		a = &protocol.TransformPatch{}
	}
	if b == nil {
		b = &protocol.TransformPatch{}
	}
	out := &protocol.TransformPatch{
		Pos: MergeVec3(a.Pos, b.Pos),
		Rot: MergeVec3(a.Rot, b.Rot),
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

func MergeObject(a, b *protocol.ObjectPatch) *protocol.ObjectPatch {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		a = &protocol.ObjectPatch{}
	}
	if b == nil {
		b = &protocol.ObjectPatch{}
	}
	out := &protocol.ObjectPatch{
		Transform: MergeTransform(a.Transform, b.Transform),
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

// Accumulate folds an entity's component diff into the running diff.
// Within one accumulation window the latest leaf value wins.
func Accumulate(running *protocol.Diff, id uint64, p *protocol.ObjectPatch) {
	if running == nil || p.IsEmpty() {
		return
	}
	if running.Objs == nil {
		running.Objs = map[uint64]*protocol.ObjectPatch{}
	}
	if merged := MergeObject(running.Objs[id], p); merged != nil {
		running.Objs[id] = merged
	}
}

// Forget drops any pending change for id, e.g. after the entity is destroyed.
func Forget(running *protocol.Diff, id uint64) {
	if running == nil || running.Objs == nil {
		return
	}
	delete(running.Objs, id)
}

// Clone deep-copies a diff.
func Clone(d protocol.Diff) protocol.Diff {
	if len(d.Objs) == 0 {
		return protocol.Diff{}
	}
	out := protocol.Diff{Objs: make(map[uint64]*protocol.ObjectPatch, len(d.Objs))}
	for id, p := range d.Objs {
		if c := MergeObject(nil, p); c != nil {
			out.Objs[id] = c
		}
	}
	return out
}
