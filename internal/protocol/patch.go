package protocol

// Partial ("patch") shapes. A nil pointer means the field is absent, so
// partiality is carried by the type instead of being inferred from a map.

type Vec3Patch struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
}

type TransformPatch struct {
	Pos *Vec3Patch `json:"pos,omitempty"`
	Rot *Vec3Patch `json:"rot,omitempty"`
}

type ObjectPatch struct {
	Transform *TransformPatch `json:"transform,omitempty"`
}

// Diff maps entity id to the changed fields of that entity.
type Diff struct {
	Objs map[uint64]*ObjectPatch `json:"objs,omitempty"`
}

func Float(v float64) *float64 { return &v }

func (p *Vec3Patch) IsEmpty() bool {
	return p == nil || (p.X == nil && p.Y == nil && p.Z == nil)
}

func (p *TransformPatch) IsEmpty() bool {
	return p == nil || (p.Pos.IsEmpty() && p.Rot.IsEmpty())
}

func (p *ObjectPatch) IsEmpty() bool {
	return p == nil || p.Transform.IsEmpty()
}

func (d Diff) IsEmpty() bool {
	for _, p := range d.Objs {
		if !p.IsEmpty() {
			return false
		}
	}
	return true
}

// Patch returns a patch carrying every leaf of v.
func (v Vec3) Patch() *Vec3Patch {
	return &Vec3Patch{X: Float(v.X), Y: Float(v.Y), Z: Float(v.Z)}
}

func (t Transform) Patch() *TransformPatch {
	return &TransformPatch{Pos: t.Pos.Patch(), Rot: t.Rot.Patch()}
}
