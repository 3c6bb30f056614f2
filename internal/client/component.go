package client

import (
	"worldsync.dev/internal/protocol"
	"worldsync.dev/internal/sim/delta"
)

// Component is one networked piece of a mirrored object. The mirror calls it
// with every snapshot and diff that targets its object; the component decides
// whether to apply.
type Component interface {
	SetOwner(owner bool)
	OnSync(obj protocol.ObjectPacket, t int64)
	OnStateUpdate(p *protocol.ObjectPatch, t int64)
}

// NetworkTransform mirrors an object's transform.
//
// Inbound data older than the last applied envelope is discarded. Once the
// first snapshot has been applied, an owned transform ignores all inbound
// data: the owner drives it locally and publishes upward.
type NetworkTransform struct {
	owner  bool
	synced bool

	lastUpdate int64
	value      protocol.Transform
	published  protocol.Transform
}

func NewNetworkTransform() *NetworkTransform { return &NetworkTransform{} }

func (n *NetworkTransform) SetOwner(owner bool) { n.owner = owner }
func (n *NetworkTransform) Owner() bool         { return n.owner }

func (n *NetworkTransform) Value() protocol.Transform { return n.value }
func (n *NetworkTransform) LastUpdate() int64         { return n.lastUpdate }

func (n *NetworkTransform) OnSync(obj protocol.ObjectPacket, t int64) {
	if n.owner && n.synced {
		return
	}
	if n.synced && t < n.lastUpdate {
		return
	}
	n.value = obj.Transform
	n.published = obj.Transform
	n.lastUpdate = t
	n.synced = true
}

func (n *NetworkTransform) OnStateUpdate(p *protocol.ObjectPatch, t int64) {
	if n.owner || p == nil || p.Transform.IsEmpty() {
		return
	}
	if t < n.lastUpdate {
		return
	}
	n.value = delta.ApplyTransform(n.value, p.Transform)
	n.lastUpdate = t
}

// Set moves an owned transform. It returns false for transforms owned by
// someone else.
func (n *NetworkTransform) Set(tr protocol.Transform) bool {
	if !n.owner {
		return false
	}
	n.value = tr
	return true
}

// takeChange reports the transform to publish if an owned value moved since
// the last publish.
func (n *NetworkTransform) takeChange() (*protocol.TransformPatch, bool) {
	if !n.owner || !n.synced || n.value == n.published {
		return nil, false
	}
	n.published = n.value
	return n.value.Patch(), true
}
