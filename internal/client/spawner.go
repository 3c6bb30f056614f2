package client

import "worldsync.dev/internal/protocol"

// Spawner builds the components for a newly instantiated object. ok is false
// for object types the client cannot represent.
type Spawner interface {
	Spawn(typ protocol.ObjectType) (components []Component, ok bool)
}

type SpawnerFunc func(typ protocol.ObjectType) ([]Component, bool)

func (f SpawnerFunc) Spawn(typ protocol.ObjectType) ([]Component, bool) { return f(typ) }

// DefaultSpawner gives players a NetworkTransform and knows no other types.
var DefaultSpawner Spawner = SpawnerFunc(func(typ protocol.ObjectType) ([]Component, bool) {
	switch typ {
	case protocol.ObjectPlayer:
		return []Component{NewNetworkTransform()}, true
	default:
		return nil, false
	}
})

// Hooks observe mirror changes. Hooks run on the mirror's goroutine and may
// feed further messages to Handle; those are queued until the current
// message finishes.
type Hooks interface {
	OnPlayerJoin(id uint64)
	OnPlayerLeave(id uint64)
	OnInstantiate(obj *Object)
	OnDestroy(obj *Object)
}

// NopHooks can be embedded to implement only some hooks.
type NopHooks struct{}

func (NopHooks) OnPlayerJoin(uint64)    {}
func (NopHooks) OnPlayerLeave(uint64)   {}
func (NopHooks) OnInstantiate(*Object) {}
func (NopHooks) OnDestroy(*Object)     {}
