package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> server commands.
const (
	CmdSyncRequest     = "C2S_SYNC_REQUEST"
	CmdUpdateComponent = "C2S_UPDATE_COMPONENT"
)

// Server -> client commands.
const (
	CmdSync        = "S2C_SYNC"
	CmdConnect     = "S2C_CONNECT"
	CmdJoin        = "S2C_JOIN"
	CmdLeave       = "S2C_LEAVE"
	CmdInstantiate = "S2C_INSTANTIATE"
	CmdDestroy     = "S2C_DESTROY"
	CmdStateUpdate = "S2C_STATE_UPDATE"
)

// Component keys accepted in C2S_UPDATE_COMPONENT.
const (
	ComponentTransform = "transform"
)

// Envelope is the outer frame of every message in both directions.
// T is milliseconds since the server started and is only stamped by the server.
type Envelope struct {
	T    int64           `json:"t,omitempty"`
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Cmd == "" {
		return Envelope{}, fmt.Errorf("%w: missing cmd", ErrMalformed)
	}
	return env, nil
}

// Decode unmarshals the command payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformed, e.Cmd)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Cmd, err)
	}
	return nil
}

// Encode builds a wire message. A nil data produces an envelope without payload.
func Encode(t int64, cmd string, data any) ([]byte, error) {
	env := Envelope{T: t, Cmd: cmd}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = b
	}
	return json.Marshal(env)
}

func IsClientCommand(cmd string) bool {
	switch cmd {
	case CmdSyncRequest, CmdUpdateComponent:
		return true
	}
	return false
}

func IsServerCommand(cmd string) bool {
	switch cmd {
	case CmdSync, CmdConnect, CmdJoin, CmdLeave, CmdInstantiate, CmdDestroy, CmdStateUpdate:
		return true
	}
	return false
}
