package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"worldsync.dev/internal/protocol"
)

type Tuning struct {
	TickRateHz  int          `yaml:"tick_rate_hz"`
	SpawnPoints []SpawnPoint `yaml:"spawn_points"`

	// Per-connection outbound queue. A connection whose queue overflows is
	// dropped like any other connection fault.
	SendQueue int `yaml:"send_queue"`

	RateLimits RateLimits `yaml:"rate_limits"`
	Client     Client     `yaml:"client"`
}

type Vec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type SpawnPoint struct {
	Pos Vec3 `yaml:"pos"`
	Rot Vec3 `yaml:"rot"`
}

// RateLimits bounds inbound C2S_UPDATE_COMPONENT per connection.
// UpdatesPerSecond <= 0 disables limiting.
type RateLimits struct {
	UpdatesPerSecond float64 `yaml:"updates_per_second"`
	UpdateBurst      int     `yaml:"update_burst"`
}

type Client struct {
	SyncRateMs int `yaml:"sync_rate_ms"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz: 64,
		SpawnPoints: []SpawnPoint{
			{Pos: Vec3{X: -5}},
			{Pos: Vec3{X: 0}},
			{Pos: Vec3{X: 5}},
		},
		SendQueue: 256,
		RateLimits: RateLimits{
			UpdatesPerSecond: 120,
			UpdateBurst:      32,
		},
		Client: Client{SyncRateMs: 100},
	}
}

// Load reads a YAML file over Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in 1..1000, got %d", t.TickRateHz)
	}
	if len(t.SpawnPoints) == 0 {
		return fmt.Errorf("spawn_points must not be empty")
	}
	if t.SendQueue <= 0 {
		return fmt.Errorf("send_queue must be positive, got %d", t.SendQueue)
	}
	if t.RateLimits.UpdatesPerSecond > 0 && t.RateLimits.UpdateBurst <= 0 {
		return fmt.Errorf("rate_limits.update_burst must be positive when updates_per_second is set")
	}
	if t.Client.SyncRateMs <= 0 {
		return fmt.Errorf("client.sync_rate_ms must be positive, got %d", t.Client.SyncRateMs)
	}
	return nil
}

// TickInterval is the broadcast period (1/64 s at the default rate).
func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) SyncRate() time.Duration {
	return time.Duration(t.Client.SyncRateMs) * time.Millisecond
}

func (t Tuning) SpawnTransforms() []protocol.Transform {
	out := make([]protocol.Transform, 0, len(t.SpawnPoints))
	for _, sp := range t.SpawnPoints {
		out = append(out, protocol.Transform{
			Pos: protocol.Vec3{X: sp.Pos.X, Y: sp.Pos.Y, Z: sp.Pos.Z},
			Rot: protocol.Vec3{X: sp.Rot.X, Y: sp.Rot.Y, Z: sp.Rot.Z},
		})
	}
	return out
}
