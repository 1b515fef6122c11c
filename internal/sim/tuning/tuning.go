package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz       int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SubTicks         int `yaml:"sub_ticks" json:"sub_ticks"`
	SaveEverySeconds int `yaml:"save_every_seconds" json:"save_every_seconds"`
	EventCapacity    int `yaml:"event_capacity" json:"event_capacity"`
	RequestCapacity  int `yaml:"request_capacity" json:"request_capacity"`
	SpawnAttempts    int `yaml:"spawn_attempts" json:"spawn_attempts"`

	MaxFirmwareBytes int `yaml:"max_firmware_bytes" json:"max_firmware_bytes"`
	MaxProgramOps    int `yaml:"max_program_ops" json:"max_program_ops"`

	RateLimits RateLimits `yaml:"rate_limits" json:"rate_limits"`
}

type RateLimits struct {
	UploadWindowSeconds int `yaml:"upload_window_seconds" json:"upload_window_seconds"`
	UploadMax           int `yaml:"upload_max" json:"upload_max"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:  "1.0",
		TickRateHz:       64,
		SubTicks:         1,
		SaveEverySeconds: 60,
		EventCapacity:    128,
		RequestCapacity:  128,
		SpawnAttempts:    64,
		MaxFirmwareBytes: 64 * 1024,
		MaxProgramOps:    4096,
		RateLimits: RateLimits{
			UploadWindowSeconds: 60,
			UploadMax:           10,
		},
	}
}

// Load reads path over Defaults, so a file only needs the keys it changes.
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
		return fmt.Errorf("tick_rate_hz must be in [1, 1000]")
	}
	if t.SubTicks <= 0 {
		return fmt.Errorf("sub_ticks must be > 0")
	}
	if t.SaveEverySeconds <= 0 {
		return fmt.Errorf("save_every_seconds must be > 0")
	}
	if t.EventCapacity < 0 || t.RequestCapacity <= 0 || t.SpawnAttempts <= 0 {
		return fmt.Errorf("event_capacity, request_capacity and spawn_attempts must be positive")
	}
	if t.MaxFirmwareBytes <= 0 || t.MaxProgramOps <= 0 {
		return fmt.Errorf("max_firmware_bytes and max_program_ops must be > 0")
	}
	if t.RateLimits.UploadWindowSeconds < 0 || t.RateLimits.UploadMax < 0 {
		return fmt.Errorf("rate_limits must be >= 0")
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) SaveEvery() time.Duration {
	return time.Duration(t.SaveEverySeconds) * time.Second
}

func (t Tuning) UploadWindow() time.Duration {
	return time.Duration(t.RateLimits.UploadWindowSeconds) * time.Second
}
