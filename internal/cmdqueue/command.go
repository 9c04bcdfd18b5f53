// internal/cmdqueue/command.go
package cmdqueue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/rx178nwj/plant-dashboard/internal/protocol"
)

// DefaultPath is the queue file shared with the web process.
const DefaultPath = "/tmp/plant_dashboard_cmd_pipe.jsonl"

// Command names accepted on the queue.
const (
	CommandSetWateringThresholds = "set_watering_thresholds"
	CommandControlActuator       = "control_actuator"
)

var (
	ErrMalformedCommand = errors.New("cmdqueue: malformed command")
	ErrUnknownCommand   = errors.New("cmdqueue: unknown command")
)

// Command is one queue line.
type Command struct {
	Command  string          `json:"command"`
	DeviceID string          `json:"device_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ThresholdsPayload is the set_watering_thresholds payload, in millivolts.
type ThresholdsPayload struct {
	DryThreshold *int `json:"dry_threshold"`
	WetThreshold *int `json:"wet_threshold"`
}

// ActuatorPayload is the control_actuator payload.
type ActuatorPayload struct {
	Red        int `json:"red"`
	Green      int `json:"green"`
	Blue       int `json:"blue"`
	Brightness int `json:"brightness"`
	DurationMs int `json:"duration_ms"`
}

// ParseLine decodes one JSONL line. It does not check the command name.
func ParseLine(line []byte) (Command, error) {
	var c Command
	dec := json.NewDecoder(bytes.NewReader(line))
	if err := dec.Decode(&c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if c.Command == "" {
		return Command{}, fmt.Errorf("%w: missing command", ErrMalformedCommand)
	}
	if c.DeviceID == "" {
		return Command{}, fmt.Errorf("%w: missing device_id", ErrMalformedCommand)
	}
	return c, nil
}

// Thresholds decodes and range-checks a set_watering_thresholds payload.
func (c Command) Thresholds() (protocol.WateringThresholds, error) {
	var p ThresholdsPayload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return protocol.WateringThresholds{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedCommand, c.Command, err)
	}
	if p.DryThreshold == nil || p.WetThreshold == nil {
		return protocol.WateringThresholds{}, fmt.Errorf("%w: %s needs dry_threshold and wet_threshold", ErrMalformedCommand, c.Command)
	}
	dry, err := u16("dry_threshold", *p.DryThreshold)
	if err != nil {
		return protocol.WateringThresholds{}, err
	}
	wet, err := u16("wet_threshold", *p.WetThreshold)
	if err != nil {
		return protocol.WateringThresholds{}, err
	}
	return protocol.WateringThresholds{Dry: dry, Wet: wet}, nil
}

// LED decodes and range-checks a control_actuator payload.
func (c Command) LED() (protocol.LED, error) {
	var p ActuatorPayload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return protocol.LED{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedCommand, c.Command, err)
	}
	fields := []struct {
		name string
		v    int
	}{
		{"red", p.Red}, {"green", p.Green}, {"blue", p.Blue}, {"brightness", p.Brightness},
	}
	for _, f := range fields {
		if f.v < 0 || f.v > math.MaxUint8 {
			return protocol.LED{}, fmt.Errorf("%w: %s=%d out of range 0-255", ErrMalformedCommand, f.name, f.v)
		}
	}
	ms, err := u16("duration_ms", p.DurationMs)
	if err != nil {
		return protocol.LED{}, err
	}
	return protocol.LED{
		Red:        uint8(p.Red),
		Green:      uint8(p.Green),
		Blue:       uint8(p.Blue),
		Brightness: uint8(p.Brightness),
		DurationMs: ms,
	}, nil
}

func u16(name string, v int) (uint16, error) {
	if v < 0 || v > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %s=%d out of range 0-65535", ErrMalformedCommand, name, v)
	}
	return uint16(v), nil
}

// NewThresholdsCommand builds a queue line for the producer side.
func NewThresholdsCommand(deviceID string, dry, wet int) (Command, error) {
	raw, err := json.Marshal(ThresholdsPayload{DryThreshold: &dry, WetThreshold: &wet})
	if err != nil {
		return Command{}, err
	}
	c := Command{Command: CommandSetWateringThresholds, DeviceID: deviceID, Payload: raw}
	if _, err := c.Thresholds(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// NewActuatorCommand builds a control_actuator queue line.
func NewActuatorCommand(deviceID string, p ActuatorPayload) (Command, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Command{}, err
	}
	c := Command{Command: CommandControlActuator, DeviceID: deviceID, Payload: raw}
	if _, err := c.LED(); err != nil {
		return Command{}, err
	}
	return c, nil
}
