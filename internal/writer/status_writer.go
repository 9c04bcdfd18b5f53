// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rx178nwj/plant-dashboard/internal/status"
)

// endpointClient is the exact contract the status mirror uses.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// StatusPlan places one device's block in the mirror.
type StatusPlan struct {
	UnitID      uint8
	BaseAddress uint16 // address of slot 0 of device index 0
	Index       uint16 // device position; the block starts at BaseAddress + Index*SlotsPerDevice
	DeviceName  string
}

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// deviceStatusWriter writes one device's block.
type deviceStatusWriter struct {
	plan StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
	nameRegs []uint16
}

func newDeviceStatusWriter(plan StatusPlan, cli endpointClient) *deviceStatusWriter {
	return &deviceStatusWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first write
		nameRegs: status.EncodeDeviceName(plan.DeviceName),
	}
}

// liveSlots are the slots rewritten incrementally, in write order.
var liveSlots = []struct {
	slot int
	name string
	get  func(status.Snapshot) uint16
}{
	{status.SlotHealthCode, "health", func(s status.Snapshot) uint16 { return s.Health }},
	{status.SlotLastErrorCode, "last_error", func(s status.Snapshot) uint16 { return s.LastErrorCode }},
	{status.SlotSecondsInError, "seconds_in_error", func(s status.Snapshot) uint16 { return s.SecondsInError }},
	{status.SlotPayloadVersion, "payload_version", func(s status.Snapshot) uint16 { return s.PayloadVersion }},
	{status.SlotConsecutiveFailures, "failures", func(s status.Snapshot) uint16 { return s.ConsecutiveFailures }},
	{status.SlotLinkRate, "link_rate", func(s status.Snapshot) uint16 { return s.LinkRate }},
}

// WriteStatus delivers a snapshot. The first call, and the first call after any
// failure, writes the whole block including the name; later calls write only
// the slots that changed.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw.cli == nil {
		return errors.New("status writer: no endpoint client")
	}

	base := sw.baseAddr()

	if sw.needFull {
		regs := status.Encode(s, "")
		copy(regs[status.SlotDeviceNameStart:], sw.nameRegs)

		if err := sw.cli.WriteRegisters(sw.plan.UnitID, base, regs); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	var errs []string
	for _, ls := range liveSlots {
		want := ls.get(s)
		if ls.get(sw.last) == want {
			continue
		}
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, base+uint16(ls.slot), []uint16{want}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", ls.slot, ls.name, err))
		}
	}

	if len(errs) > 0 {
		// any partial failure re-asserts the block on the next call
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}
	sw.last = s
	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	return sw.plan.BaseAddress + sw.plan.Index*status.SlotsPerDevice
}

// StatusMirror maps device ids onto consecutive status blocks of one endpoint.
type StatusMirror struct {
	mu sync.Mutex

	cli         endpointClient
	unitID      uint8
	baseAddress uint16
	maxDevices  int

	fixed   map[string]uint16 // configured placements
	writers map[string]*deviceStatusWriter
	used    map[uint16]bool
}

// MirrorConfig configures a StatusMirror.
type MirrorConfig struct {
	UnitID      uint8
	BaseAddress uint16
	MaxDevices  int
	Slots       map[string]uint16 // optional fixed device id -> index
}

// NewStatusMirror creates a mirror writing through cli.
func NewStatusMirror(cfg MirrorConfig, cli endpointClient) (*StatusMirror, error) {
	if cli == nil {
		return nil, errors.New("status mirror: endpoint client required")
	}
	if cfg.MaxDevices <= 0 {
		return nil, errors.New("status mirror: max devices must be > 0")
	}
	for id, idx := range cfg.Slots {
		if int(idx) >= cfg.MaxDevices {
			return nil, fmt.Errorf("status mirror: device %s index %d >= max devices %d", id, idx, cfg.MaxDevices)
		}
	}
	fixed := make(map[string]uint16, len(cfg.Slots))
	for id, idx := range cfg.Slots {
		fixed[id] = idx
	}
	return &StatusMirror{
		cli:         cli,
		unitID:      cfg.UnitID,
		baseAddress: cfg.BaseAddress,
		maxDevices:  cfg.MaxDevices,
		fixed:       fixed,
		writers:     map[string]*deviceStatusWriter{},
		used:        map[uint16]bool{},
	}, nil
}

// Write mirrors one device's snapshot, placing the device on first sight.
func (m *StatusMirror) Write(deviceID, deviceName string, s status.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sw, ok := m.writers[deviceID]
	if !ok {
		idx, err := m.place(deviceID)
		if err != nil {
			return err
		}
		sw = newDeviceStatusWriter(StatusPlan{
			UnitID:      m.unitID,
			BaseAddress: m.baseAddress,
			Index:       idx,
			DeviceName:  deviceName,
		}, m.cli)
		m.writers[deviceID] = sw
		m.used[idx] = true
	}
	return sw.WriteStatus(s)
}

// Index reports where a device was placed.
func (m *StatusMirror) Index(deviceID string) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sw, ok := m.writers[deviceID]
	if !ok {
		return 0, false
	}
	return sw.plan.Index, true
}

func (m *StatusMirror) place(deviceID string) (uint16, error) {
	if idx, ok := m.fixed[deviceID]; ok {
		return idx, nil
	}
	reserved := make(map[uint16]bool, len(m.fixed))
	for _, idx := range m.fixed {
		reserved[idx] = true
	}
	for i := 0; i < m.maxDevices; i++ {
		idx := uint16(i)
		if !m.used[idx] && !reserved[idx] {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("status mirror: no free block for %s (max %d)", deviceID, m.maxDevices)
}

// Devices lists mirrored device ids in index order.
func (m *StatusMirror) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.writers))
	for id := range m.writers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.writers[ids[i]].plan.Index < m.writers[ids[j]].plan.Index
	})
	return ids
}
