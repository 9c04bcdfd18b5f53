// internal/status/constants.go
package status

// Device status block layout.
// The block is read by HMI/PLC clients; these values are not configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of holding registers per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds CodeOf(last poll error).
const SlotLastErrorCode = 1

// SlotSecondsInError holds how long the device has been failing, saturating at 65535.
const SlotSecondsInError = 2

// SlotPayloadVersion holds the layout of the last good reading (1..3), 0 for broadcast devices.
const SlotPayloadVersion = 3

// SlotConsecutiveFailures counts failed polls since the last success, saturating.
const SlotConsecutiveFailures = 4

// SlotLinkRate holds the radio health window success rate in percent.
const SlotLinkRate = 5

// ---- RESERVED RANGE ----

// Slots 6-10 are reserved.
const SlotReservedStart = 6
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// The name always sits at the end of the block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for the device name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown is the state before the first poll.
const HealthUnknown uint16 = 0

// HealthOK means the last poll produced a reading.
const HealthOK uint16 = 1

// HealthError means the last poll failed.
const HealthError uint16 = 2

// HealthStale means no poll completed within two poll intervals.
const HealthStale uint16 = 3

// HealthRadioRestart is set on every device while the radio stack is restarting.
const HealthRadioRestart uint16 = 4
