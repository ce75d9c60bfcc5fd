// internal/status/constants.go
package status

// Station status block layout constants.
// These values define the register map and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerBlock is the fixed size of the status block.
// Temperature registers follow it, one per sensor index.
const SlotsPerBlock = 16

// ---- SLOT INDICES ----

// SlotHealthCode holds the station health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last failure reason code.
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the station has been unhealthy.
const SlotSecondsInError = 2

// SlotSensorCount holds the number of registered sensors.
const SlotSensorCount = 3

// SlotResolution holds the resolution of the last completed cycle.
const SlotResolution = 4

// SlotFailedSamples holds the failed sample count of the last cycle.
const SlotFailedSamples = 5

// SlotCycles counts completed cycles, wrapping at 65535.
const SlotCycles = 6

// LiveSlots is the number of leading slots written incrementally.
const LiveSlots = SlotCycles + 1

// Slot 7 is reserved.
const SlotReserved = 7

// ---- STATION NAME ----

// SlotNameStart is the first slot used for the station name.
// The name always sits at the END of the status block.
const SlotNameStart = 8

// SlotNameSlots is the number of slots reserved for the name.
const SlotNameSlots = 8

// NameMaxChars is the maximum number of ASCII characters stored for the name.
const NameMaxChars = 16

// ---- TEMPERATURE REGISTERS ----

// NoReading marks a sensor slot without a valid sample (int16 minimum).
const NoReading uint16 = 0x8000

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state before the first cycle.
const HealthUnknown uint16 = 0

// HealthOK means every sensor produced a sample in the last cycle.
const HealthOK uint16 = 1

// HealthError means no sensor produced a sample in the last cycle.
const HealthError uint16 = 2

// HealthPartial means some, but not all, sensors failed.
const HealthPartial uint16 = 3

// HealthNoSensors means the registry is empty.
const HealthNoSensors uint16 = 4

// ---- ERROR CODES ----

const (
	CodeNone       uint16 = 0
	CodeGeneric    uint16 = 1
	CodeCRC        uint16 = 2
	CodeNoResponse uint16 = 3
	CodePowerOn    uint16 = 4
	CodeBus        uint16 = 5
	CodeNoSensors  uint16 = 6
)
