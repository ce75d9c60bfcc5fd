// internal/status/snapshot.go
package status

// Snapshot represents exactly what the mirror is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
	SensorCount    uint16
	Resolution     uint16
	FailedSamples  uint16
	Cycles         uint16
}
