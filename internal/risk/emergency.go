package risk

import "sync/atomic"

// EmergencyStop is the global halt flag. It is checked at admission entry
// and again before any signal transitions into execution; in-flight venue
// calls are left to reach their natural terminal state.
//
// A single instance is created in main and passed explicitly to every
// component that needs it.
type EmergencyStop struct {
	engaged atomic.Bool
	reason  atomic.Value // string
}

// NewEmergencyStop returns a cleared stop flag
func NewEmergencyStop() *EmergencyStop {
	s := &EmergencyStop{}
	s.reason.Store("")
	return s
}

// Engage sets the flag; new signals are rejected until Clear is called
func (s *EmergencyStop) Engage(reason string) {
	s.reason.Store(reason)
	s.engaged.Store(true)
}

// Clear resets the flag
func (s *EmergencyStop) Clear() {
	s.engaged.Store(false)
	s.reason.Store("")
}

// Engaged reports whether the stop is active
func (s *EmergencyStop) Engaged() bool {
	return s.engaged.Load()
}

// Reason returns the reason recorded when the stop was engaged
func (s *EmergencyStop) Reason() string {
	if v, ok := s.reason.Load().(string); ok {
		return v
	}
	return ""
}
