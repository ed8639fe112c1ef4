package model

import "time"

// StatusFlags is the BACnet Status_Flags tuple: in_alarm, fault, overridden,
// out_of_service. Mirrors maxzerker-bacnet's StatusFlags so the bacnetobj
// adapter can pass it through without conversion.
type StatusFlags struct {
	InAlarm      bool
	Fault        bool
	Overridden   bool
	OutOfService bool
}

// Equal reports whether two StatusFlags carry the same four booleans.
func (f StatusFlags) Equal(other StatusFlags) bool {
	return f == other
}

// ObjectRecord is the registry's authoritative, in-memory representation of
// one BACnet object, per spec.md §3 "Object record".
type ObjectRecord struct {
	ID   ObjectID
	Name string // UTF-8, <=255 bytes
	Description string // UTF-8, <=511 bytes

	ValueKind    ValueKind
	PresentValue Value

	UnitsCode uint16
	UnitsText string

	CovIncrement *float64 // nil means "not configured"; 0 means "any change"
	MinValue     *float64
	MaxValue     *float64

	// Multi-state.
	StateTexts []string // up to 16
	StateCount int

	// Binary.
	InactiveText string
	ActiveText   string

	StatusFlags StatusFlags
	Reliability uint8
	EventState  uint8

	SourceID       string
	LastUpdate     time.Time
	StreamPosition uint64

	// LastNotifiedValue is the value at which the most recent COV
	// notification fired. Initialized to PresentValue at creation and
	// updated atomically with PresentValue on every notifying write.
	LastNotifiedValue Value
}

// Clone returns a deep copy safe to hand outside the registry's lock.
func (r *ObjectRecord) Clone() *ObjectRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.CovIncrement != nil {
		v := *r.CovIncrement
		c.CovIncrement = &v
	}
	if r.MinValue != nil {
		v := *r.MinValue
		c.MinValue = &v
	}
	if r.MaxValue != nil {
		v := *r.MaxValue
		c.MaxValue = &v
	}
	if r.StateTexts != nil {
		c.StateTexts = append([]string(nil), r.StateTexts...)
	}
	return &c
}

// DeviceConfig is the single device-level record, §4.2 DeviceConfig message.
type DeviceConfig struct {
	DeviceInstance            uint32
	DeviceName                string
	DeviceDescription         string
	VendorID                  uint16
	VendorName                string
	ModelName                 string
	ApplicationSoftwareVersion string
	Location                  string
}

// COVSubscriptionIdentity is the unique key for a COV subscription, per
// spec.md §3 "COV subscription record" and the GLOSSARY's "Subscription
// identity (COV)".
type COVSubscriptionIdentity struct {
	SubscriberProcessID uint32
	SubscriberAddress   string
	ObjectID            ObjectID
}

// COVSubscription is one subscriber's lease on COV notifications for an
// object.
type COVSubscription struct {
	Identity               COVSubscriptionIdentity
	Confirmed               bool
	LifetimeSecondsRemaining uint32 // 0 == indefinite, see DESIGN.md
	InitialLifetimeSeconds   uint32
	CovIncrementOverride     *float64
	CreatedAt                time.Time
	LastNotifiedAt           time.Time
}
