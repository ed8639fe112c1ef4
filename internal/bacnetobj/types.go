package bacnetobj

import "github.com/arc-self/bacnet-eventgateway/internal/model"

// ObjectRef identifies a BACnet object the way maxzerker-bacnet's
// BACnetObject does (Type + Instance), kept as a distinct type from
// model.ObjectID so this package's public surface doesn't couple callers to
// the registry's internal key type.
type ObjectRef struct {
	Type     uint32
	Instance uint32
}

// RefFromModel converts a registry ObjectID to the wire-level ObjectRef.
func RefFromModel(id model.ObjectID) ObjectRef {
	return ObjectRef{Type: uint32(id.Type), Instance: id.Instance}
}

// StatusFlags mirrors maxzerker-bacnet's StatusFlags (in_alarm, fault,
// overridden, out_of_service) — the BIT STRING encoded by
// encodeApplicationBitStringStatusFlags.
type StatusFlags struct {
	InAlarm      bool
	Fault        bool
	Overridden   bool
	OutOfService bool
}

func statusFlagsFromModel(f model.StatusFlags) StatusFlags {
	return StatusFlags{InAlarm: f.InAlarm, Fault: f.Fault, Overridden: f.Overridden, OutOfService: f.OutOfService}
}

// Subscriber is the destination of a COV notification: the subscriber
// process id and the transport address to send to (host:port for
// BACnet/IP), matching the (subscriber_process_id, subscriber_address)
// half of spec.md's COV subscription identity.
type Subscriber struct {
	ProcessID uint32
	Address   string // "host:port"
	Confirmed bool
}

// ObjectAttributes is the subset of ObjectRecord the external object layer
// needs to materialize or refresh a server-side BACnet object.
type ObjectAttributes struct {
	Name         string
	Description  string
	UnitsCode    uint16
	StateTexts   []string
	InactiveText string
	ActiveText   string
}

// Server is the external BACnet object layer's interface as the gateway
// depends on it: object lifecycle (create/refresh/delete) and the COV
// notification send primitive. spec.md §1 places the wire codec and
// datalink themselves out of scope; this interface is the seam a real
// implementation (a full BACnet device stack) plugs into.
type Server interface {
	// UpsertObject creates the object if it does not already exist on the
	// device, or refreshes its attributes if it does.
	UpsertObject(ref ObjectRef, kind model.ValueKind, attrs ObjectAttributes) error
	// DeleteObject removes the object from the device's object list.
	DeleteObject(ref ObjectRef) error
	// NotifyCOV sends one COV notification to one subscriber, confirmed or
	// unconfirmed per sub.Confirmed, carrying present value and status
	// flags with the given timeRemaining (spec.md §4.5 notify).
	NotifyCOV(ref ObjectRef, sub Subscriber, value model.Value, flags model.StatusFlags, timeRemaining uint32) error
	// Start launches the device's BACnet task loop (§4.6 startup step 3).
	Start() error
	// Stop halts the task loop and releases the datalink (§4.6 shutdown
	// step 3).
	Stop() error
}
