package bacnetobj

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// UDPServer is a BACnet/IP object server that tracks a local object table
// and sends COV notifications over UDP, built from the same BVLC/NPDU/APDU
// framing maxzerker-bacnet uses for its client requests (subscribe.go,
// request.go), adapted to the server side: instead of issuing
// SubscribeCOV and parsing Simple-ACKs, it constructs and sends
// (Un)Confirmed-COV-Notification frames.
//
// It does not implement segmentation, Who-Is/I-Am responding, or any read
// service — those remain out of scope per spec.md §1; UpsertObject and
// DeleteObject only maintain the local object table used to decide which
// instances exist, a prerequisite for NotifyCOV to be meaningful.
type UDPServer struct {
	deviceInstance uint32
	port           int

	mu      sync.RWMutex
	objects map[ObjectRef]ObjectAttributes

	conn      *net.UDPConn
	invokeIDs *invokeIDManager
	log       *zap.Logger
}

// NewUDPServer constructs a UDPServer bound to the configured legacy
// BACnet/IP port (spec.md §6 *legacy-transport*.port, default 47808).
func NewUDPServer(deviceInstance uint32, port int, log *zap.Logger) *UDPServer {
	return &UDPServer{
		deviceInstance: deviceInstance,
		port:           port,
		objects:        make(map[ObjectRef]ObjectAttributes),
		invokeIDs:      newInvokeIDManager(),
		log:            log,
	}
}

func (s *UDPServer) Start() error {
	addr := &net.UDPAddr{Port: s.port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("bacnetobj: listen udp :%d: %w", s.port, err)
	}
	s.conn = conn
	s.log.Info("BACnet/IP object server listening", zap.Int("port", s.port), zap.Uint32("deviceInstance", s.deviceInstance))
	return nil
}

func (s *UDPServer) Stop() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *UDPServer) UpsertObject(ref ObjectRef, kind model.ValueKind, attrs ObjectAttributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = attrs
	return nil
}

func (s *UDPServer) DeleteObject(ref ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	return nil
}

// NotifyCOV builds an (Un)Confirmed-COV-Notification APDU carrying
// Present_Value and Status_Flags and sends it to the subscriber address.
// The frame shape mirrors maxzerker-bacnet's COVNotification struct
// (SubscriberProcessIdentifier, InitiatingDeviceIdentifier,
// MonitoredObjectIdentifier, TimeRemaining, ListOfValues) encoded with the
// same application tags its decoder.go knows how to read back.
func (s *UDPServer) NotifyCOV(ref ObjectRef, sub Subscriber, value model.Value, flags model.StatusFlags, timeRemaining uint32) error {
	if s.conn == nil {
		return fmt.Errorf("bacnetobj: server not started")
	}
	addr, err := net.ResolveUDPAddr("udp4", sub.Address)
	if err != nil {
		return fmt.Errorf("bacnetobj: resolve subscriber address %q: %w", sub.Address, err)
	}

	apdu, err := s.buildCOVNotificationAPDU(ref, sub, value, flags, timeRemaining)
	if err != nil {
		return err
	}

	return frameUDP(s.conn, addr, apdu, sub.Confirmed)
}

func (s *UDPServer) buildCOVNotificationAPDU(ref ObjectRef, sub Subscriber, value model.Value, flags model.StatusFlags, timeRemaining uint32) ([]byte, error) {
	var apdu []byte

	if sub.Confirmed {
		apdu = append(apdu, apduConfirmedRequest|0x02, 0x75, s.invokeIDs.next(), serviceConfirmedCOVNotification)
	} else {
		apdu = append(apdu, apduUnconfirmedRequest, serviceUnconfirmedCOVNotification)
	}

	// Subscriber Process Identifier (tag 0)
	apdu = append(apdu, 0x09, byte(sub.ProcessID))
	// Initiating Device Identifier (tag 1) — this device.
	apdu = encodeContextObjectIdentifier(apdu, 1, uint32(8) /* OBJECT_DEVICE */, s.deviceInstance)
	// Monitored Object Identifier (tag 2)
	apdu = encodeContextObjectIdentifier(apdu, 2, ref.Type, ref.Instance)
	// Time Remaining (tag 3)
	apdu = append(apdu, 0x3B, byte(timeRemaining>>8), byte(timeRemaining))

	// List of Values (tag 4, opening/closing tags wrap Present_Value and
	// Status_Flags property/value pairs).
	apdu = append(apdu, 0x4E) // opening tag 4
	apdu = appendPropertyValue(apdu, 85 /* PROP_PRESENT_VALUE */, value)
	apdu = appendStatusFlagsProperty(apdu, flags)
	apdu = append(apdu, 0x4F) // closing tag 4

	return apdu, nil
}

func encodeContextObjectIdentifier(buf []byte, tagNum byte, objType uint32, instance uint32) []byte {
	buf = append(buf, (tagNum<<4)|0x08|4) // context class, length 4
	oid := encodeObjectIdentifier(objType, instance)
	return append(buf, byte(oid>>24), byte(oid>>16), byte(oid>>8), byte(oid))
}

func appendPropertyValue(buf []byte, propertyID byte, v model.Value) []byte {
	// Property Identifier (context tag 0, length 1)
	buf = append(buf, 0x09, propertyID)
	// Property Value (context tag 2, opening/closing) wrapping one
	// application-tagged value.
	buf = append(buf, 0x2E) // opening tag 2
	switch v.Kind {
	case model.ValueReal:
		buf = encodeApplicationReal(buf, v.Real)
	case model.ValueUnsigned:
		buf = encodeApplicationUnsigned(buf, v.Unsigned)
	case model.ValueSigned:
		buf = encodeApplicationUnsigned(buf, uint32(v.Signed))
	case model.ValueBoolean:
		buf = encodeApplicationBoolean(buf, v.Boolean)
	case model.ValueEnumerated:
		buf = encodeApplicationEnumerated(buf, v.Enum)
	}
	buf = append(buf, 0x2F) // closing tag 2
	return buf
}

func appendStatusFlagsProperty(buf []byte, flags model.StatusFlags) []byte {
	buf = append(buf, 0x09, 111) // PROP_STATUS_FLAGS
	buf = append(buf, 0x2E)
	buf = encodeApplicationBitStringStatusFlags(buf, statusFlagsFromModel(flags))
	buf = append(buf, 0x2F)
	return buf
}

var _ Server = (*UDPServer)(nil)
