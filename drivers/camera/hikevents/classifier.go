package hikevents

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/pkg/errors"
)

const (
	eventTypeVideoloss = "videoloss"
	eventStateInactive = "inactive"
)

// EventMessage is the part of an EventNotificationAlert the client cares about.
type EventMessage struct {
	EventType  string
	EventState string
}

type innerXML struct {
	Value string `xml:",innerxml"`
}

// ParseEventMessage reads the first eventType and eventState elements found
// anywhere in doc. The whole document has to be well formed.
func ParseEventMessage(doc []byte) (EventMessage, error) {
	var (
		ev                  EventMessage
		haveType, haveState bool
	)
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return EventMessage{}, withKind(ErrParse, err, "malformed event xml")
		}
		se, isStart := tok.(xml.StartElement)
		if !isStart {
			continue
		}
		switch {
		case se.Name.Local == "eventType" && !haveType:
			var v innerXML
			if err := dec.DecodeElement(&v, &se); err != nil {
				return EventMessage{}, withKind(ErrParse, err, "malformed eventType")
			}
			ev.EventType, haveType = v.Value, true
		case se.Name.Local == "eventState" && !haveState:
			var v innerXML
			if err := dec.DecodeElement(&v, &se); err != nil {
				return EventMessage{}, withKind(ErrParse, err, "malformed eventState")
			}
			ev.EventState, haveState = v.Value, true
		}
	}
	if !haveType || !haveState {
		return EventMessage{}, withKind(ErrParse, errors.Errorf("eventType present=%t eventState present=%t", haveType, haveState), "missing event element")
	}
	return ev, nil
}

// Status maps the event to a camera status. Anything other than an explicit
// videoloss/inactive heartbeat counts as motion, including unrelated event
// types such as tamper or network alarms.
func (ev EventMessage) Status() CameraStatus {
	if ev.EventType != eventTypeVideoloss || ev.EventState != eventStateInactive {
		return StatusMotion
	}
	return StatusNoMotion
}

// Classify parses doc and returns its status. On failure the status is
// StatusUnknown and the error wraps ErrParse.
func Classify(doc []byte) (CameraStatus, EventMessage, error) {
	ev, err := ParseEventMessage(doc)
	if err != nil {
		return StatusUnknown, EventMessage{}, err
	}
	return ev.Status(), ev, nil
}
