package hikevents

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		state     string
		want      CameraStatus
	}{
		{"videoloss heartbeat", "videoloss", "inactive", StatusNoMotion},
		{"motion detection active", "VMD", "active", StatusMotion},
		{"videoloss active", "videoloss", "active", StatusMotion},
		{"motion detection inactive", "VMD", "inactive", StatusMotion},
		// Non-motion event types are reported as motion as well. A change of
		// this rule has to show up here.
		{"tamper detection", "shelteralarm", "active", StatusMotion},
		{"line crossing inactive", "linedetection", "inactive", StatusMotion},
		{"case sensitive", "VideoLoss", "inactive", StatusMotion},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, ev, err := Classify([]byte(alertXML(tc.eventType, tc.state)))
			require.NoError(t, err)
			assert.Equal(t, tc.want, status)
			assert.Equal(t, EventMessage{EventType: tc.eventType, EventState: tc.state}, ev)
		})
	}
}

func TestClassifyUsesFirstElements(t *testing.T) {
	doc := `<EventNotificationAlert>
<DetectionRegionList><DetectionRegionEntry><eventType>videoloss</eventType></DetectionRegionEntry></DetectionRegionList>
<eventType>VMD</eventType>
<eventState>inactive</eventState>
<eventState>active</eventState>
</EventNotificationAlert>`

	status, ev, err := Classify([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, EventMessage{EventType: "videoloss", EventState: "inactive"}, ev)
	assert.Equal(t, StatusNoMotion, status)
}

func TestClassifyParseErrors(t *testing.T) {
	tests := map[string]string{
		"unterminated tag":    "<EventNotificationAlert><eventType>VMD</eventType><eventState>active</EventNotificationAlert>",
		"truncated document":  alertXML("VMD", "active")[:120],
		"missing eventState":  "<EventNotificationAlert><eventType>VMD</eventType></EventNotificationAlert>",
		"missing eventType":   "<EventNotificationAlert><eventState>active</eventState></EventNotificationAlert>",
		"not xml":             "<EventNotification garbage & more </EventNotificationAlert>",
		"mismatched end tags": "<EventNotificationAlert><eventType>VMD</eventState></EventNotificationAlert>",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			status, ev, err := Classify([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse), "got %v", err)
			assert.Equal(t, StatusUnknown, status)
			assert.Equal(t, EventMessage{}, ev)
		})
	}
}

func TestParseEventMessageKeepsInnerMarkup(t *testing.T) {
	ev, err := ParseEventMessage([]byte("<EventNotificationAlert><eventType>VMD<b/></eventType><eventState>active</eventState></EventNotificationAlert>"))
	require.NoError(t, err)
	assert.Equal(t, "VMD<b/>", ev.EventType)
	assert.Equal(t, StatusMotion, ev.Status())
}
