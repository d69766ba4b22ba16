package surface

import "encoding/json"

// Kind enumerates the component types the clients know how to render.
// Events may carry types outside this set; those render as a fallback.
type Kind string

const (
	KindTherapistCard   Kind = "TherapistCard"
	KindCalendarPicker  Kind = "CalendarPicker"
	KindTimeSlotButton  Kind = "TimeSlotButton"
	KindAppointmentCard Kind = "AppointmentCard"
	KindSessionCard     Kind = "SessionCard"
	KindRiskAlert       Kind = "RiskAlert"
	KindPatternCard     Kind = "PatternCard"
	KindLineChart       Kind = "LineChart"
	KindBarChart        Kind = "BarChart"
	KindText            Kind = "Text"
	KindButton          Kind = "Button"

	// KindUnknown is the fallback for server-added types this build does
	// not recognize.
	KindUnknown Kind = "Unknown"
)

var knownKinds = map[Kind]struct{}{
	KindTherapistCard:   {},
	KindCalendarPicker:  {},
	KindTimeSlotButton:  {},
	KindAppointmentCard: {},
	KindSessionCard:     {},
	KindRiskAlert:       {},
	KindPatternCard:     {},
	KindLineChart:       {},
	KindBarChart:        {},
	KindText:            {},
	KindButton:          {},
}

// Kind returns the catalog kind for the component, or KindUnknown for
// forward-compatible types added server-side.
func (c Component) Kind() Kind {
	k := Kind(c.Type)
	if _, ok := knownKinds[k]; ok {
		return k
	}
	return KindUnknown
}

// TherapistCardProps is the typed shape of a TherapistCard's props.
type TherapistCardProps struct {
	TherapistID string   `json:"therapistId"`
	FullName    string   `json:"fullName"`
	Specialty   string   `json:"specialty,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	AvatarURL   string   `json:"avatarUrl,omitempty"`
	Languages   []string `json:"languages,omitempty"`
}

// TimeSlotButtonProps is the typed shape of a TimeSlotButton's props.
type TimeSlotButtonProps struct {
	TherapistID string `json:"therapistId"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	EndTime     string `json:"endTime,omitempty"`
	Available   bool   `json:"available"`
}

// AppointmentCardProps is the typed shape of an AppointmentCard's props.
type AppointmentCardProps struct {
	AppointmentID string `json:"appointmentId"`
	TherapistName string `json:"therapistName"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	MeetingURL    string `json:"meetingUrl,omitempty"`
	Status        string `json:"status,omitempty"`
}

// RiskAlertProps is the typed shape of a RiskAlert's props.
type RiskAlertProps struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
}

// DecodeProps unmarshals a component's open props bag into a typed struct
// from the catalog. Unknown fields are ignored, so newer server payloads
// still decode.
func DecodeProps(c Component, out any) error {
	raw, err := json.Marshal(c.Props)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
