package statuspage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ComponentStatus is the status-page enum for a component.
type ComponentStatus int

// Component states.
const (
	StatusOperational       ComponentStatus = 1
	StatusPerformanceIssues ComponentStatus = 2
	StatusPartialOutage     ComponentStatus = 3
	StatusMajorOutage       ComponentStatus = 4
)

func (s ComponentStatus) String() string {
	switch s {
	case StatusOperational:
		return "operational"
	case StatusPerformanceIssues:
		return "performance-issues"
	case StatusPartialOutage:
		return "partial-outage"
	case StatusMajorOutage:
		return "major-outage"
	default:
		return fmt.Sprintf("status-%d", int(s))
	}
}

// StatusFor maps the binary site state onto the component enum.
func StatusFor(online bool) ComponentStatus {
	if online {
		return StatusOperational
	}
	return StatusMajorOutage
}

// IncidentStatus is the status-page enum for an incident.
type IncidentStatus int

// Incident states.
const (
	IncidentInvestigating IncidentStatus = 1
	IncidentIdentified    IncidentStatus = 2
	IncidentWatching      IncidentStatus = 3
	IncidentFixed         IncidentStatus = 4
)

func (s IncidentStatus) String() string {
	switch s {
	case IncidentInvestigating:
		return "investigating"
	case IncidentIdentified:
		return "identified"
	case IncidentWatching:
		return "watching"
	case IncidentFixed:
		return "fixed"
	default:
		return fmt.Sprintf("incident-%d", int(s))
	}
}

// Component is a monitored entry on the status page.
type Component struct {
	ID     int64
	Name   string
	Status ComponentStatus
}

// Incident is an outage notice attached to a component.
type Incident struct {
	ID          int64
	Name        string
	Message     string
	Status      IncidentStatus
	ComponentID int64
}

// NewIncident is the payload for CreateIncident.
type NewIncident struct {
	Name          string         `json:"name"`
	Message       string         `json:"message"`
	Status        IncidentStatus `json:"status"`
	ComponentID   int64          `json:"component_id,omitempty"`
	Visible       int            `json:"visible"`
	Stickied      bool           `json:"stickied"`
	Notifications bool           `json:"notifications"`
}

// flexInt decodes a number, a numeric string, or an object carrying "value".
// Status pages disagree on how ids and enums are encoded.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = 0
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode quoted integer: %w", err)
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("decode quoted integer %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	case b[0] == '{':
		var wrapped struct {
			Value flexInt `json:"value"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return fmt.Errorf("decode wrapped integer: %w", err)
		}
		*f = wrapped.Value
		return nil
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("decode integer %s: %w", b, err)
		}
		*f = flexInt(math.Round(n))
		return nil
	}
}

type rawFields struct {
	Name        string  `json:"name"`
	Message     string  `json:"message"`
	Status      flexInt `json:"status"`
	ComponentID flexInt `json:"component_id"`
}

// rawItem accepts both the flat shape ({"id":1,"name":..}) and the JSON:API
// shape ({"id":"1","attributes":{"name":..}}).
type rawItem struct {
	ID flexInt `json:"id"`
	rawFields
	Attributes *rawFields `json:"attributes"`
}

func (r rawItem) fields() rawFields {
	if r.Attributes != nil {
		return *r.Attributes
	}
	return r.rawFields
}

func (r rawItem) component() Component {
	f := r.fields()
	return Component{ID: int64(r.ID), Name: f.Name, Status: ComponentStatus(f.Status)}
}

func (r rawItem) incident() Incident {
	f := r.fields()
	return Incident{
		ID:          int64(r.ID),
		Name:        f.Name,
		Message:     f.Message,
		Status:      IncidentStatus(f.Status),
		ComponentID: int64(f.ComponentID),
	}
}
