package handshake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"editdesk/api/internal/rbac"
)

const (
	TypeWidgetReady   = Namespace + "-widget-ready"
	TypeConfigUpdate  = Namespace + "-config-update"
	TypeRoleSelected  = Namespace + "-role-selected"
	TypePassportReady = Namespace + "-passport-ready"

	StatusInitialized = "initialized"
)

// ErrIgnored is returned by Decode for payloads outside the namespace.
var ErrIgnored = errors.New("message ignored")

// Message is one of WidgetReady, ConfigUpdate, RoleSelected, PassportReady or
// Unknown.
type Message interface {
	Type() string
	isMessage()
}

type WidgetReady struct {
	Widget    rbac.Role
	ProjectID string
	Timestamp time.Time
	Status    string
}

type ConfigUpdate struct {
	ProjectID string
	Role      rbac.Role
	Data      json.RawMessage
}

type RoleSelected struct {
	Role      rbac.Role
	ProjectID string
}

type PassportReady struct {
	ProjectID string
	Data      json.RawMessage
}

// Unknown is a namespaced message this package does not interpret. Raw holds
// the payload exactly as received.
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (WidgetReady) Type() string   { return TypeWidgetReady }
func (ConfigUpdate) Type() string  { return TypeConfigUpdate }
func (RoleSelected) Type() string  { return TypeRoleSelected }
func (PassportReady) Type() string { return TypePassportReady }
func (u Unknown) Type() string     { return u.Kind }

func (WidgetReady) isMessage()   {}
func (ConfigUpdate) isMessage()  {}
func (RoleSelected) isMessage()  {}
func (PassportReady) isMessage() {}
func (Unknown) isMessage()       {}

// NewWidgetReady builds the readiness announcement for ctx.
func NewWidgetReady(ctx Context, now time.Time) WidgetReady {
	return WidgetReady{
		Widget:    ctx.Role,
		ProjectID: ctx.ProjectID,
		Timestamp: now.UTC(),
		Status:    StatusInitialized,
	}
}

type envelope struct {
	Type      string          `json:"type"`
	Widget    string          `json:"widget,omitempty"`
	Role      string          `json:"role,omitempty"`
	ProjectID string          `json:"projectId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type readyData struct {
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type roleData struct {
	Role string `json:"role"`
}

const envelopeSchema = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"type": "string", "pattern": "^` + Namespace + `-"}
	}
}`

var loadEnvelopeSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
})

// Decode parses a raw cross-window payload. Anything that is not a JSON object
// with a namespaced string type yields ErrIgnored.
func Decode(payload []byte) (Message, error) {
	schema, err := loadEnvelopeSchema()
	if err != nil {
		return nil, fmt.Errorf("load envelope schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil || !result.Valid() {
		return nil, ErrIgnored
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, ErrIgnored
	}

	switch env.Type {
	case TypeWidgetReady:
		msg := WidgetReady{
			Widget:    rbac.Normalize(env.Widget),
			ProjectID: env.ProjectID,
		}
		var data readyData
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
			msg.Status = data.Status
			if ts, err := time.Parse(time.RFC3339Nano, data.Timestamp); err == nil {
				msg.Timestamp = ts
			}
		}
		return msg, nil
	case TypeConfigUpdate:
		msg := ConfigUpdate{
			ProjectID: strings.TrimSpace(env.ProjectID),
			Role:      rbac.Normalize(env.Role),
			Data:      env.Data,
		}
		var data roleData
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil && data.Role != "" {
			msg.Role = rbac.Normalize(data.Role)
		}
		return msg, nil
	case TypeRoleSelected:
		return RoleSelected{Role: rbac.Normalize(env.Role), ProjectID: env.ProjectID}, nil
	case TypePassportReady:
		return PassportReady{ProjectID: env.ProjectID, Data: env.Data}, nil
	default:
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		return Unknown{Kind: env.Type, Raw: raw}, nil
	}
}

// Encode renders msg in its wire format.
func Encode(msg Message) ([]byte, error) {
	env := envelope{Type: msg.Type()}
	switch m := msg.(type) {
	case WidgetReady:
		env.Widget = string(m.Widget)
		env.ProjectID = m.ProjectID
		data, err := json.Marshal(readyData{
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
			Status:    m.Status,
		})
		if err != nil {
			return nil, fmt.Errorf("encode ready data: %w", err)
		}
		env.Data = data
	case ConfigUpdate:
		env.ProjectID = m.ProjectID
		env.Data = m.Data
		if len(env.Data) == 0 && m.Role != "" {
			data, err := json.Marshal(roleData{Role: string(m.Role)})
			if err != nil {
				return nil, fmt.Errorf("encode config data: %w", err)
			}
			env.Data = data
		}
	case RoleSelected:
		env.Role = string(m.Role)
		env.ProjectID = m.ProjectID
	case PassportReady:
		env.ProjectID = m.ProjectID
		env.Data = m.Data
	case Unknown:
		if !strings.HasPrefix(m.Kind, Namespace+"-") {
			return nil, fmt.Errorf("encode message: type %q is outside the %s namespace", m.Kind, Namespace)
		}
		if len(m.Raw) > 0 {
			return m.Raw, nil
		}
	default:
		return nil, fmt.Errorf("encode message: unsupported type %T", msg)
	}
	return json.Marshal(env)
}
