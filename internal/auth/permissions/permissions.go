// Package permissions holds the per-user capability matrix and answers
// capability questions against it.
//
// A matrix is stored either as structured JSON or as a JSON string holding a
// serialized object. Both shapes are represented by Raw and decoded once into
// Matrix. Anything that cannot be decoded grants nothing.
package permissions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Module names a permission area.
type Module string

const (
	ModuleProperties Module = "properties"
	ModuleLeads      Module = "leads"
	ModuleUsers      Module = "users"
	ModuleAnalytics  Module = "analytics"
	ModuleProfile    Module = "profile"
)

// Action names an operation within a nested module.
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// Modules lists every known module name.
func Modules() []string {
	return []string{string(ModuleProperties), string(ModuleLeads), string(ModuleUsers), string(ModuleAnalytics), string(ModuleProfile)}
}

// Actions lists every known action name.
func Actions() []string {
	return []string{string(ActionView), string(ActionEdit), string(ActionCreate), string(ActionDelete)}
}

// IsFlag reports whether the module is a standalone boolean that ignores actions.
func (m Module) IsFlag() bool {
	return m == ModuleAnalytics || m == ModuleProfile
}

// ActionSet is the set of flags for one nested module.
type ActionSet struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Create bool `json:"create"`
	Delete bool `json:"delete"`
}

func (a ActionSet) allows(action Action) bool {
	switch action {
	case ActionView:
		return a.View
	case ActionEdit:
		return a.Edit
	case ActionCreate:
		return a.Create
	case ActionDelete:
		return a.Delete
	default:
		return false
	}
}

// Matrix is the canonical capability matrix. The zero value grants nothing.
type Matrix struct {
	Properties ActionSet `json:"properties"`
	Leads      ActionSet `json:"leads"`
	Users      ActionSet `json:"users"`
	Analytics  bool      `json:"analytics"`
	Profile    bool      `json:"profile"`
}

// CanPerform reports whether the matrix grants action on module.
// For analytics and profile the action is ignored.
func (m Matrix) CanPerform(module Module, action Action) bool {
	switch module {
	case ModuleAnalytics:
		return m.Analytics
	case ModuleProfile:
		return m.Profile
	case ModuleProperties:
		return m.Properties.allows(action)
	case ModuleLeads:
		return m.Leads.allows(action)
	case ModuleUsers:
		return m.Users.allows(action)
	default:
		return false
	}
}

// CanPerform is the string-keyed form of Matrix.CanPerform used at request boundaries.
func CanPerform(m Matrix, module, action string) bool {
	return m.CanPerform(Module(module), Action(action))
}

// Raw is a stored matrix before decoding: either structured JSON or serialized text.
type Raw struct {
	text       string
	structured json.RawMessage
	isText     bool
}

// FromText wraps a serialized matrix.
func FromText(s string) Raw {
	return Raw{text: s, isText: true}
}

// FromStructured wraps an already-structured JSON object.
func FromStructured(b []byte) Raw {
	return Raw{structured: json.RawMessage(b)}
}

// FromColumn interprets a JSONB column value. A JSON string holds a serialized
// matrix; any other JSON value is taken as structured data.
func FromColumn(b []byte) Raw {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return FromText(s)
		}
	}
	return FromStructured(trimmed)
}

// IsText reports whether the value arrived as serialized text.
func (r Raw) IsText() bool { return r.isText }

// Decode turns a Raw into a Matrix. It never fails: whatever cannot be read
// grants nothing.
func Decode(raw Raw) Matrix {
	m, _ := DecodeStrict(raw)
	return m
}

// DecodeStrict decodes like Decode but also reports what was dropped.
// The returned matrix is always safe to use. A malformed module
// entry only zeroes that module, and a malformed document zeroes everything.
func DecodeStrict(raw Raw) (Matrix, error) {
	payload := []byte(raw.structured)
	if raw.isText {
		payload = []byte(raw.text)
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return Matrix{}, errors.New("permissions: empty matrix")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Matrix{}, fmt.Errorf("permissions: malformed matrix: %w", err)
	}

	var m Matrix
	var errs []error
	decodeSet := func(key Module, dst *ActionSet) {
		v, ok := fields[string(key)]
		if !ok {
			return
		}
		var set map[string]json.RawMessage
		if err := json.Unmarshal(v, &set); err != nil {
			errs = append(errs, fmt.Errorf("permissions: module %s: %w", key, err))
			return
		}
		for _, a := range Actions() {
			flag, err := decodeFlag(set[a])
			if err != nil {
				errs = append(errs, fmt.Errorf("permissions: %s.%s: %w", key, a, err))
				continue
			}
			switch Action(a) {
			case ActionView:
				dst.View = flag
			case ActionEdit:
				dst.Edit = flag
			case ActionCreate:
				dst.Create = flag
			case ActionDelete:
				dst.Delete = flag
			}
		}
	}
	decodeSet(ModuleProperties, &m.Properties)
	decodeSet(ModuleLeads, &m.Leads)
	decodeSet(ModuleUsers, &m.Users)

	var err error
	if m.Analytics, err = decodeFlag(fields[string(ModuleAnalytics)]); err != nil {
		errs = append(errs, fmt.Errorf("permissions: analytics: %w", err))
	}
	if m.Profile, err = decodeFlag(fields[string(ModuleProfile)]); err != nil {
		errs = append(errs, fmt.Errorf("permissions: profile: %w", err))
	}

	return m, errors.Join(errs...)
}

// decodeFlag reads a boolean; absent or null is false.
func decodeFlag(v json.RawMessage) (bool, error) {
	if len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, err
	}
	return b, nil
}

// Grant returns a copy of m with the capability turned on.
func (m Matrix) Grant(module Module, action Action) Matrix {
	switch module {
	case ModuleAnalytics:
		m.Analytics = true
	case ModuleProfile:
		m.Profile = true
	case ModuleProperties:
		m.Properties = m.Properties.with(action)
	case ModuleLeads:
		m.Leads = m.Leads.with(action)
	case ModuleUsers:
		m.Users = m.Users.with(action)
	}
	return m
}

func (a ActionSet) with(action Action) ActionSet {
	switch action {
	case ActionView:
		a.View = true
	case ActionEdit:
		a.Edit = true
	case ActionCreate:
		a.Create = true
	case ActionDelete:
		a.Delete = true
	}
	return a
}
