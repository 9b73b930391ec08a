package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityDetail is a metadata record: a typed bag of properties plus the
// classifications attached to it.
type EntityDetail struct {
	ID              uuid.UUID        `json:"guid"`
	TypeName        string           `json:"typeName"`
	Properties      map[string]any   `json:"properties"`
	Classifications []Classification `json:"classifications"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"createTime"`
	UpdatedAt       time.Time        `json:"updateTime"`
}

// Classification is a named, optionally attributed tag on an entity.
type Classification struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// NewEntityDetail creates a new entity with immutable pattern
func NewEntityDetail(typeName string, properties map[string]any, classifications ...Classification) EntityDetail {
	now := time.Now().UTC()
	return EntityDetail{
		ID:              uuid.New(),
		TypeName:        typeName,
		Properties:      copyProperties(properties),
		Classifications: copyClassifications(classifications),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// WithProperty returns a new entity with an added/updated property
func (e EntityDetail) WithProperty(key string, value any) EntityDetail {
	out := e.clone()
	out.Properties[key] = value
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithoutProperty returns a new entity without the specified property
func (e EntityDetail) WithoutProperty(key string) EntityDetail {
	out := e.clone()
	delete(out.Properties, key)
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithProperties returns a new entity with the property bag replaced
func (e EntityDetail) WithProperties(properties map[string]any) EntityDetail {
	out := e.clone()
	out.Properties = copyProperties(properties)
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithClassification adds or replaces the classification of the same name.
func (e EntityDetail) WithClassification(c Classification) EntityDetail {
	out := e.clone()
	replaced := false
	for i := range out.Classifications {
		if out.Classifications[i].Name == c.Name {
			out.Classifications[i] = c.clone()
			replaced = true
		}
	}
	if !replaced {
		out.Classifications = append(out.Classifications, c.clone())
	}
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithoutClassification removes the named classification if present.
func (e EntityDetail) WithoutClassification(name string) EntityDetail {
	out := e.clone()
	kept := out.Classifications[:0]
	for _, c := range out.Classifications {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	out.Classifications = kept
	out.UpdatedAt = time.Now().UTC()
	return out
}

// Classification returns the named classification.
func (e EntityDetail) Classification(name string) (Classification, bool) {
	for _, c := range e.Classifications {
		if c.Name == name {
			return c, true
		}
	}
	return Classification{}, false
}

func (e EntityDetail) GetPropertiesAsJSONB() (json.RawMessage, error) {
	if e.Properties == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(e.Properties)
}

func (e EntityDetail) GetClassificationsAsJSONB() (json.RawMessage, error) {
	if e.Classifications == nil {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(e.Classifications)
}

// FromJSONBProperties creates properties map from JSONB data
func FromJSONBProperties(propertiesJSON json.RawMessage) (map[string]any, error) {
	properties := make(map[string]any)
	if len(propertiesJSON) == 0 {
		return properties, nil
	}
	err := json.Unmarshal(propertiesJSON, &properties)
	return properties, err
}

// FromJSONBClassifications decodes the classifications column.
func FromJSONBClassifications(data json.RawMessage) ([]Classification, error) {
	classifications := []Classification{}
	if len(data) == 0 {
		return classifications, nil
	}
	err := json.Unmarshal(data, &classifications)
	return classifications, err
}

func (e EntityDetail) clone() EntityDetail {
	out := e
	out.Properties = copyProperties(e.Properties)
	out.Classifications = copyClassifications(e.Classifications)
	return out
}

// Clone returns a copy that shares no maps or slices with e.
func (e EntityDetail) Clone() EntityDetail {
	return e.clone()
}

func (c Classification) clone() Classification {
	return Classification{Name: c.Name, Properties: copyProperties(c.Properties)}
}

// copyProperties copies the top level of the properties map; values decoded
// from JSON are treated as read-only.
func copyProperties(properties map[string]any) map[string]any {
	newProperties := make(map[string]any, len(properties))
	for k, v := range properties {
		newProperties[k] = v
	}
	return newProperties
}

func copyClassifications(classifications []Classification) []Classification {
	out := make([]Classification, len(classifications))
	for i, c := range classifications {
		out[i] = c.clone()
	}
	return out
}
