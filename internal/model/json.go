package model

import "encoding/json"

// marshalTagged merges a flat struct's fields with a "type" discriminator,
// mirroring serde's internally-tagged enum representation used by the
// upstream wire contract (data: {"type": "ts", host, port, ...}).
func marshalTagged(tag string, payload any) ([]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payloadJSON, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	tagJSON, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	fields["type"] = tagJSON
	return json.Marshal(fields)
}

// UnmarshalJSON reads the "type" tag and, for "ts", the flat TSSettings
// fields alongside it.
func (t *InstanceType) UnmarshalJSON(data []byte) error {
	var tagged struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	t.Type = tagged.Type
	if tagged.Type == "ts" {
		var settings TSSettings
		if err := json.Unmarshal(data, &settings); err != nil {
			return err
		}
		t.TS = &settings
	}
	return nil
}
