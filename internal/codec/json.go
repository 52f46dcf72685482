package codec

import (
	"bytes"
	"encoding/json"

	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/models"
)

// JSON encodes the collection as {"alarms":[...]}. Decode also accepts a
// bare array.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(alarms []models.Alarm) (string, error) {
	if alarms == nil {
		alarms = []models.Alarm{}
	}
	data, err := json.Marshal(envelope{Alarms: alarms})
	if err != nil {
		return "", apperrors.E(apperrors.KindInternal, "codec.JSON.Encode", err)
	}
	return string(data), nil
}

func (JSON) Decode(blob string) ([]models.Alarm, error) {
	const op = "codec.JSON.Decode"
	if err := checkSize(op, blob); err != nil {
		return nil, err
	}

	data := bytes.TrimSpace([]byte(blob))
	var entries []json.RawMessage
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, apperrors.E(apperrors.KindParse, op, err)
		}
	} else {
		var root struct {
			Alarms *[]json.RawMessage `json:"alarms"`
		}
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, apperrors.E(apperrors.KindParse, op, err)
		}
		if root.Alarms == nil {
			return nil, apperrors.Errorf(apperrors.KindParse, op, "missing alarms array")
		}
		entries = *root.Alarms
	}

	alarms := make([]models.Alarm, 0, len(entries))
	for _, raw := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			// not an object
			continue
		}
		var a models.Alarm
		for key, value := range fields {
			applyField(&a, key, jsonValue(value))
		}
		alarms = append(alarms, a)
	}
	return alarms, nil
}

func jsonValue(raw json.RawMessage) fieldSetter {
	return fieldSetter{
		number: func(dst *float64) bool { return json.Unmarshal(raw, dst) == nil && !isNull(raw) },
		str:    func(dst *string) bool { return json.Unmarshal(raw, dst) == nil && !isNull(raw) },
		boolean: func(dst *bool) bool {
			return json.Unmarshal(raw, dst) == nil && !isNull(raw)
		},
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
