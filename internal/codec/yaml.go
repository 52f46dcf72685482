package codec

import (
	"gopkg.in/yaml.v3"

	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/models"
)

// YAML encodes the collection as a document with a top-level alarms
// sequence. Decode also accepts a bare sequence.
type YAML struct{}

func (YAML) Name() string { return "yaml" }

func (YAML) Encode(alarms []models.Alarm) (string, error) {
	if alarms == nil {
		alarms = []models.Alarm{}
	}
	data, err := yaml.Marshal(envelope{Alarms: alarms})
	if err != nil {
		return "", apperrors.E(apperrors.KindInternal, "codec.YAML.Encode", err)
	}
	return string(data), nil
}

func (YAML) Decode(blob string) ([]models.Alarm, error) {
	const op = "codec.YAML.Decode"
	if err := checkSize(op, blob); err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, apperrors.E(apperrors.KindParse, op, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, apperrors.Errorf(apperrors.KindParse, op, "empty document")
	}

	list := doc.Content[0]
	if list.Kind == yaml.MappingNode {
		list = mappingValue(list, "alarms")
		if list == nil {
			return nil, apperrors.Errorf(apperrors.KindParse, op, "missing alarms sequence")
		}
	}
	if list.Kind != yaml.SequenceNode {
		return nil, apperrors.Errorf(apperrors.KindParse, op, "alarms is not a sequence")
	}

	alarms := make([]models.Alarm, 0, len(list.Content))
	for _, entry := range list.Content {
		if entry.Kind != yaml.MappingNode {
			continue
		}
		var a models.Alarm
		for i := 0; i+1 < len(entry.Content); i += 2 {
			applyField(&a, entry.Content[i].Value, yamlValue(entry.Content[i+1]))
		}
		alarms = append(alarms, a)
	}
	return alarms, nil
}

// mappingValue returns the value node for key in a mapping node, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func yamlValue(n *yaml.Node) fieldSetter {
	scalar := func(tags ...string) bool {
		if n.Kind != yaml.ScalarNode {
			return false
		}
		for _, t := range tags {
			if n.ShortTag() == t {
				return true
			}
		}
		return false
	}
	return fieldSetter{
		number: func(dst *float64) bool {
			return scalar("!!int", "!!float") && n.Decode(dst) == nil
		},
		str: func(dst *string) bool {
			if !scalar("!!str") {
				return false
			}
			*dst = n.Value
			return true
		},
		boolean: func(dst *bool) bool {
			return scalar("!!bool") && n.Decode(dst) == nil
		},
	}
}
