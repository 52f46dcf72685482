// Package codec serializes the whole alarm collection to and from a single
// text blob. Decoding is tolerant: missing or mistyped fields fall back to the
// Alarm zero values and entries that are not objects are skipped.
package codec

import (
	"fmt"

	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/models"
)

// MaxBlobSize bounds the blob accepted by Decode.
const MaxBlobSize = 1 << 20

type Codec interface {
	Name() string
	Encode(alarms []models.Alarm) (string, error)
	Decode(blob string) ([]models.Alarm, error)
}

// ByName returns the codec registered under name ("json" or "yaml").
func ByName(name string) (Codec, error) {
	switch name {
	case "json", "":
		return JSON{}, nil
	case "yaml", "yml":
		return YAML{}, nil
	default:
		return nil, apperrors.Errorf(apperrors.KindInvalid, "codec.ByName", "unknown codec %q", name)
	}
}

// envelope is the persisted top-level shape.
type envelope struct {
	Alarms []models.Alarm `json:"alarms" yaml:"alarms"`
}

func checkSize(op string, blob string) error {
	if len(blob) > MaxBlobSize {
		return &apperrors.Error{
			Kind:        apperrors.KindOutOfMemory,
			Op:          op,
			Description: fmt.Sprintf("blob of %d bytes exceeds limit of %d", len(blob), MaxBlobSize),
		}
	}
	return nil
}

// fieldSetter assigns one decoded field to an alarm. Each codec supplies
// decode functions for its own value representation.
type fieldSetter struct {
	number  func(dst *float64) bool
	str     func(dst *string) bool
	boolean func(dst *bool) bool
}

// applyField copies a single named field into a. Unknown keys and values of
// the wrong type leave the default in place.
func applyField(a *models.Alarm, key string, v fieldSetter) {
	var n float64
	switch key {
	case "id":
		if v.number(&n) && n >= 0 {
			a.ID = uint32(n)
		}
	case "label":
		var s string
		if v.str(&s) {
			a.Label = s
		}
	case "hour":
		if v.number(&n) {
			a.Hour = int(n)
		}
	case "minute":
		if v.number(&n) {
			a.Minute = int(n)
		}
	case "repeat_mode":
		if v.number(&n) {
			a.RepeatMode = models.RepeatMode(int(n))
		}
	case "custom_days":
		if v.number(&n) {
			a.CustomDays = uint8(int(n)) & models.AllDays
		}
	case "enabled":
		var b bool
		if v.boolean(&b) {
			a.Enabled = b
		}
	case "next_trigger_time":
		if v.number(&n) && n >= 0 {
			a.NextTriggerTime = int64(n)
		}
	}
}
