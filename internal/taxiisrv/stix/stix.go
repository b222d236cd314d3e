// Package stix reads the few STIX fields the server needs to index a submitted object. The
// payload itself is never rewritten.
package stix

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
	"github.com/tidwall/gjson"
)

// DefaultSpecVersion applies to objects that do not declare spec_version.
const DefaultSpecVersion = "2.1"

var (
	ErrInvalidObject   apperrors.Error = apperrors.New("invalid STIX object").SetStatusCode(http.StatusBadRequest)
	ErrInvalidEnvelope apperrors.Error = apperrors.New("invalid TAXII envelope").SetStatusCode(http.StatusBadRequest)
)

// Object holds the indexed fields of a STIX object.
type Object struct {
	ID          string
	Type        string
	SpecVersion string
	Version     time.Time
	Raw         json.RawMessage
}

// ParseObject extracts id, type, spec_version and version from raw. The version is the
// modified timestamp, or created for objects that are never modified.
func ParseObject(raw json.RawMessage) (*Object, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidObject.Msg("object is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, ErrInvalidObject.Msg("object is not a JSON object")
	}

	fields := gjson.GetManyBytes(raw, "id", "type", "spec_version", "modified", "created")
	id, typ, specVersion, modified, created := fields[0], fields[1], fields[2], fields[3], fields[4]

	obj := &Object{Raw: raw}
	if id.Type != gjson.String || id.Str == "" {
		return obj, ErrInvalidObject.Msg("missing id")
	}
	obj.ID = id.Str
	if typ.Type != gjson.String || typ.Str == "" {
		return obj, ErrInvalidObject.Msg("missing type")
	}
	obj.Type = typ.Str

	obj.SpecVersion = DefaultSpecVersion
	if specVersion.Type == gjson.String && specVersion.Str != "" {
		obj.SpecVersion = specVersion.Str
	}

	versionField := modified
	if versionField.Type != gjson.String {
		versionField = created
	}
	if versionField.Type != gjson.String {
		return obj, ErrInvalidObject.Msg("missing modified and created timestamps")
	}
	v, err := ParseTimestamp(versionField.Str)
	if err != nil {
		return obj, ErrInvalidObject.MsgErr("invalid version timestamp", err)
	}
	obj.Version = v
	return obj, nil
}

// ParseEnvelope returns the objects array of a TAXII envelope, each element as submitted.
func ParseEnvelope(body []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidEnvelope.Msg("body is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, ErrInvalidEnvelope.Msg("envelope is not a JSON object")
	}
	objects := doc.Get("objects")
	if !objects.Exists() {
		return nil, ErrInvalidEnvelope.Msg("missing objects")
	}
	if !objects.IsArray() {
		return nil, ErrInvalidEnvelope.Msg("objects is not an array")
	}

	var out []json.RawMessage
	objects.ForEach(func(_, value gjson.Result) bool {
		out = append(out, json.RawMessage(value.Raw))
		return true
	})
	return out, nil
}

// ParseTimestamp parses a STIX timestamp and normalises it to UTC microseconds.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Microsecond), nil
}
