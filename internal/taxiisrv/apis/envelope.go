package apis

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/sjson"
)

// envelope assembles a TAXII envelope around stored objects. The objects are embedded
// verbatim, so clients receive exactly the bytes that were submitted.
func envelope(objects []json.RawMessage, more bool, next string) ([]byte, error) {
	body := []byte(`{}`)
	body, err := sjson.SetBytes(body, "more", more)
	if err != nil {
		return nil, err
	}
	if next != "" {
		if body, err = sjson.SetBytes(body, "next", next); err != nil {
			return nil, err
		}
	}
	if len(objects) == 0 {
		return body, nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, o := range objects {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(bytes.TrimSpace(o))
	}
	buf.WriteByte(']')
	return sjson.SetRawBytes(body, "objects", buf.Bytes())
}
