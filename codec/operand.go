package codec

import (
	"encoding/json"
	"errors"

	gojson "github.com/goccy/go-json"
)

// ErrInvalidJSON is returned by Operand for raw JSON that does not parse.
var ErrInvalidJSON = errors.New("codec: invalid JSON")

// Operand renders v as the JSON text of a document path operand.
//
// json.RawMessage is taken verbatim after a validity check; anything else
// goes through c, so a Go string becomes a JSON string.
func Operand(c Codec, v any) (string, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if !gojson.Valid(raw) {
			return "", ErrInvalidJSON
		}
		return string(raw), nil
	}
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
