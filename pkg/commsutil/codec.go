package commsutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EncodePayload serializes a message body.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes one JSON value into v. Numbers decoded into
// interface{} values stay json.Number; trailing data is an error.
func DecodePayload(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

// ErrNotObject is returned by DecodeParams for valid JSON that is not an object.
var ErrNotObject = errors.New("params must be a JSON object")

// DecodeParams decodes the body of a per-command request. An empty body or
// null is an empty params object. Any other non-object wraps ErrNotObject;
// malformed JSON is returned as the decoder's error.
func DecodeParams(data []byte) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	if len(bytes.TrimSpace(data)) == 0 {
		return params, nil
	}
	var v interface{}
	if err := DecodePayload(data, &v); err != nil {
		return nil, err
	}
	switch obj := v.(type) {
	case nil:
		return params, nil
	case map[string]interface{}:
		return obj, nil
	default:
		return nil, fmt.Errorf("%w, got %s", ErrNotObject, jsonType(obj))
	}
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case []interface{}:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
