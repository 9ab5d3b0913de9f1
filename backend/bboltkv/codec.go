package bboltkv

import "encoding/json"

// StringKeyCodec is the KeyCodec for K = string, the common case.
func StringKeyCodec() KeyCodec[string] {
	return KeyCodec[string]{
		Encode: func(k string) []byte { return []byte(k) },
		Decode: func(b []byte) (string, error) { return string(b), nil },
	}
}

// JSONValueCodec builds a ValueCodec using encoding/json, mirroring the
// teacher's default Marshaler (encoding.DefaultMarshaler), which is JSON
// "for its streaming capabilities useful for large value payloads".
func JSONValueCodec[V any]() ValueCodec[V] {
	return ValueCodec[V]{
		Encode: func(v V) ([]byte, error) { return json.Marshal(v) },
		Decode: func(b []byte) (V, error) {
			var v V
			err := json.Unmarshal(b, &v)
			return v, err
		},
	}
}
