package persist

import "github.com/fxamacker/cbor/v2"

// AppData is a self-describing payload for the ApplicationData and
// IsiPersistent segments: a version plus named byte fields, encoded with
// CBOR so a host application's serialize/deserialize callback (§6) can
// round-trip arbitrary structures without a hand-rolled binary format.
// The stack does not install these functions as a default callback.
type AppData struct {
	Version   uint16
	Fields    map[string][]byte
}

// EncodeAppData returns a deterministic CBOR encoding of the
// application's named fields, for use in a serialize_app_data callback.
func EncodeAppData(v AppData) ([]byte, error) {
	opts := cbor.CanonicalEncOptions()
	em, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(v)
}

// DecodeAppData reverses EncodeAppData, for use in a
// deserialize_app_data callback.
func DecodeAppData(b []byte) (AppData, error) {
	var v AppData
	if len(b) == 0 {
		return AppData{Fields: map[string][]byte{}}, nil
	}
	if err := cbor.Unmarshal(b, &v); err != nil {
		return AppData{}, err
	}
	if v.Fields == nil {
		v.Fields = map[string][]byte{}
	}
	return v, nil
}
