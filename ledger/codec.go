package ledger

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// Encode returns the canonical CBOR encoding of v.
func Encode(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not encode %T: %w", v, err)
	}
	return b, nil
}

// Decode decodes CBOR data into v.
func Decode(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("could not decode %T: %w", v, err)
	}
	return nil
}

// EncMode exposes the canonical encoding mode for stream encoders.
func EncMode() cbor.EncMode { return encMode }
