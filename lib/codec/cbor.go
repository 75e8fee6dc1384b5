// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

// MaxFrameSize caps decoded byte strings and text. SDP bodies with
// every ICE candidate inlined stay well below this.
const MaxFrameSize = 256 * 1024

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1024,
		MaxMapPairs:      1024,
		// Envelopes from newer peers may carry fields this build does
		// not know; they are dropped rather than rejected.
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Frames larger than MaxFrameSize are
// rejected before decoding.
func Unmarshal(data []byte, v any) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("codec: frame of %d bytes exceeds limit of %d", len(data), MaxFrameSize)
	}
	return decMode.Unmarshal(data, v)
}
