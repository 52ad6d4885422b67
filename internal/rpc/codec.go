package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"pos-system/internal/errs"
)

// decodeStruct converts a Struct payload into a Go request type through its
// JSON form.
func decodeStruct(in *structpb.Struct, out interface{}) error {
	if in == nil {
		return fmt.Errorf("%w: empty request", errs.ErrValidation)
	}
	data, err := in.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed request: %v", errs.ErrValidation, err)
	}
	return nil
}

// EncodeStruct converts a Go value into a Struct payload through its JSON form.
func EncodeStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeStruct is decodeStruct for callers outside the package.
func DecodeStruct(in *structpb.Struct, out interface{}) error {
	return decodeStruct(in, out)
}
