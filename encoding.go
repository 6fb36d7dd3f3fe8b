package fstreedb

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

type encodingMethod int

const (
	MsgPack encodingMethod = iota
	JSON
	// Binary delegates to encoding.BinaryMarshaler / BinaryUnmarshaler.
	Binary

	defaultValueEncoding = MsgPack
)

var (
	binaryMarshalerType   = reflect.TypeFor[encoding.BinaryMarshaler]()
	binaryUnmarshalerType = reflect.TypeFor[encoding.BinaryUnmarshaler]()
)

func (enc encodingMethod) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("encoding(%d)", int(enc))
	}
}

// encodingFor picks Binary for types that marshal themselves.
func encodingFor(typ reflect.Type, preferred encodingMethod) encodingMethod {
	if typ.Implements(binaryMarshalerType) && reflect.PointerTo(typ).Implements(binaryUnmarshalerType) {
		return Binary
	}
	return preferred
}

func (enc encodingMethod) EncodeValue(buf []byte, objVal reflect.Value) ([]byte, error) {
	switch enc {
	case MsgPack:
		w := bytes.NewBuffer(buf)
		enc := msgpack.GetEncoder()
		enc.Reset(w)
		enc.SetSortMapKeys(true)
		err := enc.EncodeValue(objVal)
		msgpack.PutEncoder(enc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %v using MsgPack: %w", objVal.Type(), err)
		}
		return w.Bytes(), nil
	case JSON:
		raw, err := json.Marshal(objVal.Interface())
		if err != nil {
			return nil, fmt.Errorf("failed to encode %v to JSON: %w", objVal.Type(), err)
		}
		return append(buf, raw...), nil
	case Binary:
		m, ok := objVal.Interface().(encoding.BinaryMarshaler)
		if !ok {
			panic(fmt.Errorf("%v does not implement encoding.BinaryMarshaler", objVal.Type()))
		}
		raw, err := m.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return append(buf, raw...), nil
	default:
		panic("unsupported encoding")
	}
}

func (enc encodingMethod) DecodeValue(buf []byte, objPtrVal reflect.Value) error {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		dec := msgpack.GetDecoder()
		dec.Reset(&r)
		err := dec.DecodeValue(objPtrVal)
		msgpack.PutDecoder(dec)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode msgpack into %v", objPtrVal.Type())
		}
		return nil
	case JSON:
		err := json.Unmarshal(buf, objPtrVal.Interface())
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode JSON into %v", objPtrVal.Type())
		}
		return nil
	case Binary:
		u, ok := objPtrVal.Interface().(encoding.BinaryUnmarshaler)
		if !ok {
			panic(fmt.Errorf("%v does not implement encoding.BinaryUnmarshaler", objPtrVal.Type()))
		}
		if err := u.UnmarshalBinary(buf); err != nil {
			return dataErrf(buf, 0, err, "failed to decode %v", objPtrVal.Type())
		}
		return nil
	default:
		panic("unsupported encoding")
	}
}
