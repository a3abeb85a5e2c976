// Package jsonmerge implements the structural merge used for KV settings sections.
//
// Values are classified into three kinds: object, array and scalar (which
// includes null). Only object/object pairs merge recursively. Every other
// pairing, arrays included, resolves to the incoming value. Arrays are never
// merged element-wise.
package jsonmerge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the structural class of a decoded JSON value.
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "scalar"
	}
}

// KindOf classifies a value produced by encoding/json decoding into any.
func KindOf(v any) Kind {
	switch v.(type) {
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	default:
		return KindScalar
	}
}

// Merge returns stored merged with incoming. Neither input is modified.
func Merge(stored, incoming any) any {
	s, sok := stored.(map[string]any)
	in, iok := incoming.(map[string]any)
	if !sok || !iok {
		return incoming
	}

	out := make(map[string]any, len(s)+len(in))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range in {
		if prev, ok := out[k]; ok && KindOf(prev) == KindObject && KindOf(v) == KindObject {
			out[k] = Merge(prev, v)
			continue
		}
		out[k] = v
	}
	return out
}

// MergeJSON merges two encoded documents. A missing stored document merges
// as if it were empty, so the incoming document is returned as is.
func MergeJSON(stored, incoming json.RawMessage) (json.RawMessage, error) {
	if len(stored) == 0 {
		return incoming, nil
	}

	s, err := decode(stored)
	if err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	in, err := decode(incoming)
	if err != nil {
		return nil, fmt.Errorf("decode incoming document: %w", err)
	}

	merged, err := json.Marshal(Merge(s, in))
	if err != nil {
		return nil, fmt.Errorf("encode merged document: %w", err)
	}
	return merged, nil
}

// decode keeps numbers as json.Number so large integers survive a merge.
func decode(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
