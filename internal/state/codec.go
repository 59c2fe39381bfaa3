package state

import (
	"bytes"
	"fmt"

	"github.com/iwvelando/split-payment-forecast/internal/model"
	"github.com/vmihailenco/msgpack/v5"
)

// encode serializes st into a history snapshot.
func encode(st model.State) ([]byte, error) {
	data, err := msgpack.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state snapshot: %w", err)
	}
	return data, nil
}

// decode restores a snapshot. Free-form extension numbers decode as int64
// (uint64 above the int64 range) or float64 regardless of their encoded width.
func decode(data []byte) (model.State, error) {
	var st model.State
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&st); err != nil {
		return model.State{}, fmt.Errorf("failed to decode state snapshot: %w", err)
	}
	for name, ext := range st.Extensions {
		st.Extensions[name] = normalizeNumbers(ext).(map[string]any)
	}
	return st, nil
}

// clone returns a deep copy of st sharing no maps, slices or pointers.
func clone(st model.State) (model.State, error) {
	data, err := encode(st)
	if err != nil {
		return model.State{}, err
	}
	return decode(data)
}
