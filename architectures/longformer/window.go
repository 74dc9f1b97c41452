package longformer

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

// AttentionWindow is the attention_window field: either one size shared by every
// layer or an ordered list with one size per hidden layer. The form it was given
// in is kept, including through JSON.
type AttentionWindow struct {
	size     int
	perLayer []int
}

// WindowSize returns a window applied uniformly to every layer.
func WindowSize(size int) AttentionWindow {
	return AttentionWindow{size: size}
}

// PerLayerWindows returns one window size per hidden layer, in layer order.
func PerLayerWindows(sizes ...int) AttentionWindow {
	return AttentionWindow{perLayer: append([]int{}, sizes...)}
}

// IsPerLayer reports whether the window was given as a list.
func (w AttentionWindow) IsPerLayer() bool {
	return w.perLayer != nil
}

// Size returns the uniform window size, or 0 for a per-layer window.
func (w AttentionWindow) Size() int {
	return w.size
}

// PerLayer returns a copy of the per-layer sizes, or nil for a uniform window.
func (w AttentionWindow) PerLayer() []int {
	if w.perLayer == nil {
		return nil
	}
	return append([]int{}, w.perLayer...)
}

// ForLayer returns the window size of a layer. It returns 0 when a per-layer
// window has no entry for the layer.
func (w AttentionWindow) ForLayer(layer int) int {
	if w.perLayer == nil {
		return w.size
	}
	if layer < 0 || layer >= len(w.perLayer) {
		return 0
	}
	return w.perLayer[layer]
}

// Max returns the largest window size across layers.
func (w AttentionWindow) Max() int {
	if w.perLayer == nil {
		return w.size
	}
	largest := 0
	for _, s := range w.perLayer {
		largest = max(largest, s)
	}
	return largest
}

// Value returns the window as an int or []int, the way it appears in config.json.
func (w AttentionWindow) Value() interface{} {
	if w.perLayer != nil {
		return w.PerLayer()
	}
	return w.size
}

func (w AttentionWindow) String() string {
	if w.perLayer != nil {
		return fmt.Sprint(w.perLayer)
	}
	return strconv.Itoa(w.size)
}

// MarshalJSON encodes the window as a number or an array.
func (w AttentionWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Value())
}

// UnmarshalJSON accepts a number or an array of numbers.
func (w *AttentionWindow) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "attention_window")
	}
	parsed, err := parseAttentionWindow(v)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// parseAttentionWindow converts a decoded JSON value or a Go int/[]int into a window.
func parseAttentionWindow(v interface{}) (AttentionWindow, error) {
	switch x := v.(type) {
	case AttentionWindow:
		return x, nil
	case []int:
		return PerLayerWindows(x...), nil
	case []interface{}:
		sizes := make([]int, len(x))
		for i, item := range x {
			n, ok := integral(item)
			if !ok {
				return AttentionWindow{}, errors.Errorf("attention_window[%d]: expected an integer, got %v (%T)", i, item, item)
			}
			sizes[i] = n
		}
		return PerLayerWindows(sizes...), nil
	}
	if n, ok := integral(v); ok {
		return WindowSize(n), nil
	}
	return AttentionWindow{}, errors.Errorf("attention_window: expected an integer or a list of integers, got %v (%T)", v, v)
}

func integral(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

var attentionWindowType = reflect.TypeOf(AttentionWindow{})

// attentionWindowHook lets named options give attention_window as an int or a list.
func attentionWindowHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != attentionWindowType {
		return data, nil
	}
	return parseAttentionWindow(data)
}
