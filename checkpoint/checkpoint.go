// Package checkpoint reads and writes single-file safetensors checkpoints and
// checks them against an architecture's weight mapping.
//
// File structure:
//   - 8 bytes: header size N (little-endian uint64)
//   - N bytes: JSON header with tensor metadata
//   - Remaining bytes: raw tensor data (contiguous, little-endian)
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

const metadataKey = "__metadata__"

// File is a parsed checkpoint held in memory.
type File struct {
	// Metadata contains optional file-level metadata (e.g., {"format": "pt"}).
	Metadata map[string]string

	entries map[string]entry
	data    []byte
}

type entry struct {
	shape  shapes.Shape
	offset uint64
	length uint64
}

// headerEntry is one tensor of the JSON header.
type headerEntry struct {
	DType       string    `json:"dtype"`
	Shape       []int     `json:"shape"`
	DataOffsets [2]uint64 `json:"data_offsets"`
}

// Open reads and parses a checkpoint from disk.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read checkpoint %q", path)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse checkpoint %q", path)
	}
	return f, nil
}

// Parse parses checkpoint bytes.
func Parse(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, errors.New("safetensors: file too small, missing header size")
	}

	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > uint64(len(data)-8) {
		return nil, errors.Errorf("safetensors: header size %d exceeds file size %d", headerSize, len(data)-8)
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerSize], &rawHeader); err != nil {
		return nil, errors.Wrap(err, "safetensors: failed to parse JSON header")
	}

	f := &File{
		Metadata: make(map[string]string),
		entries:  make(map[string]entry, len(rawHeader)),
		data:     data[8+headerSize:],
	}
	for name, raw := range rawHeader {
		if name == metadataKey {
			if err := json.Unmarshal(raw, &f.Metadata); err != nil {
				return nil, errors.Wrap(err, "safetensors: failed to parse __metadata__")
			}
			continue
		}

		var h headerEntry
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, errors.Wrapf(err, "safetensors: failed to parse tensor %q", name)
		}
		dtype, ok := dtypeByName[h.DType]
		if !ok {
			return nil, errors.Errorf("safetensors: tensor %q has unknown dtype %q", name, h.DType)
		}
		begin, end := h.DataOffsets[0], h.DataOffsets[1]
		if end < begin || end > uint64(len(f.data)) {
			return nil, errors.Errorf("safetensors: tensor %q data offsets %v out of bounds", name, h.DataOffsets)
		}
		size, err := byteSize(dtype, h.Shape)
		if err != nil {
			return nil, errors.Wrapf(err, "safetensors: tensor %q", name)
		}
		if size != end-begin {
			return nil, errors.Errorf("safetensors: tensor %q shape %v needs %d bytes, data offsets %v hold %d",
				name, h.Shape, size, h.DataOffsets, end-begin)
		}

		f.entries[name] = entry{
			shape:  shapes.Make(dtype, h.Shape...),
			offset: begin,
			length: end - begin,
		}
	}
	return f, nil
}

// ListTensorNames returns all tensor names, sorted.
func (f *File) ListTensorNames() []string {
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorShape returns the shape of a tensor without reading its data.
func (f *File) TensorShape(name string) (shapes.Shape, bool) {
	e, ok := f.entries[name]
	return e.shape, ok
}

// GetTensor copies a tensor out of the checkpoint.
func (f *File) GetTensor(name string) (*tensors.Tensor, error) {
	e, ok := f.entries[name]
	if !ok {
		return nil, errors.Errorf("safetensors: tensor %q not found", name)
	}
	data := f.data[e.offset : e.offset+e.length]

	t := tensors.FromShape(e.shape)
	var copyErr error
	accessErr := t.MutableBytes(func(tensorBytes []byte) {
		if len(data) != len(tensorBytes) {
			copyErr = errors.Errorf("safetensors: tensor %q data size mismatch: got %d bytes, expected %d",
				name, len(data), len(tensorBytes))
			return
		}
		copy(tensorBytes, data)
	})
	if accessErr != nil {
		return nil, accessErr
	}
	if copyErr != nil {
		return nil, copyErr
	}
	return t, nil
}

func (f *File) String() string {
	return fmt.Sprintf("Checkpoint{tensors: %d, metadata: %v}", len(f.entries), f.Metadata)
}

// byteSize returns the number of bytes a tensor of dims occupies.
func byteSize(dtype dtypes.DType, dims []int) (uint64, error) {
	const maxSize = ^uint64(0)
	size := uint64(dtype.Size())
	for _, d := range dims {
		if d < 0 {
			return 0, errors.Errorf("negative dimension in shape %v", dims)
		}
		if d != 0 && size > maxSize/uint64(d) {
			return 0, errors.Errorf("shape %v overflows", dims)
		}
		size *= uint64(d)
	}
	return size, nil
}

var dtypeByName = map[string]dtypes.DType{
	"F64":  dtypes.Float64,
	"F32":  dtypes.Float32,
	"F16":  dtypes.Float16,
	"BF16": dtypes.BFloat16,
	"I64":  dtypes.Int64,
	"I32":  dtypes.Int32,
	"I16":  dtypes.Int16,
	"I8":   dtypes.Int8,
	"U64":  dtypes.Uint64,
	"U32":  dtypes.Uint32,
	"U16":  dtypes.Uint16,
	"U8":   dtypes.Uint8,
	"BOOL": dtypes.Bool,
}

func dtypeName(dtype dtypes.DType) (string, bool) {
	for name, d := range dtypeByName {
		if d == dtype {
			return name, true
		}
	}
	return "", false
}
