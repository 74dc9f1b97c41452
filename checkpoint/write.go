package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Write encodes tensors as a safetensors checkpoint. Tensors are laid out in
// name order and the header is padded to a multiple of 8 bytes.
func Write(w io.Writer, weights map[string]*tensors.Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]interface{}, len(weights)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset uint64
	for _, name := range names {
		t := weights[name]
		dtype, ok := dtypeName(t.DType())
		if !ok {
			return errors.Errorf("safetensors: tensor %q has unsupported dtype %s", name, t.DType())
		}
		size := uint64(t.Shape().Memory())
		header[name] = headerEntry{
			DType:       dtype,
			Shape:       append([]int{}, t.Shape().Dimensions...),
			DataOffsets: [2]uint64{offset, offset + size},
		}
		offset += size
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "safetensors: failed to encode header")
	}
	if pad := len(headerBytes) % 8; pad != 0 {
		headerBytes = append(headerBytes, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return errors.Wrap(err, "safetensors: failed to write header size")
	}
	if _, err := bw.Write(headerBytes); err != nil {
		return errors.Wrap(err, "safetensors: failed to write header")
	}
	for _, name := range names {
		var writeErr error
		if err := weights[name].ConstBytes(func(data []byte) {
			_, writeErr = bw.Write(data)
		}); err != nil {
			return errors.Wrapf(err, "safetensors: failed to access tensor %q", name)
		}
		if writeErr != nil {
			return errors.Wrapf(writeErr, "safetensors: failed to write tensor %q", name)
		}
	}
	return bw.Flush()
}

// WriteFile writes a checkpoint to path.
func WriteFile(path string, weights map[string]*tensors.Tensor, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create checkpoint %q", path)
	}
	if err := Write(f, weights, metadata); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
