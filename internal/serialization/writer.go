package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
)

// DPWriter writes models in .dp format.
type DPWriter struct {
	file   *os.File
	closed bool
}

// NewDPWriter creates a new .dp file writer.
func NewDPWriter(path string) (*DPWriter, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &DPWriter{file: file}, nil
}

// WriteModel writes a serialized component tree to the file.
func (w *DPWriter) WriteModel(d Dict, opts WriteOptions) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	return WriteTo(w.file, d, opts)
}

// Close closes the writer and the underlying file.
func (w *DPWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// WriteTo encodes d in .dp format to writer.
//
// Layout:
//
//	0x00-0x03  magic "DPMD"
//	0x04-0x07  version (uint32 LE)
//	0x08-0x0B  flags (uint32 LE)
//	0x0C-0x0F  reserved
//	0x10-0x17  header size (uint64 LE)
//	0x18-0x1F  data size (uint64 LE)
//	0x20-0x3F  SHA-256 of the data section
//	0x40-      JSON header, zero padding to 64 bytes, float64 LE array data
func WriteTo(writer io.Writer, d Dict, opts WriteOptions) error {
	tree, order, arrays := flattenTree(d)
	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}

	header := Header{
		FormatVersion:   FormatVersion,
		Software:        SoftwareName,
		SoftwareVersion: SoftwareVersion,
		ModelID:         uuid.NewString(),
		Backend:         opts.Backend,
		CreatedAt:       time.Now().UTC(),
		Tensors:         make([]TensorMeta, 0, len(order)),
		Metadata:        opts.Metadata,
		Tree:            treeJSON,
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	// Calculate tensor offsets and collect tensor data
	var currentOffset int64
	var tensorDataBuf []byte
	for _, name := range order {
		raw := arrays[name]
		size := int64(raw.NumElements() * Float64Size)
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  DTypeFloat64,
			Shape:  []int(raw.Shape().Clone()),
			Offset: currentOffset,
			Size:   size,
		})
		currentOffset += size
		tensorDataBuf = appendFloat64s(tensorDataBuf, raw.Data())
	}

	checksum := ComputeChecksum(tensorDataBuf)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	headerSize := uint64(len(headerJSON))
	dataSize := uint64(len(tensorDataBuf))

	fixedHeader := make([]byte, FixedHeaderSize)
	copy(fixedHeader[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersion))
	flags := uint32(0)
	if len(opts.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixedHeader[8:12], flags)
	binary.LittleEndian.PutUint64(fixedHeader[16:24], headerSize)
	binary.LittleEndian.PutUint64(fixedHeader[24:32], dataSize)
	copy(fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := writer.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := writer.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	padding := alignPadding(int64(FixedHeaderSize) + int64(headerSize))
	if padding > 0 {
		if _, err := writer.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := writer.Write(tensorDataBuf); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

func alignPadding(pos int64) int64 {
	return (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment
}

func appendFloat64s(buf []byte, data []float64) []byte {
	var scratch [Float64Size]byte
	for _, v := range data {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		buf = append(buf, scratch[:]...)
	}
	return buf
}

func decodeFloat64s(dst []float64, buf []byte) {
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*Float64Size:]))
	}
}
