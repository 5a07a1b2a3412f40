package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// DPReader reads models from .dp format.
type DPReader struct {
	file       *os.File
	header     Header
	flags      uint32
	dataOffset int64    // Offset where tensor data starts
	dataSize   int64    // Size of the data section
	checksum   [32]byte // SHA-256 checksum of the data section
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures the behavior of DPReader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// NewDPReader creates a new .dp file reader with default options (strict validation).
func NewDPReader(path string) (*DPReader, error) {
	return NewDPReaderWithOptions(path, ReaderOptions{
		ValidationLevel: ValidationStrict,
	})
}

// NewDPReaderWithOptions creates a new .dp file reader with custom options.
func NewDPReaderWithOptions(path string, opts ReaderOptions) (*DPReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader := &DPReader{file: file, opts: opts}
	if err := reader.parseHeader(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if err := ValidateHeader(&reader.header, reader.dataSize, opts.ValidationLevel); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return reader, nil
}

type fixedHeader struct {
	version    uint32
	flags      uint32
	headerSize uint64
	dataSize   uint64
	checksum   [32]byte
}

func parseFixedHeader(buf []byte) (fixedHeader, error) {
	var fh fixedHeader
	if string(buf[0:4]) != MagicBytes {
		return fh, fmt.Errorf("%w: got %q, expected %q", ErrInvalidMagic, string(buf[0:4]), MagicBytes)
	}
	fh.version = binary.LittleEndian.Uint32(buf[4:8])
	if fh.version != FormatVersion {
		return fh, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, fh.version, FormatVersion)
	}
	fh.flags = binary.LittleEndian.Uint32(buf[8:12])
	fh.headerSize = binary.LittleEndian.Uint64(buf[16:24])
	fh.dataSize = binary.LittleEndian.Uint64(buf[24:32])
	copy(fh.checksum[:], buf[ChecksumOffset:ChecksumOffset+ChecksumSize])
	if fh.headerSize > MaxHeaderSize {
		return fh, ErrHeaderTooLarge
	}
	return fh, nil
}

// parseHeader reads and parses the .dp file header.
func (r *DPReader) parseHeader() error {
	buf := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, buf); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}
	fh, err := parseFixedHeader(buf)
	if err != nil {
		return err
	}
	r.flags = fh.flags
	r.checksum = fh.checksum

	headerBytes := make([]byte, fh.headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize checked against MaxHeaderSize
	currentPos := int64(FixedHeaderSize) + int64(fh.headerSize)
	r.dataOffset = currentPos + alignPadding(currentPos)
	//nolint:gosec // G115: data size of a model file fits in int64
	r.dataSize = int64(fh.dataSize)

	if !r.opts.SkipChecksumValidation {
		tensorData := make([]byte, fh.dataSize)
		if _, err := r.file.Seek(r.dataOffset, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to tensor data: %w", err)
		}
		if _, err := io.ReadFull(r.file, tensorData); err != nil {
			return fmt.Errorf("failed to read tensor data for checksum: %w", err)
		}
		if err := ValidateChecksum(ComputeChecksum(tensorData), r.checksum); err != nil {
			return err
		}
	}
	return nil
}

// Header returns the file header.
func (r *DPReader) Header() Header {
	return r.header
}

// Metadata returns the metadata map from the header.
func (r *DPReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns a list of all tensor names in the file.
func (r *DPReader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *DPReader) TensorInfo(name string) (*TensorMeta, error) {
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return &meta, nil
		}
	}
	return nil, fmt.Errorf("tensor %s not found", name)
}

// LoadTensor loads a single tensor from the file.
func (r *DPReader) LoadTensor(name string) (*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	if _, err := r.file.Seek(r.dataOffset+meta.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to tensor data: %w", err)
	}
	data := make([]byte, meta.Size)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	return decodeTensor(*meta, data)
}

// ReadModel reads the whole component tree.
func (r *DPReader) ReadModel() (Dict, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}
	return buildTree(r.header, r.LoadTensor)
}

// Close closes the reader and the underlying file.
func (r *DPReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

func decodeTensor(meta TensorMeta, data []byte) (*tensor.RawTensor, error) {
	if meta.DType != DTypeFloat64 {
		return nil, fmt.Errorf("unsupported dtype: %s", meta.DType)
	}
	shape := tensor.Shape(meta.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", meta.Name, err)
	}
	if int64(shape.NumElements()*Float64Size) != int64(len(data)) {
		return nil, fmt.Errorf("%w: tensor %s has %d bytes for shape %v", ErrOutOfBounds, meta.Name, len(data), shape)
	}
	raw, err := tensor.NewRaw(shape)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}
	decodeFloat64s(raw.Data(), data)
	return raw, nil
}

func buildTree(header Header, load func(string) (*tensor.RawTensor, error)) (Dict, error) {
	dec := json.NewDecoder(bytes.NewReader(header.Tree))
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to parse tree: %w", err)
	}
	inflated, err := inflateTree(tree, load)
	if err != nil {
		return nil, err
	}
	d, ok := inflated.(Dict)
	if !ok {
		return nil, fmt.Errorf("%w: model tree root must be a dictionary", ErrTypeMismatch)
	}
	return d, nil
}

// ReadFrom decodes a .dp stream written by WriteTo.
func ReadFrom(reader io.Reader, opts ReaderOptions) (Dict, Header, error) {
	buf := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read fixed header: %w", err)
	}
	fh, err := parseFixedHeader(buf)
	if err != nil {
		return nil, Header{}, err
	}

	headerBytes := make([]byte, fh.headerSize)
	if _, err := io.ReadFull(reader, headerBytes); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize checked against MaxHeaderSize
	padding := alignPadding(int64(FixedHeaderSize) + int64(fh.headerSize))
	if padding > 0 {
		if _, err := io.ReadFull(reader, make([]byte, padding)); err != nil {
			return nil, Header{}, fmt.Errorf("failed to read padding: %w", err)
		}
	}

	data := make([]byte, fh.dataSize)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(data), fh.checksum); err != nil {
			return nil, Header{}, err
		}
	}
	//nolint:gosec // G115: data size of a model file fits in int64
	if err := ValidateHeader(&header, int64(fh.dataSize), opts.ValidationLevel); err != nil {
		return nil, Header{}, fmt.Errorf("validation failed: %w", err)
	}

	load := func(name string) (*tensor.RawTensor, error) {
		for _, meta := range header.Tensors {
			if meta.Name == name {
				if meta.Offset < 0 || meta.Size < 0 || meta.Offset+meta.Size > int64(len(data)) {
					return nil, fmt.Errorf("%w: tensor %s", ErrOutOfBounds, name)
				}
				return decodeTensor(meta, data[meta.Offset:meta.Offset+meta.Size])
			}
		}
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	d, err := buildTree(header, load)
	if err != nil {
		return nil, Header{}, err
	}
	return d, header, nil
}
