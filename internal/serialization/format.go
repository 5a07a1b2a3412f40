package serialization

import (
	"encoding/json"
	"time"
)

// Format constants.
const (
	MagicBytes       = "DPMD"
	FormatVersion    = 1
	HeaderAlignment  = 64   // Align tensor data to 64 bytes
	FixedHeaderSize  = 64   // fixed header size (0x40 bytes)
	ChecksumSize     = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset   = 0x20 // Checksum offset in the fixed header
	Float64Size      = 8
	SoftwareName     = "deepmd-kit"
	SoftwareVersion  = "3.0.0-go"
	tensorRefKey     = "@tensor"
	DTypeFloat64     = "float64"
	ndarrayClassName = "np.ndarray"
)

// Flags for the .dp format.
const (
	FlagHasMetadata uint32 = 1 << 0 // bit 0: custom metadata included
)

// Header represents the JSON header in a .dp file.
type Header struct {
	FormatVersion   int               `json:"format_version"`
	Software        string            `json:"software"`
	SoftwareVersion string            `json:"software_version"`
	ModelID         string            `json:"model_id"`
	Backend         string            `json:"backend,omitempty"` // Backend the model was written from
	CreatedAt       time.Time         `json:"created_at"`
	Tensors         []TensorMeta      `json:"tensors"`
	Metadata        map[string]string `json:"metadata"`
	Tree            json.RawMessage   `json:"tree"` // Serialized dictionary with arrays replaced by references
}

// TensorMeta describes an array in the .dp file.
type TensorMeta struct {
	Name   string `json:"name"`   // Dotted path of the array in the tree
	DType  string `json:"dtype"`  // Always "float64"
	Shape  []int  `json:"shape"`  // Array shape
	Offset int64  `json:"offset"` // Offset in the data section (bytes from start of tensor data)
	Size   int64  `json:"size"`   // Size in bytes
}

// WriteOptions carries the optional header fields of a model file.
type WriteOptions struct {
	Backend  string
	Metadata map[string]string
}
