package serialization

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Yi-FanLi/deepmd-kit/internal/tensor"
)

// Model file extensions understood by SaveModel and LoadModel.
const (
	ExtDP   = ".dp"
	ExtYAML = ".yaml"
	ExtYML  = ".yml"
)

// SaveModel writes d to path, choosing the format from the extension.
func SaveModel(path string, d Dict, opts WriteOptions) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtDP:
		w, err := NewDPWriter(path)
		if err != nil {
			return err
		}
		if err := w.WriteModel(d, opts); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	case ExtYAML, ExtYML:
		data, err := MarshalYAML(d)
		if err != nil {
			return err
		}
		//nolint:gosec // G306: model files are not secret
		return os.WriteFile(path, data, 0o644)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownExtension, path)
	}
}

// LoadModel reads a model file written by SaveModel.
func LoadModel(path string) (Dict, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtDP:
		r, err := NewDPReader(path)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.ReadModel()
	case ExtYAML, ExtYML:
		//nolint:gosec // G304: File path comes from user input, which is expected for model loading
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return DecodeYAML(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtension, path)
	}
}

// SaveArray writes a single array as a one-tensor .dp file.
func SaveArray(path string, t *tensor.RawTensor) error {
	var buf bytes.Buffer
	if err := WriteTo(&buf, Dict{"value": t}, WriteOptions{}); err != nil {
		return err
	}
	//nolint:gosec // G306: cached statistics are not secret
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadArray reads a file written by SaveArray.
func LoadArray(path string) (*tensor.RawTensor, error) {
	//nolint:gosec // G304: path is inside the statistics cache
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	d, _, err := ReadFrom(bytes.NewReader(data), ReaderOptions{ValidationLevel: ValidationStrict})
	if err != nil {
		return nil, err
	}
	return d.Array("value")
}
