// Package serialization defines the backend-neutral serialized form of
// descriptors, fittings and models, and the files it is stored in.
//
// A component serializes to a Dict: a tree of scalars, lists, nested
// dictionaries and float64 arrays, carrying "@class", "type" and "@version"
// keys. Two file formats hold such a tree:
//
//	.dp   binary container
//	  [64 bytes: fixed header, magic "DPMD", sizes, SHA-256 of data]
//	  [Header: JSON metadata plus the tree with arrays replaced by references]
//	  [Array data: float64 little-endian, 64-byte aligned]
//
//	.yaml / .yml
//	  the tree as YAML, arrays written as np.ndarray dictionaries
//
// Example usage:
//
//	d, err := desc.Serialize()
//	if err != nil {
//	    return err
//	}
//	if err := serialization.SaveModel("model.dp", d, serialization.WriteOptions{Backend: "cpu"}); err != nil {
//	    return err
//	}
//	loaded, err := serialization.LoadModel("model.dp")
package serialization
