package net

import "encoding"

import "github.com/pkg/errors"

// BlobStore holds named opaque blobs. workspace.Store satisfies it.
type BlobStore interface {
	Save(name string, blob []byte) error
	Load(name string) ([]byte, error)
}

// SaveTo serializes m and stores it under name.
func SaveTo(s BlobStore, name string, m encoding.BinaryMarshaler) error {
	blob, err := m.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "serialize %q", name)
	}
	return errors.Wrapf(s.Save(name, blob), "save %q", name)
}

// LoadFrom replaces the parameters of m with the blob stored under name.
func LoadFrom(s BlobStore, name string, m encoding.BinaryUnmarshaler) error {
	blob, err := s.Load(name)
	if err != nil {
		return errors.Wrapf(err, "load %q", name)
	}
	return errors.Wrapf(m.UnmarshalBinary(blob), "deserialize %q", name)
}
