// Package workspace stores named model checkpoints. A directory workspace
// keeps one lzw compressed file per name; a workspace path ending in ".db"
// keeps all checkpoints in a single bolt database.
package workspace

import "path/filepath"
import "strings"

import "github.com/pkg/errors"

// ErrNotFound is returned when loading or removing a name that was never
// saved.
var ErrNotFound = errors.New("checkpoint not found")

// Store is a set of named checkpoints. Every Save replaces the previous
// blob of that name atomically: a failed Save leaves the old blob intact.
type Store interface {
	Save(name string, blob []byte) error
	Load(name string) ([]byte, error)
	Remove(name string) error
	Exists(name string) (bool, error)
	Close() error
}

// Open opens or creates the workspace at location.
func Open(location string) (Store, error) {
	if strings.EqualFold(filepath.Ext(location), ".db") {
		return OpenBolt(location)
	}
	return OpenDir(location)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.Errorf("invalid checkpoint name %q", name)
	}
	return nil
}
