package workspace

import "bytes"
import "compress/lzw"
import "io"
import "os"
import "path/filepath"

import "github.com/pkg/errors"

// Ext is appended to checkpoint names in a directory workspace.
const Ext = ".lzw"

// Dir is a directory workspace.
type Dir struct {
	root string
}

// OpenDir creates the directory if needed.
func OpenDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "workspace %q", root)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(name string) string {
	return filepath.Join(d.root, name+Ext)
}

// Save writes the compressed blob to a temporary file and renames it over
// the previous checkpoint.
func (d *Dir) Save(name string, blob []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	file, err := os.CreateTemp(d.root, name+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "save %q", name)
	}
	tmp := file.Name()
	err = writeCompressed(file, blob)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, d.path(name))
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "save %q", name)
	}
	return nil
}

func writeCompressed(w io.Writer, blob []byte) error {
	lw := lzw.NewWriter(w, lzw.LSB, 8)
	if _, err := lw.Write(blob); err != nil {
		lw.Close()
		return err
	}
	return lw.Close()
}

func (d *Dir) Load(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	file, err := os.Open(d.path(name))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "%q in %s", name, d.root)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %q", name)
	}
	defer file.Close()

	lr := lzw.NewReader(file, lzw.LSB, 8)
	defer lr.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, lr); err != nil {
		return nil, errors.Wrapf(err, "load %q", name)
	}
	return buf.Bytes(), nil
}

func (d *Dir) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(d.path(name))
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrNotFound, "%q in %s", name, d.root)
	}
	return errors.Wrapf(err, "remove %q", name)
}

func (d *Dir) Exists(name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(d.path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %q", name)
	}
	return true, nil
}

func (d *Dir) Close() error {
	return nil
}

// Root returns the directory.
func (d *Dir) Root() string {
	return d.root
}
