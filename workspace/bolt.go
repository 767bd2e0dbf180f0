package workspace

import "time"

import "github.com/boltdb/bolt"
import "github.com/pkg/errors"

var checkpoints = []byte("checkpoints")

// Bolt is a workspace inside a single bolt database file.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database. It fails after a second if another
// process holds the file.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "workspace %q", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpoints)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "workspace %q", path)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Save(name string, blob []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpoints).Put([]byte(name), blob)
	})
	return errors.Wrapf(err, "save %q", name)
}

func (b *Bolt) Load(name string) (blob []byte, err error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(checkpoints).Get([]byte(name))
		if v == nil {
			return errors.Wrapf(ErrNotFound, "%q in %s", name, b.db.Path())
		}
		// v is only valid inside the transaction
		blob = append([]byte(nil), v...)
		return nil
	})
	return blob, err
}

func (b *Bolt) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(checkpoints)
		if bucket.Get([]byte(name)) == nil {
			return errors.Wrapf(ErrNotFound, "%q in %s", name, b.db.Path())
		}
		return errors.Wrapf(bucket.Delete([]byte(name)), "remove %q", name)
	})
}

func (b *Bolt) Exists(name string) (found bool, err error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	err = b.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(checkpoints).Get([]byte(name)) != nil
		return nil
	})
	return found, err
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
