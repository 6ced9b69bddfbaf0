package analyze

import (
	"encoding/binary"
	"os"

	"go.etcd.io/bbolt"
)

const blobPathBucket = "blob-paths"

// blobPathIndex maps blob oids to the number of filechange sites they appear
// at and one example path. Histories can reference millions of blobs, so
// the index lives in a throwaway bolt database instead of process memory.
type blobPathIndex struct {
	db   *bbolt.DB
	path string
}

// tempfile provides a temporary file, adopted from the example on [bbolt doc]
//
// [bbolt doc]: https://pkg.go.dev/go.etcd.io/bbolt#example-DB.Begin
func tempfile() (string, error) {
	f, err := os.CreateTemp("", "gitfilter-analyze-")
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Remove(f.Name()); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func newBlobPathIndex() (*blobPathIndex, error) {
	path, err := tempfile()
	if err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	return &blobPathIndex{db: db, path: path}, nil
}

func (x *blobPathIndex) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	err := x.db.Close()
	if rmErr := os.Remove(x.path); err == nil {
		err = rmErr
	}
	return err
}

// record encoding: 8-byte big-endian path count, then the example path.
func encodeEntry(count uint64, example []byte) []byte {
	out := make([]byte, 8+len(example))
	binary.BigEndian.PutUint64(out, count)
	copy(out[8:], example)
	return out
}

func decodeEntry(v []byte) (count uint64, example []byte) {
	if len(v) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(v), v[8:]
}

// Observe records one (oid, path) sighting. Repeated sightings of the same
// path under the same oid still count: duplicate-path detection wants the
// number of filechange sites, matching how checkout cost scales.
func (x *blobPathIndex) Observe(batch map[string][]byte) error {
	return x.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(blobPathBucket))
		if err != nil {
			return err
		}
		for oid, path := range batch {
			count, example := decodeEntry(b.Get([]byte(oid)))
			if example == nil {
				example = path
			}
			if err := b.Put([]byte(oid), encodeEntry(count+1, example)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ForEach visits every indexed blob.
func (x *blobPathIndex) ForEach(fn func(oid string, count uint64, example string) error) error {
	return x.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(blobPathBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			count, example := decodeEntry(v)
			return fn(string(k), count, string(example))
		})
	})
}

// Example returns the example path of an oid, or "".
func (x *blobPathIndex) Example(oid string) string {
	var out string
	_ = x.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(blobPathBucket))
		if b == nil {
			return nil
		}
		_, example := decodeEntry(b.Get([]byte(oid)))
		out = string(example)
		return nil
	})
	return out
}
