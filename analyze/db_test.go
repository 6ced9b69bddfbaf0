package analyze

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobPathIndex(t *testing.T) {
	index, err := newBlobPathIndex()
	require.NoError(t, err)
	path := index.path

	require.NoError(t, index.Observe(map[string][]byte{
		"aaaa": []byte("dir/one.txt"),
	}))
	require.NoError(t, index.Observe(map[string][]byte{
		"aaaa": []byte("dir/two.txt"),
		"bbbb": []byte("other.bin"),
	}))

	seen := make(map[string]uint64)
	examples := make(map[string]string)
	require.NoError(t, index.ForEach(func(oid string, count uint64, example string) error {
		seen[oid] = count
		examples[oid] = example
		return nil
	}))

	assert.Equal(t, uint64(2), seen["aaaa"])
	assert.Equal(t, uint64(1), seen["bbbb"])
	// the first sighting's path is kept as the example
	assert.Equal(t, "dir/one.txt", examples["aaaa"])
	assert.Equal(t, "dir/one.txt", index.Example("aaaa"))
	assert.Equal(t, "", index.Example("missing"))

	require.NoError(t, index.Close())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "temp db must be removed on close")
}
