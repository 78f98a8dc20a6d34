package util

import (
	"io/ioutil"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestMapFile(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	name := tempDir + "/blob"
	assert.NoError(t, ioutil.WriteFile(name, []byte("hello"), 0666))
	m, err := MapFile(name)
	assert.NoError(t, err)
	expect.EQ(t, string(m.Data), "hello")
	assert.NoError(t, m.Close())

	assert.NoError(t, ioutil.WriteFile(name, nil, 0666))
	m, err = MapFile(name)
	assert.NoError(t, err)
	expect.EQ(t, len(m.Data), 0)
	assert.NoError(t, m.Close())
}

func TestUint64Blobs(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	name := tempDir + "/ints"
	values := []uint64{0, 1, 1 << 40, ^uint64(0)}
	assert.NoError(t, WriteUint64s(name, values))
	m, err := MapFile(name)
	assert.NoError(t, err)
	back, err := Uint64s(m.Data)
	assert.NoError(t, err)
	expect.EQ(t, back, values)

	_, err = Uint64s([]byte{1, 2, 3})
	expect.NotNil(t, err)
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("abc"))
	b := Checksum([]byte("abd"))
	expect.True(t, a != b)
	expect.EQ(t, a, Checksum([]byte("abc")))
}
