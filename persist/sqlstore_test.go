package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/typegraph/attrs"
	"github.com/teranos/typegraph/errors"
)

func TestSQLiteRoundTrip(t *testing.T) {
	m := buildFixture(t)
	path := filepath.Join(t.TempDir(), "graph"+SQLiteExtension)

	s, err := OpenStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(m))
	require.NoError(t, s.Close())

	s2, err := OpenStore(path, nil)
	require.NoError(t, err)
	defer s2.Close()
	m2, err := s2.Load()
	require.NoError(t, err)

	assert.Equal(t, m.GUID(), m2.GUID())
	person := one(t, m2, "person")
	alice := one(t, m2, "alice")
	bob := one(t, m2, "bob")

	assert.True(t, alice.Isa(person))
	assert.False(t, bob.Isa(alice))
	assert.EqualValues(t, 42, alice.Attrs().Get("minSize"))
	assert.Equal(t, attrs.Set{"a", "b"}, person.Attrs().Get("tags"))

	err = alice.Attrs().Set("shape", "Blob")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestSQLiteSaveReplacesSnapshot(t *testing.T) {
	m := buildFixture(t)
	path := filepath.Join(t.TempDir(), "graph"+SQLiteExtension)

	s, err := OpenStore(path, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Save(m))

	one(t, m, "bob").Delete()
	require.NoError(t, s.Save(m))

	m2, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, m2.FindByLabel("bob"))
	assert.Len(t, m2.FindByLabel("alice"), 1)
}

func TestSQLiteLoadEmptyStore(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "empty"+SQLiteExtension), nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load()
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestFileDispatchByExtension(t *testing.T) {
	dir := t.TempDir()
	m := buildFixture(t)

	for _, name := range []string{"g" + XMLExtension, "g" + SQLiteExtension} {
		path := filepath.Join(dir, name)
		require.NoError(t, SaveFile(path, m, nil))
		m2, err := LoadFile(path, nil)
		require.NoError(t, err, name)
		assert.Equal(t, m.GUID(), m2.GUID(), name)
	}

	_, err := LoadFile(filepath.Join(dir, "g.json"), nil)
	assert.Error(t, err)
	err = SaveFile(filepath.Join(dir, "g.json"), m, nil)
	assert.Error(t, err)
}
