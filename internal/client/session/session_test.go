package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type brokenStorage struct{}

func (brokenStorage) Load(string) (string, error) { return "", errors.New("disk gone") }
func (brokenStorage) Save(string, string) error   { return errors.New("disk gone") }

func TestManagerPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	first := NewManager(NewFileStorage(path)).ID()
	_, err := uuid.Parse(first)
	require.NoError(t, err)

	second := NewManager(NewFileStorage(path)).ID()
	require.Equal(t, first, second)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), StorageKey)
}

func TestManagerStableWithinContext(t *testing.T) {
	storage := NewMemoryStorage()
	m := NewManager(storage)
	require.Equal(t, m.ID(), m.ID())

	stored, err := storage.Load(StorageKey)
	require.NoError(t, err)
	require.Equal(t, m.ID(), stored)
}

func TestManagerDegradesWithoutStorage(t *testing.T) {
	for name, storage := range map[string]Storage{"nil": nil, "broken": brokenStorage{}} {
		t.Run(name, func(t *testing.T) {
			m := NewManager(storage)
			id := m.ID()
			require.NotEmpty(t, id)
			require.Equal(t, id, m.ID())

			other := NewManager(storage).ID()
			require.NotEqual(t, id, other)
		})
	}
}

func TestFileStorageCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewFileStorage(path)
	_, err := s.Load(StorageKey)
	require.Error(t, err)

	id := NewManager(s).ID()
	got, err := s.Load(StorageKey)
	require.NoError(t, err)
	require.Equal(t, id, got)
}
