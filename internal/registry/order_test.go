package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/btkvm/internal/registry"
)

func TestLoadOrderStoreMissingFile(t *testing.T) {
	s, err := registry.LoadOrderStore(filepath.Join(t.TempDir(), "nope", "order.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "", s.ActiveClient())
	assert.Equal(t, -1, s.Index(addrA))
}

func TestLoadOrderStoreNormalizesAddresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`activeClient: bb:bb:bb:bb:bb:bb
clients:
  aa:aa:aa:aa:aa:aa: 1
  BB:BB:BB:BB:BB:BB: 0
`), 0o644))

	s, err := registry.LoadOrderStore(path)
	require.NoError(t, err)
	assert.Equal(t, addrB, s.ActiveClient())
	assert.Equal(t, 1, s.Index(addrA))
	assert.Equal(t, 0, s.Index("bb:bb:bb:bb:bb:bb"))
}

func TestLoadOrderStoreInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clients: [1, 2"), 0o644))
	_, err := registry.LoadOrderStore(path)
	assert.Error(t, err)
}

func TestOrderStoreSort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.yaml")
	s, err := registry.LoadOrderStore(path)
	require.NoError(t, err)

	assert.Equal(t, []string{addrB, addrA}, s.Sort([]string{addrB, addrA}))
	assert.Equal(t, 0, s.Index(addrB))
	assert.Equal(t, 1, s.Index(addrA))

	assert.Equal(t, []string{addrB, addrA, addrC}, s.Sort([]string{addrC, addrA, addrB}))

	_, err = os.Stat(path)
	assert.NoError(t, err, "new positions are persisted")
}

func TestOrderStoreSetOrderKeepsUnlisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.yaml")
	s, err := registry.LoadOrderStore(path)
	require.NoError(t, err)
	s.Sort([]string{addrA, addrB, addrC})

	require.NoError(t, s.SetOrder([]string{addrC, addrA}))
	assert.Equal(t, 0, s.Index(addrC))
	assert.Equal(t, 1, s.Index(addrA))
	assert.Equal(t, 2, s.Index(addrB))

	require.NoError(t, s.SetActiveClient("cc:cc:cc:cc:cc:cc"))
	reloaded, err := registry.LoadOrderStore(path)
	require.NoError(t, err)
	assert.Equal(t, addrC, reloaded.ActiveClient())
	assert.Equal(t, 0, reloaded.Index(addrC))
}

func TestOrderStoreWithoutPathDoesNotWrite(t *testing.T) {
	s, err := registry.LoadOrderStore("")
	require.NoError(t, err)
	s.Sort([]string{addrA})
	require.NoError(t, s.SetActiveClient(addrA))
	assert.Equal(t, addrA, s.ActiveClient())
}
