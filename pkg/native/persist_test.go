package native

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lispc/lispc/pkg/vm"
)

func storeCall(t *testing.T, machine *vm.VM, name string, args ...vm.Object) (vm.Object, error) {
	t.Helper()
	cell, ok := machine.Globals()[name]
	require.True(t, ok, "native %q not registered", name)
	return machine.Call(cell.Get().(*vm.FunctionObject), args)
}

func TestGlobalStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := OpenGlobalStore("")
	require.NoError(t, err)
	defer store.Close()

	machine := vm.NewVM(vm.NewConstantPool())
	store.Register(machine)

	ok, err := storeCall(t, machine, "db-save!", str("greeting"), str("hello"))
	require.NoError(t, err)
	require.IsType(t, &vm.TrueObject{}, ok)

	val, err := storeCall(t, machine, "db-load", str("greeting"))
	require.NoError(t, err)
	require.Equal(t, str("hello"), val)
}

func TestGlobalStoreOverwrite(t *testing.T) {
	store, err := OpenGlobalStore("")
	require.NoError(t, err)
	defer store.Close()

	machine := vm.NewVM(vm.NewConstantPool())
	store.Register(machine)

	_, err = storeCall(t, machine, "db-save!", str("k"), str("v1"))
	require.NoError(t, err)
	_, err = storeCall(t, machine, "db-save!", str("k"), str("v2"))
	require.NoError(t, err)

	val, err := storeCall(t, machine, "db-load", str("k"))
	require.NoError(t, err)
	require.Equal(t, str("v2"), val)
}

func TestGlobalStoreMissingKeyIsNil(t *testing.T) {
	store, err := OpenGlobalStore("")
	require.NoError(t, err)
	defer store.Close()

	machine := vm.NewVM(vm.NewConstantPool())
	store.Register(machine)

	val, err := storeCall(t, machine, "db-load", str("absent"))
	require.NoError(t, err)
	require.IsType(t, &vm.NilObject{}, val)
}

func TestGlobalStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "globals.db")

	store, err := OpenGlobalStore(path)
	require.NoError(t, err)
	machine := vm.NewVM(vm.NewConstantPool())
	store.Register(machine)
	_, err = storeCall(t, machine, "db-save!", str("counter"), str("41"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenGlobalStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	machine2 := vm.NewVM(vm.NewConstantPool())
	reopened.Register(machine2)

	val, err := storeCall(t, machine2, "db-load", str("counter"))
	require.NoError(t, err)
	require.Equal(t, str("41"), val)
}
