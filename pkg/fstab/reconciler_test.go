package fstab

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/mount-utils"

	"github.com/volutil/volutil/pkg/types"
	"github.com/volutil/volutil/utils/exec"
)

type noHolders struct{}

func (noHolders) Holders(string) ([]Holder, error) { return nil, nil }

func yes(string) bool { return true }
func no(string) bool  { return false }

func newTestReconciler(t *testing.T, tableContent string, mounter mount.Interface, decide types.DecideFunc) (*Reconciler, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fstab")
	require.NoError(t, os.WriteFile(path, []byte(tableContent), 0644))
	return &Reconciler{
		TablePath: path,
		Mounter:   mounter,
		Executor:  &exec.FakeExecutor{},
		Holders:   noHolders{},
		Decide:    decide,
	}, path
}

func TestBindIsIdempotent(t *testing.T) {
	a := assert.New(t)
	mounter := mount.NewFakeMounter(nil)
	r, path := newTestReconciler(t, "", mounter, yes)
	target := filepath.Join(t.TempDir(), "data")

	outcome, err := r.Bind("abcd-1234", target, "ext4", true)
	a.NoError(err)
	a.Equal(types.OutcomeDone, outcome)

	outcome, err = r.Bind("abcd-1234", target, "ext4", true)
	a.NoError(err)
	a.Equal(types.OutcomeAlreadySatisfied, outcome)

	data, err := os.ReadFile(path)
	a.NoError(err)
	active := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, "UUID=abcd-1234") && strings.Contains(line, target) && !strings.HasPrefix(line, "#") {
			active++
		}
	}
	a.Equal(1, active, "exactly one active entry expected")
}

func TestBindMountsByUUIDWithNofail(t *testing.T) {
	a := assert.New(t)
	mounter := mount.NewFakeMounter(nil)
	r, path := newTestReconciler(t, "", mounter, yes)
	target := filepath.Join(t.TempDir(), "data")

	_, err := r.Bind("abcd-1234", target, "ext4", true)
	a.NoError(err)

	logs := mounter.GetLog()
	a.Len(logs, 1)
	a.Equal("mount", logs[0].Action)

	data, err := os.ReadFile(path)
	a.NoError(err)
	a.Contains(string(data), "UUID=abcd-1234 "+target+" ext4 defaults,nofail 0 2")
}

func TestBindSkipsPersistenceWhenPathTaken(t *testing.T) {
	a := assert.New(t)
	target := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(target, 0755))
	mounter := mount.NewFakeMounter(nil)
	r, path := newTestReconciler(t, "UUID=other-uuid "+target+" ext4 defaults,nofail 0 2\n", mounter, yes)

	_, err := r.Bind("abcd-1234", target, "ext4", true)
	a.NoError(err)

	data, err := os.ReadFile(path)
	a.NoError(err)
	a.NotContains(string(data), "UUID=abcd-1234")
}

func TestUnmountNotMountedIsNoop(t *testing.T) {
	a := assert.New(t)
	target := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(target, 0755))
	mounter := mount.NewFakeMounter(nil)
	r, _ := newTestReconciler(t, "", mounter, no)

	outcome, err := r.Unmount(target)
	a.NoError(err)
	a.Equal(types.OutcomeAlreadySatisfied, outcome)
}

func TestUnmountBusyDeclinedLazyFails(t *testing.T) {
	a := assert.New(t)
	target := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(target, 0755))

	mounter := mount.NewFakeMounter([]mount.MountPoint{{Device: "/dev/sdb1", Path: target}})
	mounter.UnmountFunc = func(path string) error {
		return errors.New("umount: " + path + ": target is busy")
	}
	r, _ := newTestReconciler(t, "", mounter, no)

	outcome, err := r.Unmount(target)
	a.Error(err)
	a.Equal(types.OutcomeFailed, outcome)
	a.Contains(err.Error(), "lazy unmount was declined")
}

func TestUnmountBusyConfirmedFallsBackToLazy(t *testing.T) {
	a := assert.New(t)
	target := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(target, 0755))

	mounter := mount.NewFakeMounter([]mount.MountPoint{{Device: "/dev/sdb1", Path: target}})
	mounter.UnmountFunc = func(path string) error {
		return errors.New("umount: " + path + ": target is busy")
	}
	fake := &exec.FakeExecutor{}
	r, _ := newTestReconciler(t, "", mounter, yes)
	r.Executor = fake

	outcome, err := r.Unmount(target)
	a.NoError(err)
	a.Equal(types.OutcomeDone, outcome)
	a.True(fake.Ran("umount -l "+target), "expected a lazy unmount, got %v", fake.Commands)
}

func TestClearPersistence(t *testing.T) {
	a := assert.New(t)
	mounter := mount.NewFakeMounter(nil)
	r, path := newTestReconciler(t, `UUID=abcd-1234 /mnt/data ext4 defaults,nofail 0 2
`, mounter, yes)

	outcome, backup, err := r.ClearPersistence("abcd-1234", "/dev/sdb1", "/mnt/data")
	a.NoError(err)
	a.Equal(types.OutcomeDone, outcome)
	a.FileExists(backup)

	outcome, _, err = r.ClearPersistence("abcd-1234", "/dev/sdb1", "/mnt/data")
	a.NoError(err)
	a.Equal(types.OutcomeAlreadySatisfied, outcome)

	data, err := os.ReadFile(path)
	a.NoError(err)
	a.Contains(string(data), "# volutil-retired: UUID=abcd-1234")
}
