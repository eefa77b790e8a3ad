package share

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volutil/volutil/pkg/types"
	"github.com/volutil/volutil/utils/exec"
)

func newExportsReconciler(t *testing.T, content string) (*ExportsReconciler, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exports")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return &ExportsReconciler{Path: path, Executor: &exec.FakeExecutor{}}, path
}

func TestExportIsIdempotent(t *testing.T) {
	a := assert.New(t)
	r, path := newExportsReconciler(t, "")

	outcome, err := r.Export("/mnt/data", "*(rw,sync,no_subtree_check)")
	a.NoError(err)
	a.Equal(types.OutcomeDone, outcome)

	outcome, err = r.Export("/mnt/data", "*(rw,sync,no_subtree_check)")
	a.NoError(err)
	a.Equal(types.OutcomeAlreadySatisfied, outcome)

	data, err := os.ReadFile(path)
	a.NoError(err)
	active := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "/mnt/data ") {
			active++
		}
	}
	a.Equal(1, active)
}

func TestExportKeysOnExactPath(t *testing.T) {
	a := assert.New(t)
	r, _ := newExportsReconciler(t, "/mnt/data *(ro)\n")

	outcome, err := r.Export("/mnt/data2", "*(rw)")
	a.NoError(err)
	a.Equal(types.OutcomeDone, outcome)

	exports, err := r.ActiveExports()
	a.NoError(err)
	a.Len(exports, 2)
}

func TestUnexportRetiresLine(t *testing.T) {
	a := assert.New(t)
	r, path := newExportsReconciler(t, "/mnt/data *(rw,sync)\n/mnt/keep *(ro)\n")

	outcome, err := r.Unexport("/mnt/data")
	a.NoError(err)
	a.Equal(types.OutcomeDone, outcome)

	data, err := os.ReadFile(path)
	a.NoError(err)
	a.Contains(string(data), "# volutil-retired: /mnt/data *(rw,sync)")
	a.Contains(string(data), "/mnt/keep *(ro)")

	// second retract is a no-op
	outcome, err = r.Unexport("/mnt/data")
	a.NoError(err)
	a.Equal(types.OutcomeAlreadySatisfied, outcome)
}

func TestExportAfterUnexportAddsFreshLine(t *testing.T) {
	a := assert.New(t)
	r, _ := newExportsReconciler(t, "")

	_, err := r.Export("/mnt/data", "*(rw)")
	a.NoError(err)
	_, err = r.Unexport("/mnt/data")
	a.NoError(err)
	outcome, err := r.Export("/mnt/data", "*(rw)")
	a.NoError(err)
	a.Equal(types.OutcomeDone, outcome)

	exports, err := r.ActiveExports()
	a.NoError(err)
	a.Len(exports, 1)
	a.Equal("/mnt/data", exports[0].Path)
}

func TestExportBacksUpBeforeMutating(t *testing.T) {
	a := assert.New(t)
	r, path := newExportsReconciler(t, "/mnt/old *(ro)\n")

	_, err := r.Export("/mnt/data", "*(rw)")
	a.NoError(err)

	backups, err := filepath.Glob(path + ".bak-*")
	a.NoError(err)
	a.Len(backups, 1)
}
