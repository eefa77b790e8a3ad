package fstab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fstab")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadParsesEntriesAndComments(t *testing.T) {
	a := assert.New(t)
	path := writeTable(t, `# /etc/fstab: static file system information.
UUID=abcd-1234 / ext4 errors=remount-ro 0 1
UUID=dcba-4321 /mnt/data ext4 defaults,nofail 0 2

# volutil-retired: UUID=dead-beef /mnt/old ext4 defaults,nofail 0 2
`)

	table, err := Load(path)
	a.NoError(err)

	entries := table.ActiveEntries()
	a.Len(entries, 2)
	a.Equal("UUID=abcd-1234", entries[0].Spec)
	a.Equal("/", entries[0].Path)
	a.Equal("dcba-4321", entries[1].UUID())
	a.Equal(2, entries[1].Passno)
}

func TestFindActiveByAnyIdentifier(t *testing.T) {
	a := assert.New(t)
	path := writeTable(t, `UUID=abcd-1234 /mnt/data ext4 defaults,nofail 0 2
/dev/sdc1 /mnt/scratch xfs defaults 0 2
`)
	table, err := Load(path)
	a.NoError(err)

	a.NotNil(table.FindActive("abcd-1234"))
	a.NotNil(table.FindActive("/mnt/data"))
	a.NotNil(table.FindActive("/dev/sdc1"))
	a.NotNil(table.FindActive("", "/mnt/scratch"))
	a.Nil(table.FindActive("ffff-0000", "/mnt/other"))
}

func TestDeactivateCommentsNotDeletes(t *testing.T) {
	a := assert.New(t)
	path := writeTable(t, `UUID=abcd-1234 /mnt/data ext4 defaults,nofail 0 2
UUID=ffff-0000 /mnt/keep ext4 defaults,nofail 0 2
`)
	table, err := Load(path)
	a.NoError(err)

	a.Equal(1, table.Deactivate("abcd-1234"))
	backup, err := table.Save()
	a.NoError(err)
	a.FileExists(backup)

	data, err := os.ReadFile(path)
	a.NoError(err)
	content := string(data)
	a.Contains(content, "# volutil-retired: UUID=abcd-1234 /mnt/data")
	a.Contains(content, "UUID=ffff-0000 /mnt/keep")

	// the retired line is no longer active
	reloaded, err := Load(path)
	a.NoError(err)
	a.Nil(reloaded.FindActive("abcd-1234"))
	a.NotNil(reloaded.FindActive("ffff-0000"))
}

func TestDeactivateMatchesAllIdentifiers(t *testing.T) {
	a := assert.New(t)
	path := writeTable(t, `UUID=abcd-1234 /mnt/data ext4 defaults,nofail 0 2
/dev/sdb1 /mnt/data2 ext4 defaults 0 2
UUID=other /mnt/data3 ext4 defaults 0 2
`)
	table, err := Load(path)
	a.NoError(err)

	n := table.Deactivate("abcd-1234", "/dev/sdb1", "/mnt/data3")
	a.Equal(3, n)
}

func TestSaveKeepsUntouchedLinesVerbatim(t *testing.T) {
	a := assert.New(t)
	original := `# header comment
UUID=abcd-1234	/	ext4	errors=remount-ro	0	1

UUID=dcba-4321 /mnt/data ext4 defaults,nofail 0 2
`
	path := writeTable(t, original)
	table, err := Load(path)
	a.NoError(err)

	_, err = table.Save()
	a.NoError(err)
	data, err := os.ReadFile(path)
	a.NoError(err)
	a.Equal(original, string(data))
}

func TestAppendProducesCanonicalLine(t *testing.T) {
	a := assert.New(t)
	path := writeTable(t, "")
	table, err := Load(path)
	a.NoError(err)

	table.Append(Entry{
		Spec:    "UUID=abcd-1234",
		Path:    "/mnt/data",
		VfsType: "ext4",
		Options: "defaults,nofail",
		Passno:  2,
	})
	_, err = table.Save()
	a.NoError(err)

	data, err := os.ReadFile(path)
	a.NoError(err)
	a.Equal("UUID=abcd-1234 /mnt/data ext4 defaults,nofail 0 2\n", string(data))
	a.True(strings.Contains(string(data), ",nofail"))
}
