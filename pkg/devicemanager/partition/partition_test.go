package partition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volutil/volutil/utils/exec"
	"github.com/volutil/volutil/utils/mutx"
)

const lsblkEmpty = `NAME="/dev/sdb" FSTYPE="" MOUNTPOINT="" SIZE="21474836480" STATE="running" TYPE="disk" ROTA="1" RO="0" PKNAME=""`

const lsblkOnePart = lsblkEmpty + `
NAME="/dev/sdb1" FSTYPE="" MOUNTPOINT="" SIZE="1073741824" STATE="" TYPE="part" ROTA="1" RO="0" PKNAME="/dev/sdb"`

func newTestImplement(fake *exec.FakeExecutor) *LocalPartitionImplement {
	return &LocalPartitionImplement{
		Mutex:          mutx.NewGlobalLocks(),
		Executor:       fake,
		DetectRetries:  detectRetries,
		DetectInterval: detectInterval,
		mountedTargets: func(string) ([]string, error) { return nil, nil },
	}
}

func TestNode(t *testing.T) {
	table := []struct {
		device string
		number uint
		result string
	}{
		{"/dev/sdb", 1, "/dev/sdb1"},
		{"/dev/sda", 12, "/dev/sda12"},
		{"/dev/nvme0n1", 1, "/dev/nvme0n1p1"},
		{"/dev/loop0", 2, "/dev/loop0p2"},
		{"/dev/mmcblk0", 1, "/dev/mmcblk0p1"},
	}
	a := assert.New(t)
	for _, e := range table {
		a.Equal(e.result, Node(e.device, e.number))
	}
}

func TestSplit(t *testing.T) {
	table := []struct {
		node   string
		device string
		number uint
		ok     bool
	}{
		{"/dev/sdb1", "/dev/sdb", 1, true},
		{"/dev/sda12", "/dev/sda", 12, true},
		{"/dev/nvme0n1p3", "/dev/nvme0n1", 3, true},
		{"/dev/loop0p2", "/dev/loop0", 2, true},
		{"/dev/sdb", "", 0, false},
	}
	a := assert.New(t)
	for _, e := range table {
		device, number, ok := Split(e.node)
		a.Equal(e.ok, ok, e.node)
		if ok {
			a.Equal(e.device, device, e.node)
			a.Equal(e.number, number, e.node)
		}
	}
}

func TestParseDiskString(t *testing.T) {
	a := assert.New(t)
	disks := parseDiskString(lsblkOnePart)
	a.Len(disks, 2)
	a.Equal("/dev/sdb", disks[0].Name)
	a.Equal("disk", disks[0].Type)
	a.Equal("/dev/sdb1", disks[1].Name)
	a.Equal("part", disks[1].Type)
	a.Equal("/dev/sdb", disks[1].ParentName)
	a.Equal(uint64(1073741824), disks[1].Size)
}

func TestCreateDetectsNewNode(t *testing.T) {
	a := assert.New(t)
	mkpartDone := false
	fake := &exec.FakeExecutor{}
	fake.CommandWithOutputFunc = func(command string, arg ...string) (string, error) {
		if command == "lsblk" {
			if mkpartDone {
				return lsblkOnePart, nil
			}
			return lsblkEmpty, nil
		}
		return "", nil
	}
	fake.CombinedOutputFunc = func(command string, arg ...string) (string, error) {
		if command == "parted" {
			mkpartDone = true
		}
		return "", nil
	}

	ld := newTestImplement(fake)
	node, err := ld.Create("/dev/sdb", 2048, 2097151, "ext4")
	a.NoError(err)
	a.Equal("/dev/sdb1", node)
	a.True(fake.Ran("parted -s -a optimal /dev/sdb mkpart primary ext4 2048s 2097151s"))
	a.True(fake.Ran("partprobe /dev/sdb"))
	a.True(fake.Ran("udevadm settle"))
}

func TestDeleteRefusesMountedPartition(t *testing.T) {
	a := assert.New(t)
	fake := &exec.FakeExecutor{}
	ld := newTestImplement(fake)
	ld.mountedTargets = func(device string) ([]string, error) {
		return []string{"/mnt/data"}, nil
	}

	err := ld.Delete("/dev/sdb", 1)
	a.Error(err)
	a.Contains(err.Error(), "mounted")
	a.False(fake.Ran("parted"))
}

func TestDeleteKernelStaleIsSoftFailure(t *testing.T) {
	a := assert.New(t)
	fake := &exec.FakeExecutor{}
	fake.CombinedOutputFunc = func(command string, arg ...string) (string, error) {
		if command == "partprobe" {
			return "Error: Partition(s) on /dev/sdb are being used. The kernel was unable to re-read the partition table", errors.New("exit status 1")
		}
		return "", nil
	}

	ld := newTestImplement(fake)
	err := ld.Delete("/dev/sdb", 1)
	a.ErrorIs(err, ErrKernelStale)
	a.True(fake.Ran("parted -s /dev/sdb rm 1"))
}

func TestCreateFailsWhenNodeNeverAppears(t *testing.T) {
	a := assert.New(t)
	fake := &exec.FakeExecutor{}
	fake.CommandWithOutputFunc = func(command string, arg ...string) (string, error) {
		if command == "lsblk" {
			return lsblkEmpty, nil
		}
		return "", nil
	}

	ld := newTestImplement(fake)
	ld.DetectRetries = 2
	ld.DetectInterval = time.Millisecond
	_, err := ld.Create("/dev/sdb", 2048, 4096, "ext4")
	a.ErrorIs(err, ErrPartitionNotDetected)
}
