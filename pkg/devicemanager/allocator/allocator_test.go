package allocator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/volutil/volutil/utils/exec"
)

const sampleReport = `BYT;
/dev/sdb:41943040s:scsi:512:512:gpt:QEMU QEMU HARDDISK:;
1:2048s:2097151s:2095104s:free;
`

func fakeParted(report string) *exec.FakeExecutor {
	return &exec.FakeExecutor{
		CombinedOutputFunc: func(command string, arg ...string) (string, error) {
			return report, nil
		},
	}
}

func TestParseFreeReport(t *testing.T) {
	a := assert.New(t)

	report, err := parseFreeReport(`BYT;
/dev/sdb:41943040s:scsi:512:512:gpt:QEMU QEMU HARDDISK:;
1:34s:2047s:2014s:free;
1:2048s:2097151s:2095104s:ext4:data:;
2:2097152s:41942973s:39845822s:free;
`)
	a.NoError(err)
	a.Equal("/dev/sdb", report.Device)
	a.Equal(uint64(512), report.SectorSize)
	a.Equal("gpt", report.TableKind)
	a.Len(report.Free, 2)
	a.Equal(FreeExtent{Start: 34, End: 2047, Sectors: 2014}, report.Free[0])
	a.Equal(FreeExtent{Start: 2097152, End: 41942973, Sectors: 39845822}, report.Free[1])
}

func TestAllocateWholeSegment(t *testing.T) {
	a := assert.New(t)
	alloc := &Allocator{Executor: fakeParted(sampleReport)}

	got, err := alloc.Allocate(Request{Device: "/dev/sdb"})
	a.NoError(err)
	a.Equal(uint64(2048), got.Start)
	a.Equal(uint64(2097151), got.End)
	a.Empty(got.Warnings)
}

func TestAllocateClampsOversizedRequest(t *testing.T) {
	a := assert.New(t)
	alloc := &Allocator{Executor: fakeParted(sampleReport)}

	// 1G at 512b sectors is 2097152 sectors, one more than the segment holds.
	got, err := alloc.Allocate(Request{Device: "/dev/sdb", Size: "1G"})
	a.NoError(err)
	a.Equal(uint64(2048), got.Start)
	a.Equal(uint64(2097151), got.End)
	a.Len(got.Warnings, 1)
	a.Contains(got.Warnings[0], "allocating the maximum")
}

func TestAllocateRequestedSize(t *testing.T) {
	a := assert.New(t)
	alloc := &Allocator{Executor: fakeParted(sampleReport)}

	// 512M = 1048576 sectors
	got, err := alloc.Allocate(Request{Device: "/dev/sdb", Size: "512M"})
	a.NoError(err)
	a.Equal(uint64(2048), got.Start)
	a.Equal(uint64(2048+1048576-1), got.End)
	a.Empty(got.Warnings)
}

func TestAllocatePicksLargestSegment(t *testing.T) {
	a := assert.New(t)
	report := `BYT;
/dev/sdb:41943040s:scsi:512:512:gpt:disk:;
1:34s:2047s:2014s:free;
2:2097152s:41942973s:39845822s:free;
3:50000s:60000s:10001s:free;
`
	alloc := &Allocator{Executor: fakeParted(report)}

	got, err := alloc.Allocate(Request{Device: "/dev/sdb"})
	a.NoError(err)
	a.Equal(uint64(2097152), got.Start)
	a.Equal(uint64(41942973), got.End)
}

func TestAllocateAlignsStart(t *testing.T) {
	a := assert.New(t)
	report := `BYT;
/dev/sdb:41943040s:scsi:512:512:gpt:disk:;
1:100s:2097151s:2097052s:free;
`
	alloc := &Allocator{Executor: fakeParted(report)}

	got, err := alloc.Allocate(Request{Device: "/dev/sdb"})
	a.NoError(err)
	// 1MiB alignment at 512b sectors rounds 100 up to 2048.
	a.Equal(uint64(2048), got.Start)
}

func TestAllocateNoSpaceAfterAlignment(t *testing.T) {
	a := assert.New(t)
	report := `BYT;
/dev/sdb:41943040s:scsi:512:512:gpt:disk:;
1:100s:1500s:1401s:free;
`
	alloc := &Allocator{Executor: fakeParted(report)}

	_, err := alloc.Allocate(Request{Device: "/dev/sdb"})
	a.ErrorIs(err, ErrNoSpace)
}

func TestAllocateBadSizeString(t *testing.T) {
	a := assert.New(t)
	alloc := &Allocator{Executor: fakeParted(sampleReport)}

	_, err := alloc.Allocate(Request{Device: "/dev/sdb", Size: "banana"})
	a.Error(err)
}

func TestAllocateRejectsSubTwoSectorRequest(t *testing.T) {
	a := assert.New(t)
	alloc := &Allocator{Executor: fakeParted(sampleReport)}

	// one 512-byte sector and less than a sector, both operator errors
	for _, size := range []string{"512", "100"} {
		_, err := alloc.Allocate(Request{Device: "/dev/sdb", Size: size})
		a.Error(err)
		a.NotContains(err.Error(), "internal")
	}

	// two sectors is the smallest accepted extent
	result, err := alloc.Allocate(Request{Device: "/dev/sdb", Size: "1K"})
	a.NoError(err)
	a.Equal(uint64(1), result.End-result.Start)
}

func TestAllocateBootstrapsLabel(t *testing.T) {
	a := assert.New(t)
	calls := 0
	fake := &exec.FakeExecutor{}
	fake.CombinedOutputFunc = func(command string, arg ...string) (string, error) {
		if strings.Contains(strings.Join(arg, " "), "mklabel") {
			return "", nil
		}
		calls++
		if calls == 1 {
			return "Error: /dev/sdb: unrecognised disk label", errors.New("exit status 1")
		}
		return sampleReport, nil
	}
	alloc := &Allocator{Executor: fake}

	got, err := alloc.Allocate(Request{Device: "/dev/sdb"})
	a.NoError(err)
	a.Equal(uint64(2048), got.Start)
	a.True(fake.Ran("parted -s /dev/sdb mklabel gpt"))
}

func TestAlignUp(t *testing.T) {
	table := []struct {
		sector uint64
		align  uint64
		result uint64
	}{
		{0, 2048, 0},
		{1, 2048, 2048},
		{2048, 2048, 2048},
		{2049, 2048, 4096},
		{100, 0, 100},
	}
	a := assert.New(t)
	for _, e := range table {
		a.Equal(e.result, alignUp(e.sector, e.align))
	}
}
