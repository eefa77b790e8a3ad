/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package partition

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anuvu/disko"
	"github.com/anuvu/disko/linux"
	"github.com/volutil/volutil/pkg/devicemanager/filesystem"
	"github.com/volutil/volutil/pkg/types"
	"github.com/volutil/volutil/utils"
	"github.com/volutil/volutil/utils/exec"
	"github.com/volutil/volutil/utils/log"
	"github.com/volutil/volutil/utils/mutx"
)

var mysys = linux.System()

var (
	// ErrPartitionNotDetected the kernel never exposed a node for the new
	// partition within the retry budget. Fatal, later steps need the path.
	ErrPartitionNotDetected = errors.New("new partition device node not detected")

	// ErrKernelStale the on-disk table changed but the kernel refused to
	// re-read it, usually because something still holds the old partition
	// open. A reboot resolves this, retrying does not.
	ErrKernelStale = errors.New("kernel did not acknowledge the partition table change, a reboot is required to converge")
)

const DISKMUTEX = "DiskMutex"

const (
	detectRetries  = 10
	detectInterval = 500 * time.Millisecond
)

type LocalPartition interface {
	Create(device string, start, end uint64, fsType string) (string, error)
	Delete(device string, number uint) error
	Format(node, fsType string) (string, error)
	TuneReserved(node, fsType string, percent int) error
	ScanDisk(device string) (disko.Disk, error)
	ListDevicesDetail(device string) ([]*types.LocalDisk, error)
	Wipe(device string) error
	UdevSettle() error
}

type LocalPartitionImplement struct {
	Mutex    *mutx.GlobalLocks
	Executor exec.Executor

	// DetectRetries and DetectInterval bound the wait for the kernel to
	// expose a freshly created partition node.
	DetectRetries  int
	DetectInterval time.Duration

	// mountedTargets is swappable so the delete precondition can be
	// exercised without a real device.
	mountedTargets func(device string) ([]string, error)
}

func NewLocalPartitionImplement() *LocalPartitionImplement {
	return &LocalPartitionImplement{
		Mutex:          mutx.NewGlobalLocks(),
		Executor:       &exec.CommandExecutor{},
		DetectRetries:  detectRetries,
		DetectInterval: detectInterval,
		mountedTargets: filesystem.MountedTargets,
	}
}

// Node returns the kernel device node for partition number on device,
// following the kernel naming convention (/dev/sdb1, /dev/nvme0n1p1).
func Node(device string, number uint) string {
	if device == "" {
		return ""
	}
	last := device[len(device)-1]
	if last >= '0' && last <= '9' {
		return fmt.Sprintf("%sp%d", device, number)
	}
	return fmt.Sprintf("%s%d", device, number)
}

// Split breaks a partition node into its parent device and number.
// Returns ok=false when node carries no trailing number. This is purely
// the naming convention: whole-disk names such as /dev/nvme0n1 or
// /dev/loop1 also end in a digit and parse as partitions here, so
// callers must settle disk-vs-partition from the kernel's device
// listing first and treat Split as a fallback.
func Split(node string) (string, uint, bool) {
	i := len(node)
	for i > 0 && node[i-1] >= '0' && node[i-1] <= '9' {
		i--
	}
	if i == len(node) || i == 0 {
		return "", 0, false
	}
	var number uint
	for _, c := range node[i:] {
		number = number*10 + uint(c-'0')
	}
	device := node[:i]
	if strings.HasSuffix(device, "p") && len(device) > 1 {
		prev := device[len(device)-2]
		if prev >= '0' && prev <= '9' {
			device = device[:len(device)-1]
		}
	}
	if number == 0 {
		return "", 0, false
	}
	return device, number, true
}

// Create adds a primary partition covering the extent, forces the kernel
// to observe it and waits for the new device node to appear.
func (ld *LocalPartitionImplement) Create(device string, start, end uint64, fsType string) (string, error) {
	if !ld.Mutex.TryAcquire(DISKMUTEX) {
		log.Info("wait other task release mutex, please retry...")
		return "", errors.New("get global mutex failed")
	}
	defer ld.Mutex.Release(DISKMUTEX)

	before, err := ld.partitionNodes(device)
	if err != nil {
		return "", err
	}

	log.Infof("create partition on %s: sectors %d-%d fs %s", device, start, end, fsType)
	out, err := ld.Executor.ExecuteCommandWithCombinedOutput("parted", "-s", "-a", "optimal",
		device, "mkpart", "primary", fsType,
		fmt.Sprintf("%ds", start), fmt.Sprintf("%ds", end))
	if err != nil {
		return "", fmt.Errorf("mkpart failed on %s: %v: %s", device, err, out)
	}

	if err := ld.rereadPartitionTable(device); err != nil {
		return "", err
	}
	_ = ld.UdevSettle()

	var node string
	err = utils.UntilMaxRetry(func() error {
		after, err := ld.partitionNodes(device)
		if err != nil {
			return err
		}
		for _, n := range after {
			if !utils.ContainsString(before, n) {
				node = n
				return nil
			}
		}
		return ErrPartitionNotDetected
	}, ld.DetectRetries, ld.DetectInterval)
	if err != nil {
		return "", fmt.Errorf("%w on %s after %d attempts", ErrPartitionNotDetected, device, ld.DetectRetries)
	}

	log.Info("created partition ", node)
	return node, nil
}

// Delete removes partition number from device. The mounted check runs
// here, immediately before the removal, to catch races with earlier
// workflow steps.
func (ld *LocalPartitionImplement) Delete(device string, number uint) error {
	if !ld.Mutex.TryAcquire(DISKMUTEX) {
		log.Info("wait other task release mutex, please retry...")
		return errors.New("get global mutex failed")
	}
	defer ld.Mutex.Release(DISKMUTEX)

	node := Node(device, number)
	targets, err := ld.mountedTargets(node)
	if err != nil {
		return err
	}
	if len(targets) > 0 {
		return fmt.Errorf("%w: %s is mounted at %s", filesystem.ErrMounted, node, targets[0])
	}

	log.Infof("delete partition %d on %s", number, device)
	out, err := ld.Executor.ExecuteCommandWithCombinedOutput("parted", "-s", device, "rm", fmt.Sprintf("%d", number))
	if err != nil {
		return fmt.Errorf("parted rm %d failed on %s: %v: %s", number, device, err, out)
	}

	if err := ld.rereadPartitionTable(device); err != nil {
		return err
	}
	return ld.UdevSettle()
}

// Format creates the filesystem and reads back the UUID assigned to it.
func (ld *LocalPartitionImplement) Format(node, fsType string) (string, error) {
	fs, err := filesystem.New(node, fsType)
	if err != nil {
		return "", err
	}
	if err := fs.Mkfs(); err != nil {
		return "", err
	}
	return fs.UUID()
}

func (ld *LocalPartitionImplement) TuneReserved(node, fsType string, percent int) error {
	fs, err := filesystem.New(node, fsType)
	if err != nil {
		return err
	}
	return fs.TuneReserved(percent)
}

func (ld *LocalPartitionImplement) ScanDisk(device string) (disko.Disk, error) {
	return mysys.ScanDisk(device)
}

// Wipe clears all partition table signatures from the whole device.
func (ld *LocalPartitionImplement) Wipe(device string) error {
	if !ld.Mutex.TryAcquire(DISKMUTEX) {
		log.Info("wait other task release mutex, please retry...")
		return errors.New("get global mutex failed")
	}
	defer ld.Mutex.Release(DISKMUTEX)

	disk, err := mysys.ScanDisk(device)
	if err != nil {
		log.Error("scanDisk path ", device, " failed "+err.Error())
		return err
	}
	if err := mysys.Wipe(disk); err != nil {
		return err
	}
	return ld.UdevSettle()
}

func (ld *LocalPartitionImplement) UdevSettle() error {
	_, err := ld.Executor.ExecuteCommandWithOutput("udevadm", "settle")
	return err
}

// rereadPartitionTable asks the kernel to pick up the new table. A busy
// refusal is a soft failure: the on-disk table is already correct while
// the in-memory view is stale.
func (ld *LocalPartitionImplement) rereadPartitionTable(device string) error {
	out, err := ld.Executor.ExecuteCommandWithCombinedOutput("partprobe", device)
	if err == nil {
		return nil
	}
	low := strings.ToLower(out)
	if strings.Contains(low, "re-read") || strings.Contains(low, "busy") || strings.Contains(low, "in use") {
		log.Warnf("partprobe could not propagate the table change on %s: %s", device, out)
		return fmt.Errorf("%w: %s", ErrKernelStale, strings.TrimSpace(out))
	}
	return fmt.Errorf("partprobe failed on %s: %v: %s", device, err, out)
}
