package filesystem

import (
	"fmt"

	volutil "github.com/volutil/volutil"
	"github.com/volutil/volutil/utils/exec"
	"github.com/volutil/volutil/utils/log"
)

const (
	cmdMkfsExt4 = "mkfs.ext4"
	cmdTune2fs  = "tune2fs"
)

type ext4 struct {
	device   string
	executor exec.Executor
}

func init() {
	fsTypeMap["ext4"] = func(device string) Filesystem {
		return ext4{device: device, executor: &exec.CommandExecutor{}}
	}
}

func (fs ext4) Mkfs() error {
	fsType, err := DetectFilesystem(fs.device)
	if err != nil {
		return err
	}
	if fsType != "" {
		return ErrFilesystemExists
	}
	mounted, err := MountedTargets(fs.device)
	if err != nil {
		return err
	}
	if len(mounted) > 0 {
		return fmt.Errorf("%w at %s", ErrMounted, mounted[0])
	}

	// lazy init keeps format time reasonable on multi-terabyte disks
	out, err := fs.executor.ExecuteCommandWithCombinedOutput(cmdMkfsExt4,
		"-F", "-q", "-E", "lazy_itable_init=1,lazy_journal_init=1", fs.device)
	if err != nil {
		log.Error(err, "ext4: failed to create",
			" device ", fs.device,
			" output ", out)
		return fmt.Errorf("mkfs.ext4 failed on %s: %v: %s", fs.device, err, out)
	}

	log.Info("ext4: created device ", fs.device)
	return nil
}

func (fs ext4) UUID() (string, error) {
	return DeviceUUID(fs.device)
}

func (fs ext4) TuneReserved(percent int) error {
	if percent < 0 || percent > volutil.MaxReservedPercent {
		return fmt.Errorf("reserved space percent %d outside 0..%d", percent, volutil.MaxReservedPercent)
	}
	out, err := fs.executor.ExecuteCommandWithCombinedOutput(cmdTune2fs,
		"-m", fmt.Sprintf("%d", percent), fs.device)
	if err != nil {
		return fmt.Errorf("tune2fs -m %d failed on %s: %v: %s", percent, fs.device, err, out)
	}
	log.Infof("ext4: reserved space on %s set to %d%%", fs.device, percent)
	return nil
}
