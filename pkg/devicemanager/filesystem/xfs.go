package filesystem

import (
	"fmt"

	"github.com/volutil/volutil/utils/exec"
	"github.com/volutil/volutil/utils/log"
)

const cmdMkfsXfs = "mkfs.xfs"

type xfs struct {
	device   string
	executor exec.Executor
}

func init() {
	fsTypeMap["xfs"] = func(device string) Filesystem {
		return xfs{device: device, executor: &exec.CommandExecutor{}}
	}
}

func (fs xfs) Mkfs() error {
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

	// -K skips discard, which dominates format time on large devices
	out, err := fs.executor.ExecuteCommandWithCombinedOutput(cmdMkfsXfs, "-f", "-q", "-K", fs.device)
	if err != nil {
		log.Error(err, "xfs: failed to create",
			" device ", fs.device,
			" output ", out)
		return fmt.Errorf("mkfs.xfs failed on %s: %v: %s", fs.device, err, out)
	}

	log.Info("xfs: created device ", fs.device)
	return nil
}

func (fs xfs) UUID() (string, error) {
	return DeviceUUID(fs.device)
}

// xfs has no reserved-space tunable equivalent to tune2fs -m.
func (fs xfs) TuneReserved(percent int) error {
	return ErrNotSupported
}
