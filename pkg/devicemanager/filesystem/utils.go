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

package filesystem

import (
	"fmt"
	"os"
	osexec "os/exec"
	"strings"

	"golang.org/x/sys/unix"
	"k8s.io/utils/io"

	"github.com/volutil/volutil/utils/exec"
	"github.com/volutil/volutil/utils/log"
)

const blkidCmd = "blkid"

type temporaryer interface {
	Temporary() bool
}

func isSameDevice(dev1, dev2 string) (bool, error) {
	if dev1 == dev2 {
		return true, nil
	}

	var st1, st2 unix.Stat_t
	if err := Stat(dev1, &st1); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat failed for %s: %v", dev1, err)
	}

	if err := Stat(dev2, &st2); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat failed for %s: %v", dev2, err)
	}

	return st1.Rdev == st2.Rdev, nil
}

// MountedTargets returns every mount point currently backed by device.
// The implementation uses /proc/mounts because some filesystem uses a virtual device.
func MountedTargets(device string) ([]string, error) {
	data, err := io.ConsistentRead("/proc/mounts", 3)
	if err != nil {
		return nil, fmt.Errorf("could not read /proc/mounts: %v", err)
	}

	var targets []string
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		ok, err := isSameDevice(device, fields[0])
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		targets = append(targets, fields[1])
	}

	return targets, nil
}

// DetectFilesystem returns filesystem type if device has a filesystem.
// This returns an empty string if no filesystem exists.
func DetectFilesystem(device string) (string, error) {
	f, err := os.Open(device)
	if err != nil {
		return "", err
	}
	// synchronizes dirty data
	f.Sync()
	f.Close()

	out, err := osexec.Command(blkidCmd, "-c", "/dev/null", "-o", "export", device).CombinedOutput()
	if err != nil {
		// blkid exits with status 2 when nothing can be found
		if code, ok := exec.ExitStatus(err); ok && code == 2 {
			return "", nil
		}
		return "", fmt.Errorf("blkid failed: output=%s, device=%s, error=%v", string(out), device, err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "TYPE=") {
			return line[5:], nil
		}
	}

	return "", nil
}

// DeviceUUID reads the filesystem UUID from device.
func DeviceUUID(device string) (string, error) {
	out, err := osexec.Command(blkidCmd, "-c", "/dev/null", "-s", "UUID", "-o", "value", device).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("blkid failed: output=%s, device=%s, error=%v", string(out), device, err)
	}
	uuid := strings.TrimSpace(string(out))
	if uuid == "" {
		return "", fmt.Errorf("device %s has no filesystem UUID", device)
	}
	log.Debugf("device %s uuid %s", device, uuid)
	return uuid, nil
}

// Stat wrapped a golang.org/x/sys/unix.Stat function to handle EINTR signal for Go 1.14+
func Stat(path string, stat *unix.Stat_t) error {
	for {
		err := unix.Stat(path, stat)
		if err == nil {
			return nil
		}
		if e, ok := err.(temporaryer); ok && e.Temporary() {
			continue
		}
		return err
	}
}
