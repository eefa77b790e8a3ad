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

package utils

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

func ContainsString(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsExist(err) {
			return true
		}
		return false
	}
	return true
}

// CommandExists reports whether an external tool is resolvable in PATH.
// Steps depending on a missing tool are skipped, not attempted.
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func UntilMaxRetry(f func() error, maxRetry int, interval time.Duration) error {
	var err error
	for i := 0; i < maxRetry; i++ {

		err = f()

		if err == nil {
			return nil
		}
		time.Sleep(interval)
	}
	return err
}

// ParseIECSize converts a human readable size such as "5G" or "512M" into
// bytes using binary multiples. A bare number is taken as bytes.
func ParseIECSize(s string) (uint64, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	if in == "" {
		return 0, fmt.Errorf("empty size")
	}
	in = strings.TrimSuffix(in, "IB")
	in = strings.TrimSuffix(in, "B")

	var mult uint64 = 1
	switch {
	case strings.HasSuffix(in, "K"):
		mult = 1 << 10
		in = strings.TrimSuffix(in, "K")
	case strings.HasSuffix(in, "M"):
		mult = 1 << 20
		in = strings.TrimSuffix(in, "M")
	case strings.HasSuffix(in, "G"):
		mult = 1 << 30
		in = strings.TrimSuffix(in, "G")
	case strings.HasSuffix(in, "T"):
		mult = 1 << 40
		in = strings.TrimSuffix(in, "T")
	}

	n, err := strconv.ParseUint(strings.TrimSpace(in), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %v", s, err)
	}
	return n * mult, nil
}

// FormatIECSize renders bytes with the largest binary unit that divides cleanly enough for display.
func FormatIECSize(b uint64) string {
	switch {
	case b >= 1<<40:
		return fmt.Sprintf("%.1fT", float64(b)/float64(1<<40))
	case b >= 1<<30:
		return fmt.Sprintf("%.1fG", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(b)/float64(1<<10))
	}
	return fmt.Sprintf("%d", b)
}

// BackupFile copies path to a timestamped sibling before mutation and
// returns the backup path. Callers report this path to the operator.
func BackupFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", err
	}

	backup := fmt.Sprintf("%s.bak-%s", path, time.Now().Format("20060102-150405"))
	dst, err := os.OpenFile(backup, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return backup, nil
}
