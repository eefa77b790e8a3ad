package allocator

import (
	"fmt"
	"strconv"
	"strings"
)

// freeReport is the parsed machine readable free-space listing.
type freeReport struct {
	Device     string
	SectorSize uint64
	TableKind  string
	Free       []FreeExtent
}

// parseFreeReport parses `parted -s -m <dev> unit s print free` output:
//
//	BYT;
//	/dev/sdb:41943040s:scsi:512:512:gpt:QEMU HARDDISK:;
//	1:34s:2047s:2014s:free;
//	1:2048s:2097151s:2095104s:ext4:data:;
//	2:2097152s:41942973s:39845822s:free;
//
// Rows whose fifth field is "free" are free segments.
func parseFreeReport(out string) (*freeReport, error) {
	report := &freeReport{}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ";"))
		if line == "" || line == "BYT" {
			continue
		}
		fields := strings.Split(line, ":")

		if strings.HasPrefix(fields[0], "/dev/") {
			if len(fields) < 6 {
				return nil, fmt.Errorf("short device row in parted output: %q", line)
			}
			report.Device = fields[0]
			size, err := strconv.ParseUint(fields[3], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad sector size in parted output %q: %v", fields[3], err)
			}
			report.SectorSize = size
			report.TableKind = fields[5]
			continue
		}

		if len(fields) < 5 || fields[4] != "free" {
			continue
		}
		start, err := parseSectors(fields[1])
		if err != nil {
			return nil, err
		}
		end, err := parseSectors(fields[2])
		if err != nil {
			return nil, err
		}
		size, err := parseSectors(fields[3])
		if err != nil {
			return nil, err
		}
		report.Free = append(report.Free, FreeExtent{Start: start, End: end, Sectors: size})
	}

	if report.Device == "" {
		return nil, fmt.Errorf("parted output has no device row")
	}
	return report, nil
}

func parseSectors(v string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSuffix(v, "s"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad sector value %q: %v", v, err)
	}
	return n, nil
}
