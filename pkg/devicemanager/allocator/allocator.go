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

package allocator

import (
	"errors"
	"fmt"
	"strings"

	volutil "github.com/volutil/volutil"
	"github.com/volutil/volutil/utils"
	"github.com/volutil/volutil/utils/exec"
	"github.com/volutil/volutil/utils/log"
)

var (
	// ErrNoSpace no free segment can hold an aligned partition
	ErrNoSpace = errors.New("no aligned free space available on device")
)

// FreeExtent is a candidate allocation region, in sectors.
type FreeExtent struct {
	Start   uint64
	End     uint64
	Sectors uint64
}

// Request is the input for one allocation.
type Request struct {
	Device string
	// Size is the optional requested size, human readable ("5G"). Empty
	// means the whole largest free segment.
	Size string
	// SectorSize overrides the sector size reported by the partition
	// table editor. Zero means use the reported one.
	SectorSize uint64
}

// Allocation is the extent to hand to the partition lifecycle controller.
type Allocation struct {
	Start      uint64
	End        uint64
	SectorSize uint64
	// Warnings are surfaced to the operator, e.g. when a requested size
	// was clamped to what the disk can actually hold.
	Warnings []string
}

type Allocator struct {
	Executor exec.Executor

	// AlignmentBytes is the partition start alignment. Values below the
	// default would defeat 4K-sector and SSD erase-block alignment.
	AlignmentBytes uint64
}

func New() *Allocator {
	return &Allocator{
		Executor:       &exec.CommandExecutor{},
		AlignmentBytes: volutil.DefaultAlignmentBytes,
	}
}

// Allocate picks the largest free segment on the device, aligns its start
// and computes the final extent. A requested size larger than the segment
// is clamped with a warning, never failed.
func (a *Allocator) Allocate(req Request) (Allocation, error) {
	report, err := a.freeSpaceReport(req.Device)
	if err != nil {
		return Allocation{}, err
	}
	if len(report.Free) == 0 {
		return Allocation{}, ErrNoSpace
	}

	sectorSize := report.SectorSize
	if req.SectorSize != 0 {
		sectorSize = req.SectorSize
	}
	if sectorSize == 0 {
		return Allocation{}, fmt.Errorf("device %s reports no sector size", req.Device)
	}

	// Largest segment wins. Ties go to the first one seen; on a real
	// disk two identical maxima are effectively never material.
	segment := report.Free[0]
	for _, fs := range report.Free[1:] {
		if fs.Sectors > segment.Sectors {
			segment = fs
		}
	}

	alignment := a.AlignmentBytes
	if alignment == 0 {
		alignment = volutil.DefaultAlignmentBytes
	}
	align := alignment / sectorSize
	alignedStart := alignUp(segment.Start, align)
	if alignedStart >= segment.End {
		return Allocation{}, ErrNoSpace
	}

	available := segment.End - alignedStart + 1
	count := available
	var warnings []string

	if req.Size != "" {
		bytes, err := utils.ParseIECSize(req.Size)
		if err != nil {
			return Allocation{}, err
		}
		requested := bytes / sectorSize
		// a one-sector extent would collapse to start == end
		if requested < 2 {
			return Allocation{}, fmt.Errorf("requested size %q is below the two-sector minimum for a partition", req.Size)
		}
		if requested > available {
			warnings = append(warnings, fmt.Sprintf(
				"requested %s exceeds the %s available after alignment, allocating the maximum instead",
				req.Size, utils.FormatIECSize(available*sectorSize)))
		} else {
			count = requested
		}
	}

	end := alignedStart + count - 1

	// Internal consistency, not operator error. If this trips the
	// arithmetic above is broken.
	if !(alignedStart < end && end <= segment.End) {
		return Allocation{}, fmt.Errorf(
			"internal: computed extent %d-%d violates segment bounds %d-%d",
			alignedStart, end, segment.Start, segment.End)
	}

	log.Infof("allocated extent %d-%d (%s) on %s", alignedStart, end,
		utils.FormatIECSize(count*sectorSize), req.Device)

	return Allocation{
		Start:      alignedStart,
		End:        end,
		SectorSize: sectorSize,
		Warnings:   warnings,
	}, nil
}

// freeSpaceReport queries the partition table for free segments. An
// uninitialized table is bootstrapped to an empty GPT label once, then
// re-queried.
func (a *Allocator) freeSpaceReport(device string) (*freeReport, error) {
	out, err := a.Executor.ExecuteCommandWithCombinedOutput(
		"parted", "-s", "-m", device, "unit", "s", "print", "free")
	if err != nil {
		if !strings.Contains(strings.ToLower(out), "unrecognised disk label") {
			return nil, fmt.Errorf("parted print failed on %s: %v: %s", device, err, out)
		}
		log.Infof("%s has no partition table, initializing empty gpt label", device)
		if labelOut, err := a.Executor.ExecuteCommandWithCombinedOutput(
			"parted", "-s", device, "mklabel", "gpt"); err != nil {
			return nil, fmt.Errorf("mklabel gpt failed on %s: %v: %s", device, err, labelOut)
		}
		out, err = a.Executor.ExecuteCommandWithCombinedOutput(
			"parted", "-s", "-m", device, "unit", "s", "print", "free")
		if err != nil {
			return nil, fmt.Errorf("parted print failed on %s: %v: %s", device, err, out)
		}
	}
	return parseFreeReport(out)
}

func alignUp(sector, align uint64) uint64 {
	if align == 0 {
		return sector
	}
	return (sector + align - 1) / align * align
}
