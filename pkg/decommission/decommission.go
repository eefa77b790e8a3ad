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

// Package decommission walks a volume teardown in strict dependency
// order: shares, then mount, then persistence, then the partition
// itself. Each step records its outcome so later steps refuse to run on
// top of an unresolved earlier failure.
package decommission

import (
	"errors"
	"fmt"

	"github.com/anuvu/disko"
	"github.com/google/uuid"

	"github.com/volutil/volutil/pkg/devicemanager/filesystem"
	"github.com/volutil/volutil/pkg/devicemanager/partition"
	"github.com/volutil/volutil/pkg/fstab"
	"github.com/volutil/volutil/pkg/share"
	"github.com/volutil/volutil/pkg/types"
	"github.com/volutil/volutil/utils/log"
)

// PartitionOps is the slice of the partition controller the orchestrator
// consumes.
type PartitionOps interface {
	Delete(device string, number uint) error
	ScanDisk(device string) (disko.Disk, error)
	ListDevicesDetail(device string) ([]*types.LocalDisk, error)
	Wipe(device string) error
}

// MountOps is the slice of the mount & persistence reconciler.
type MountOps interface {
	Unmount(path string) (types.Outcome, error)
	ClearPersistence(idents ...string) (types.Outcome, string, error)
	ActiveEntries(idents ...string) ([]fstab.Entry, error)
}

type ExportOps interface {
	ActiveExports() ([]share.ExportLine, error)
	Unexport(path string) (types.Outcome, error)
}

type SambaOps interface {
	ActiveShares() ([]share.ShareSection, error)
	RetractShare(name string) (types.Outcome, error)
}

// Target is one decommission request, either a single partition or a
// whole device.
type Target struct {
	Device    string
	Numbers   []uint
	WholeDisk bool
}

// Status tracks one partition through the teardown. Delete may only run
// once Unmounted is true; skipping a cleared persistence needs an
// explicit override.
type Status struct {
	Number             uint
	Node               string
	Unshared           bool
	Unmounted          bool
	PersistenceCleared bool
	Deleted            bool
	Overridden         bool
}

// Summary is the final report of one run.
type Summary struct {
	RunID    string
	Device   string
	Statuses []Status
	Warnings []string
	Complete bool
}

type plan struct {
	number      uint
	node        string
	uuid        string
	paths       []string
	exportPaths []string
	sambaShares []string
}

type Orchestrator struct {
	RunID      string
	Partitions PartitionOps
	Mounts     MountOps
	Exports    ExportOps
	Samba      SambaOps
	Decide     types.Decider

	// swappable for tests, the real ones need a live system
	mountedTargets func(device string) ([]string, error)
	deviceUUID     func(device string) (string, error)
}

func New(parts PartitionOps, mounts MountOps, exports ExportOps, samba SambaOps, decide types.Decider) *Orchestrator {
	return &Orchestrator{
		RunID:          uuid.NewString(),
		Partitions:     parts,
		Mounts:         mounts,
		Exports:        exports,
		Samba:          samba,
		Decide:         decide,
		mountedTargets: filesystem.MountedTargets,
		deviceUUID:     filesystem.DeviceUUID,
	}
}

// ResolveTarget interprets arg as either a partition node or a whole
// device and expands the latter to its current partitions. The kernel's
// own view decides which one it is: whole-disk names like /dev/nvme0n1
// or /dev/loop1 end in a digit too, so the naming convention alone
// cannot tell them apart from partition nodes.
func (o *Orchestrator) ResolveTarget(arg string) (Target, error) {
	if disks, err := o.Partitions.ListDevicesDetail(arg); err == nil {
		for _, d := range disks {
			if d.Name != arg {
				continue
			}
			switch d.Type {
			case "part":
				device, number, ok := partition.Split(arg)
				if !ok {
					return Target{}, fmt.Errorf("%s reports as a partition but carries no partition number", arg)
				}
				if d.ParentName != "" {
					device = d.ParentName
				}
				return Target{Device: device, Numbers: []uint{number}}, nil
			case "disk":
				return o.wholeDisk(arg)
			}
		}
	}

	// no lsblk row for the target, fall back to the naming convention
	if device, number, ok := partition.Split(arg); ok {
		return Target{Device: device, Numbers: []uint{number}}, nil
	}
	return o.wholeDisk(arg)
}

func (o *Orchestrator) wholeDisk(device string) (Target, error) {
	disk, err := o.Partitions.ScanDisk(device)
	if err != nil {
		return Target{}, fmt.Errorf("could not scan %s: %w", device, err)
	}
	t := Target{Device: device, WholeDisk: true}
	for n := range disk.Partitions {
		t.Numbers = append(t.Numbers, n)
	}
	return t, nil
}

// Run drives the full teardown for the target and always returns a
// summary, even when aborted early.
func (o *Orchestrator) Run(t Target) (*Summary, error) {
	summary := &Summary{RunID: o.RunID, Device: t.Device}

	plans, err := o.discover(t)
	if err != nil {
		return summary, err
	}
	if len(plans) == 0 {
		summary.Complete = true
		log.Infof("nothing to decommission on %s", t.Device)
		return summary, nil
	}

	o.present(plans)

	if !o.Decide.Confirm(fmt.Sprintf("decommission %d partition(s) on %s? This is destructive", len(plans), t.Device)) {
		summary.Warnings = append(summary.Warnings, "aborted before any destructive step")
		for _, p := range plans {
			summary.Statuses = append(summary.Statuses, Status{Number: p.number, Node: p.node})
		}
		return summary, nil
	}

	complete := true
	for _, p := range plans {
		st := o.teardown(p, summary)
		summary.Statuses = append(summary.Statuses, st)
		if !st.Deleted || st.Overridden {
			complete = false
		}
	}

	if t.WholeDisk && complete {
		o.offerWipe(t.Device, summary)
	}

	summary.Complete = complete
	o.report(summary)
	return summary, nil
}

// discover builds the consolidated view: for every partition the union
// of mount paths seen live and in the persistent table, plus every share
// referencing one of those paths.
func (o *Orchestrator) discover(t Target) ([]plan, error) {
	exports, err := o.Exports.ActiveExports()
	if err != nil {
		return nil, err
	}
	sambaShares, err := o.Samba.ActiveShares()
	if err != nil {
		return nil, err
	}

	var plans []plan
	for _, n := range t.Numbers {
		p := plan{number: n, node: partition.Node(t.Device, n)}

		if uuid, err := o.deviceUUID(p.node); err == nil {
			p.uuid = uuid
		}

		live, err := o.mountedTargets(p.node)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		for _, path := range live {
			seen[path] = true
			p.paths = append(p.paths, path)
		}

		// a path absent from live mounts but present in the persistent
		// table is still in scope for cleanup
		entries, err := o.Mounts.ActiveEntries(p.uuid, p.node)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !seen[e.Path] {
				seen[e.Path] = true
				p.paths = append(p.paths, e.Path)
			}
		}

		for _, path := range p.paths {
			for _, e := range exports {
				if e.Path == path {
					p.exportPaths = append(p.exportPaths, e.Path)
				}
			}
			for _, s := range sambaShares {
				if s.Path == path {
					p.sambaShares = append(p.sambaShares, s.Name)
				}
			}
		}

		plans = append(plans, p)
	}
	return plans, nil
}

func (o *Orchestrator) present(plans []plan) {
	log.Infof("decommission run %s", o.RunID)
	for _, p := range plans {
		log.Infof("  %s (uuid %q)", p.node, p.uuid)
		for _, path := range p.paths {
			log.Infof("    mount path %s", path)
		}
		for _, e := range p.exportPaths {
			log.Infof("    nfs export %s", e)
		}
		for _, s := range p.sambaShares {
			log.Infof("    samba share [%s]", s)
		}
	}
}

func (o *Orchestrator) teardown(p plan, summary *Summary) Status {
	st := Status{Number: p.number, Node: p.node}

	st.Unshared = o.unshare(p, summary)
	st.Unmounted = o.unmount(p, &st, summary)
	st.PersistenceCleared = o.clearPersistence(p, summary)

	if !st.Unmounted && !st.Overridden {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("%s: partition not deleted, unmount unresolved", p.node))
		return st
	}

	if !st.PersistenceCleared {
		if !o.Decide.Confirm(fmt.Sprintf(
			"persistent table still references %s; deleting anyway leaves an orphaned entry. Proceed?", p.node)) {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("%s: partition not deleted, persistence unresolved", p.node))
			return st
		}
		st.Overridden = true
	}

	if !o.Decide.Confirm(fmt.Sprintf("delete partition %d on %s?", p.number, summary.Device)) {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: deletion declined", p.node))
		return st
	}

	err := o.Partitions.Delete(summary.Device, p.number)
	switch {
	case err == nil:
		st.Deleted = true
	case errors.Is(err, partition.ErrKernelStale):
		// on-disk table is already correct, only the kernel view lags
		st.Deleted = true
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("%s: deleted on disk but the kernel still shows the old table; reboot to converge (retrying will not help)", p.node))
	default:
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: delete failed: %v", p.node, err))
	}
	return st
}

// unshare resolves every share referencing the partition's paths. The
// result defaults to true only when nothing was shared or everything
// found was resolved.
func (o *Orchestrator) unshare(p plan, summary *Summary) bool {
	resolved := true
	for _, path := range p.exportPaths {
		if !o.Decide.Confirm(fmt.Sprintf("unexport %s from nfs?", path)) {
			resolved = false
			continue
		}
		outcome, err := o.Exports.Unexport(path)
		if err != nil || !outcome.OK() {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: unexport failed: %v", path, err))
			resolved = false
		}
	}
	for _, name := range p.sambaShares {
		if !o.Decide.Confirm(fmt.Sprintf("retract samba share [%s]?", name)) {
			resolved = false
			continue
		}
		outcome, err := o.Samba.RetractShare(name)
		if err != nil || !outcome.OK() {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("[%s]: retract failed: %v", name, err))
			resolved = false
		}
	}
	return resolved
}

// unmount detaches every discovered path. A failure or decline blocks
// later steps unless the operator explicitly overrides, which flags the
// run as unsafe.
func (o *Orchestrator) unmount(p plan, st *Status, summary *Summary) bool {
	ok := true
	for _, path := range p.paths {
		if !o.Decide.Confirm(fmt.Sprintf("unmount %s?", path)) {
			ok = false
			continue
		}
		outcome, err := o.Mounts.Unmount(path)
		if !outcome.OK() {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: unmount failed: %v", path, err))
			ok = false
		}
	}
	if ok {
		return true
	}
	if o.Decide.Confirm(fmt.Sprintf("unmount of %s unresolved; proceed anyway and flag this run unsafe?", p.node)) {
		st.Overridden = true
	}
	return false
}

// clearPersistence is tracked independently of unmount success, since an
// already deactivated table can coexist with a still-mounted device.
func (o *Orchestrator) clearPersistence(p plan, summary *Summary) bool {
	idents := append([]string{p.uuid, p.node}, p.paths...)
	outcome, backup, err := o.Mounts.ClearPersistence(idents...)
	if !outcome.OK() {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: clearing persistence failed: %v", p.node, err))
		return false
	}
	if backup != "" {
		log.Infof("persistent table backup: %s", backup)
	}
	return true
}

// offerWipe is only reached when every constituent partition reports
// deleted. The disk is re-listed at the moment of the offer, the tracked
// flags alone are not trusted because the kernel view may lag.
func (o *Orchestrator) offerWipe(device string, summary *Summary) {
	disk, err := o.Partitions.ScanDisk(device)
	if err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: could not re-list partitions before wipe: %v", device, err))
		return
	}
	if len(disk.Partitions) > 0 {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("%s: %d partition(s) still visible, skipping signature wipe", device, len(disk.Partitions)))
		return
	}
	if !o.Decide.Confirm(fmt.Sprintf("wipe all partition table signatures from %s?", device)) {
		return
	}
	if err := o.Partitions.Wipe(device); err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: signature wipe failed: %v", device, err))
		return
	}
	log.Infof("wiped partition table signatures from %s", device)
}

func (o *Orchestrator) report(s *Summary) {
	log.Infof("decommission run %s finished, complete=%t", s.RunID, s.Complete)
	for _, st := range s.Statuses {
		log.Infof("  %s unshared=%t unmounted=%t persistence-cleared=%t deleted=%t overridden=%t",
			st.Node, st.Unshared, st.Unmounted, st.PersistenceCleared, st.Deleted, st.Overridden)
	}
	for _, w := range s.Warnings {
		log.Warn(w)
	}
}
