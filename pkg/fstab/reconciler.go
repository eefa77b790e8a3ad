package fstab

import (
	"fmt"
	"os"

	"k8s.io/mount-utils"

	volutil "github.com/volutil/volutil"
	"github.com/volutil/volutil/pkg/types"
	"github.com/volutil/volutil/utils/exec"
	"github.com/volutil/volutil/utils/log"
)

// Reconciler binds partitions to mount paths and keeps the persistent
// mount table consistent with them.
type Reconciler struct {
	TablePath string
	Mounter   mount.Interface
	Executor  exec.Executor
	Holders   HolderLister
	Decide    types.Decider
}

func NewReconciler(decide types.Decider) *Reconciler {
	return &Reconciler{
		TablePath: volutil.DefaultFstabPath,
		Mounter:   mount.New(""),
		Executor:  &exec.CommandExecutor{},
		Holders:   ProcHolders{},
		Decide:    decide,
	}
}

// Bind mounts the partition by UUID at mountPath and, when persist is
// set, reconciles the persistent mount table. Re-running against an
// already bound volume is a no-op for both parts.
func (r *Reconciler) Bind(uuid, mountPath, fsType string, persist bool) (types.Outcome, error) {
	if err := os.MkdirAll(mountPath, 0755); err != nil {
		return types.OutcomeFailed, fmt.Errorf("could not create mount path %s: %w", mountPath, err)
	}

	acted := false

	notMnt, err := mount.IsNotMountPoint(r.Mounter, mountPath)
	if err != nil {
		return types.OutcomeFailed, err
	}
	if notMnt {
		// always by UUID, the device path is not stable across reboots
		if err := r.Mounter.Mount("UUID="+uuid, mountPath, fsType, []string{"defaults"}); err != nil {
			return types.OutcomeFailed, fmt.Errorf("mount UUID=%s at %s failed: %w", uuid, mountPath, err)
		}
		log.Infof("mounted UUID=%s at %s", uuid, mountPath)
		acted = true
	} else {
		log.Infof("%s is already a mount point, skipping mount", mountPath)
	}

	if persist {
		table, err := Load(r.TablePath)
		if err != nil {
			return types.OutcomeFailed, err
		}
		if existing := table.FindActive(uuid, mountPath); existing != nil {
			log.Infof("%s already has an active entry: %s", r.TablePath, existing)
		} else {
			table.Append(Entry{
				Spec:    "UUID=" + uuid,
				Path:    mountPath,
				VfsType: fsType,
				// nofail so an unrelated future device failure does not
				// block the whole boot sequence
				Options: "defaults,nofail",
				Freq:    0,
				Passno:  2,
			})
			backup, err := table.Save()
			if err != nil {
				return types.OutcomeFailed, err
			}
			log.Infof("added %s entry for UUID=%s at %s (backup: %s)", r.TablePath, uuid, mountPath, backup)
			log.Info("run `mount -a` to verify the new entry")
			acted = true
		}
	}

	if acted {
		return types.OutcomeDone, nil
	}
	return types.OutcomeAlreadySatisfied, nil
}

// Unmount detaches mountPath. On a busy mount it enumerates the holding
// processes and, only with confirmation, falls back to a lazy unmount.
// After a lazy unmount background holders may still reference the device,
// so a later partition delete on the same target can still fail.
func (r *Reconciler) Unmount(mountPath string) (types.Outcome, error) {
	notMnt, err := mount.IsNotMountPoint(r.Mounter, mountPath)
	if err != nil {
		if os.IsNotExist(err) {
			return types.OutcomeAlreadySatisfied, nil
		}
		return types.OutcomeFailed, err
	}
	if notMnt {
		log.Infof("%s is not mounted", mountPath)
		return types.OutcomeAlreadySatisfied, nil
	}

	umountErr := r.Mounter.Unmount(mountPath)
	if umountErr == nil {
		log.Infof("unmounted %s", mountPath)
		return types.OutcomeDone, nil
	}

	log.Warnf("unmount of %s failed: %v", mountPath, umountErr)
	holders, err := r.Holders.Holders(mountPath)
	if err != nil {
		log.Warnf("could not enumerate holders of %s: %v", mountPath, err)
	}
	for _, h := range holders {
		log.Warnf("  held by pid %d (%s)", h.PID, h.Comm)
	}

	if !r.Decide.Confirm(fmt.Sprintf("lazy (detached) unmount %s? Holders keep their references until they exit", mountPath)) {
		return types.OutcomeFailed, fmt.Errorf("unmount of %s failed and lazy unmount was declined: %w", mountPath, umountErr)
	}

	if out, err := r.Executor.ExecuteCommandWithCombinedOutput("umount", "-l", mountPath); err != nil {
		return types.OutcomeFailed, fmt.Errorf("lazy unmount of %s failed: %v: %s", mountPath, err, out)
	}
	log.Warnf("%s lazily unmounted. Background holders may still reference the device; deleting the partition may still fail or need a reboot", mountPath)
	return types.OutcomeDone, nil
}

// ActiveEntries returns the active table entries matching any of the
// identifiers, or every active entry when none are given.
func (r *Reconciler) ActiveEntries(idents ...string) ([]Entry, error) {
	table, err := Load(r.TablePath)
	if err != nil {
		return nil, err
	}
	entries := table.ActiveEntries()
	if len(idents) == 0 {
		return entries, nil
	}
	var matched []Entry
	for i := range entries {
		if entryMatches(&entries[i], idents) {
			matched = append(matched, entries[i])
		}
	}
	return matched, nil
}

// ClearPersistence deactivates every active table line matching any of
// the identifiers (UUID, device path or mount path). Lines are commented
// out, never deleted.
func (r *Reconciler) ClearPersistence(idents ...string) (types.Outcome, string, error) {
	table, err := Load(r.TablePath)
	if err != nil {
		return types.OutcomeFailed, "", err
	}

	if n := table.Deactivate(idents...); n == 0 {
		log.Infof("no active %s entries match %v", r.TablePath, idents)
		return types.OutcomeAlreadySatisfied, "", nil
	}

	backup, err := table.Save()
	if err != nil {
		return types.OutcomeFailed, backup, err
	}
	log.Infof("deactivated %s entries for %v (backup: %s)", r.TablePath, idents, backup)
	return types.OutcomeDone, backup, nil
}
