package fstab

import (
	"strings"

	"github.com/prometheus/procfs"
)

// Holder is a process keeping a mount busy.
type Holder struct {
	PID  int
	Comm string
}

// HolderLister enumerates processes holding references under a mount
// path, for diagnostic display when an unmount fails.
type HolderLister interface {
	Holders(mountPath string) ([]Holder, error)
}

// ProcHolders walks /proc looking at each process cwd and open file
// descriptors.
type ProcHolders struct{}

func (ProcHolders) Holders(mountPath string) ([]Holder, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, err
	}

	var holders []Holder
	for _, p := range procs {
		if !holdsPath(p, mountPath) {
			continue
		}
		comm, err := p.Comm()
		if err != nil {
			comm = "?"
		}
		holders = append(holders, Holder{PID: p.PID, Comm: comm})
	}
	return holders, nil
}

func holdsPath(p procfs.Proc, mountPath string) bool {
	if cwd, err := p.Cwd(); err == nil && underPath(cwd, mountPath) {
		return true
	}
	targets, err := p.FileDescriptorTargets()
	if err != nil {
		return false
	}
	for _, t := range targets {
		if underPath(t, mountPath) {
			return true
		}
	}
	return false
}

func underPath(p, root string) bool {
	return p == root || strings.HasPrefix(p, root+"/")
}
