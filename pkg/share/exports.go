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

// Package share reconciles network-share definitions tied to a mount
// path: the line-per-share NFS export table and the section-per-share
// Samba config. Shares are deactivated with a comment marker on
// decommission, never deleted, preserving an audit trail.
package share

import (
	"fmt"
	"os"
	"strings"

	volutil "github.com/volutil/volutil"
	"github.com/volutil/volutil/pkg/types"
	"github.com/volutil/volutil/utils"
	"github.com/volutil/volutil/utils/exec"
	"github.com/volutil/volutil/utils/log"
)

// ExportLine is one active NFS export.
type ExportLine struct {
	Path    string
	Options string
}

// ExportsReconciler manages the export-style share file, one line per
// share, keyed by the exact mount path.
type ExportsReconciler struct {
	Path     string
	Executor exec.Executor
}

func NewExportsReconciler() *ExportsReconciler {
	return &ExportsReconciler{
		Path:     volutil.DefaultExportsPath,
		Executor: &exec.CommandExecutor{},
	}
}

// Export appends an export line for path unless an active one already
// exists for that exact path.
func (r *ExportsReconciler) Export(path, options string) (types.Outcome, error) {
	lines, err := r.readLines()
	if err != nil {
		return types.OutcomeFailed, err
	}

	for _, l := range lines {
		e := parseExportLine(l)
		if e != nil && e.Path == path {
			log.Infof("%s already exports %s (%s), skipping", r.Path, path, e.Options)
			return types.OutcomeAlreadySatisfied, nil
		}
	}

	backup := ""
	if utils.FileExists(r.Path) {
		if backup, err = utils.BackupFile(r.Path); err != nil {
			return types.OutcomeFailed, fmt.Errorf("could not back up %s: %w", r.Path, err)
		}
	}

	lines = append(lines, fmt.Sprintf("%s %s", path, options))
	if err := r.writeLines(lines); err != nil {
		return types.OutcomeFailed, err
	}
	if backup != "" {
		log.Infof("added export for %s to %s (backup: %s)", path, r.Path, backup)
	} else {
		log.Infof("added export for %s to new file %s", path, r.Path)
	}

	if err := r.validateAndReload(backup); err != nil {
		return types.OutcomeFailed, err
	}
	return types.OutcomeDone, nil
}

// Unexport deactivates every active line for path, keeping the line in
// the file under the retired marker.
func (r *ExportsReconciler) Unexport(path string) (types.Outcome, error) {
	lines, err := r.readLines()
	if err != nil {
		if os.IsNotExist(err) {
			return types.OutcomeAlreadySatisfied, nil
		}
		return types.OutcomeFailed, err
	}

	n := 0
	for i, l := range lines {
		e := parseExportLine(l)
		if e != nil && e.Path == path {
			lines[i] = volutil.RetiredMarker + l
			n++
		}
	}
	if n == 0 {
		log.Infof("%s has no active export for %s", r.Path, path)
		return types.OutcomeAlreadySatisfied, nil
	}

	backup, err := utils.BackupFile(r.Path)
	if err != nil {
		return types.OutcomeFailed, fmt.Errorf("could not back up %s: %w", r.Path, err)
	}
	if err := r.writeLines(lines); err != nil {
		return types.OutcomeFailed, err
	}
	log.Infof("deactivated %d export line(s) for %s (backup: %s)", n, path, backup)

	if err := r.validateAndReload(backup); err != nil {
		return types.OutcomeFailed, err
	}
	return types.OutcomeDone, nil
}

// ActiveExports lists the active export lines.
func (r *ExportsReconciler) ActiveExports() ([]ExportLine, error) {
	lines, err := r.readLines()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var exports []ExportLine
	for _, l := range lines {
		if e := parseExportLine(l); e != nil {
			exports = append(exports, *e)
		}
	}
	return exports, nil
}

func parseExportLine(raw string) *ExportLine {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil
	}
	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return nil
	}
	return &ExportLine{Path: fields[0], Options: strings.Join(fields[1:], " ")}
}

func (r *ExportsReconciler) readLines() ([]string, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	content := strings.TrimSuffix(string(data), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

func (r *ExportsReconciler) writeLines(lines []string) error {
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(r.Path, []byte(content), 0644); err != nil {
		return fmt.Errorf("could not write %s: %w", r.Path, err)
	}
	return nil
}

// validateAndReload re-parses the rewritten file and only then asks the
// NFS daemon to re-export. A structurally broken file is never served;
// the operator is pointed at the backup instead.
func (r *ExportsReconciler) validateAndReload(backup string) error {
	lines, err := r.readLines()
	if err != nil {
		return err
	}
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if e := parseExportLine(l); e == nil || !strings.HasPrefix(e.Path, "/") {
			if backup != "" {
				return fmt.Errorf("export file %s failed validation on line %q, not reloading; restore from %s", r.Path, l, backup)
			}
			return fmt.Errorf("export file %s failed validation on line %q, not reloading", r.Path, l)
		}
	}

	if !utils.CommandExists("exportfs") {
		log.Warnf("exportfs not installed, skipping re-export; changes apply on next daemon start")
		return nil
	}
	out, err := r.Executor.ExecuteCommandWithCombinedOutput("exportfs", "-ra")
	if err != nil {
		return fmt.Errorf("exportfs -ra failed: %v: %s", err, out)
	}
	if out != "" {
		log.Info("exportfs: ", out)
	}
	return nil
}
