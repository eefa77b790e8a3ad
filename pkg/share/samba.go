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

// ShareOptions describe one Samba share definition.
type ShareOptions struct {
	ReadOnly   bool
	Guest      bool
	ValidUsers []string
	Comment    string
}

// ShareSection is an active named section of the Samba config.
type ShareSection struct {
	Name string
	Path string
}

// SambaReconciler manages the block-style share config: named sections
// in a structured file.
type SambaReconciler struct {
	Path     string
	Executor exec.Executor
}

func NewSambaReconciler() *SambaReconciler {
	return &SambaReconciler{
		Path:     volutil.DefaultSmbConfPath,
		Executor: &exec.CommandExecutor{},
	}
}

// DefineShare appends a share section unless an active section with the
// same name or the same path already exists. The double key prevents
// both name collisions and exposing one path under two names.
func (r *SambaReconciler) DefineShare(name, path string, opts ShareOptions) (types.Outcome, error) {
	if len(name) > volutil.MaxSambaShareName {
		return types.OutcomeFailed, fmt.Errorf("share name %q is longer than the %d characters samba accepts", name, volutil.MaxSambaShareName)
	}

	sections, err := r.ActiveShares()
	if err != nil {
		return types.OutcomeFailed, err
	}
	for _, s := range sections {
		if s.Name == name {
			log.Infof("%s already has a share named %q, skipping", r.Path, name)
			return types.OutcomeAlreadySatisfied, nil
		}
		if s.Path == path {
			log.Infof("%s already shares %s as %q, skipping", r.Path, path, s.Name)
			return types.OutcomeAlreadySatisfied, nil
		}
	}

	lines, err := r.readLines()
	if err != nil && !os.IsNotExist(err) {
		return types.OutcomeFailed, err
	}

	backup := ""
	if utils.FileExists(r.Path) {
		if backup, err = utils.BackupFile(r.Path); err != nil {
			return types.OutcomeFailed, fmt.Errorf("could not back up %s: %w", r.Path, err)
		}
	}

	lines = append(lines, "", fmt.Sprintf("[%s]", name))
	if opts.Comment != "" {
		lines = append(lines, fmt.Sprintf("   comment = %s", opts.Comment))
	}
	lines = append(lines,
		fmt.Sprintf("   path = %s", path),
		"   browseable = yes",
		fmt.Sprintf("   read only = %s", yesNo(opts.ReadOnly)),
		fmt.Sprintf("   guest ok = %s", yesNo(opts.Guest)),
	)
	if !opts.Guest && len(opts.ValidUsers) > 0 {
		lines = append(lines, fmt.Sprintf("   valid users = %s", strings.Join(opts.ValidUsers, " ")))
	}

	if err := r.writeLines(lines); err != nil {
		return types.OutcomeFailed, err
	}
	log.Infof("defined samba share [%s] for %s in %s (backup: %s)", name, path, r.Path, backup)

	if err := r.validateAndReload(backup); err != nil {
		return types.OutcomeFailed, err
	}
	return types.OutcomeDone, nil
}

// RetractShare deactivates every line of the named section, up to the
// next section header. The retired lines stay in the file.
func (r *SambaReconciler) RetractShare(name string) (types.Outcome, error) {
	lines, err := r.readLines()
	if err != nil {
		if os.IsNotExist(err) {
			return types.OutcomeAlreadySatisfied, nil
		}
		return types.OutcomeFailed, err
	}

	n := 0
	inSection := false
	for i, l := range lines {
		trimmed := strings.TrimSpace(l)
		if header, ok := sectionHeader(trimmed); ok {
			inSection = header == name
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			continue
		}
		if inSection && trimmed != "" {
			lines[i] = volutil.RetiredMarker + l
			n++
		}
	}
	if n == 0 {
		log.Infof("%s has no active share named %q", r.Path, name)
		return types.OutcomeAlreadySatisfied, nil
	}

	backup, err := utils.BackupFile(r.Path)
	if err != nil {
		return types.OutcomeFailed, fmt.Errorf("could not back up %s: %w", r.Path, err)
	}
	if err := r.writeLines(lines); err != nil {
		return types.OutcomeFailed, err
	}
	log.Infof("deactivated samba share [%s], %d line(s) retired (backup: %s)", name, n, backup)

	if err := r.validateAndReload(backup); err != nil {
		return types.OutcomeFailed, err
	}
	return types.OutcomeDone, nil
}

// ActiveShares lists active sections with their path values. The
// reserved global sections are not shares.
func (r *SambaReconciler) ActiveShares() ([]ShareSection, error) {
	lines, err := r.readLines()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sections []ShareSection
	current := -1
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			continue
		}
		if header, ok := sectionHeader(trimmed); ok {
			if header == "global" || header == "printers" || header == "print$" || header == "homes" {
				current = -1
				continue
			}
			sections = append(sections, ShareSection{Name: header})
			current = len(sections) - 1
			continue
		}
		if current < 0 {
			continue
		}
		if k, v, ok := keyValue(trimmed); ok && k == "path" {
			sections[current].Path = v
		}
	}
	return sections, nil
}

func sectionHeader(trimmed string) (string, bool) {
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") && len(trimmed) > 2 {
		return trimmed[1 : len(trimmed)-1], true
	}
	return "", false
}

func keyValue(trimmed string) (string, string, bool) {
	parts := strings.SplitN(trimmed, "=", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(parts[0])), strings.TrimSpace(parts[1]), true
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (r *SambaReconciler) readLines() ([]string, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSuffix(string(data), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

func (r *SambaReconciler) writeLines(lines []string) error {
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(r.Path, []byte(content), 0644); err != nil {
		return fmt.Errorf("could not write %s: %w", r.Path, err)
	}
	return nil
}

// validateAndReload runs the config checker on the rewritten file and
// only reloads the daemon when it passes. A failed check leaves the
// daemon on its previous in-memory config and points at the backup.
func (r *SambaReconciler) validateAndReload(backup string) error {
	if utils.CommandExists("testparm") {
		if out, err := r.Executor.ExecuteCommandWithCombinedOutput("testparm", "-s", r.Path); err != nil {
			if backup != "" {
				return fmt.Errorf("testparm rejected %s, not reloading; restore from %s: %v: %s", r.Path, backup, err, out)
			}
			return fmt.Errorf("testparm rejected %s, not reloading: %v: %s", r.Path, err, out)
		}
	} else {
		log.Warnf("testparm not installed, skipping samba config validation")
	}

	if !utils.CommandExists("smbcontrol") {
		log.Warnf("smbcontrol not installed, skipping samba reload; changes apply on next daemon start")
		return nil
	}
	if out, err := r.Executor.ExecuteCommandWithCombinedOutput("smbcontrol", "all", "reload-config"); err != nil {
		return fmt.Errorf("smbcontrol reload-config failed: %v: %s", err, out)
	}
	return nil
}
