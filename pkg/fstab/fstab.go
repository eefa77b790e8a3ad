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

// Package fstab reconciles the persistent mount table. Every mutation is
// read-modify-write over a parsed model, guarded by a timestamped backup.
// Retired lines are commented out, never deleted, so history stays
// auditable and reversible.
package fstab

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	volutil "github.com/volutil/volutil"
	"github.com/volutil/volutil/utils"
)

// Entry is one active persistent-mount-table line.
type Entry struct {
	Spec    string // UUID=<uuid> or a device path
	Path    string
	VfsType string
	Options string
	Freq    int
	Passno  int
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %s %s %d %d", e.Spec, e.Path, e.VfsType, e.Options, e.Freq, e.Passno)
}

// UUID returns the bare uuid when the entry is UUID-keyed.
func (e Entry) UUID() string {
	if strings.HasPrefix(e.Spec, "UUID=") {
		return strings.TrimPrefix(e.Spec, "UUID=")
	}
	return ""
}

type line struct {
	raw   string
	entry *Entry // nil for comments and blanks
}

// Table is the in-memory model of one mount-table file.
type Table struct {
	path  string
	lines []line
}

// Load parses the mount table at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}

	t := &Table{path: path}
	content := strings.TrimSuffix(string(data), "\n")
	if content == "" {
		return t, nil
	}
	for _, raw := range strings.Split(content, "\n") {
		t.lines = append(t.lines, line{raw: raw, entry: parseEntry(raw)})
	}
	return t, nil
}

func parseEntry(raw string) *Entry {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil
	}
	fields := strings.Fields(trimmed)
	if len(fields) < 4 {
		return nil
	}
	e := &Entry{
		Spec:    fields[0],
		Path:    fields[1],
		VfsType: fields[2],
		Options: fields[3],
	}
	if len(fields) > 4 {
		e.Freq, _ = strconv.Atoi(fields[4])
	}
	if len(fields) > 5 {
		e.Passno, _ = strconv.Atoi(fields[5])
	}
	return e
}

// ActiveEntries lists the non-comment entries.
func (t *Table) ActiveEntries() []Entry {
	var entries []Entry
	for _, l := range t.lines {
		if l.entry != nil {
			entries = append(entries, *l.entry)
		}
	}
	return entries
}

// FindActive returns the first active entry matching any identifier. An
// identifier may be a bare UUID, a device path or a mount path, since a
// volume may have been added under any of them.
func (t *Table) FindActive(idents ...string) *Entry {
	for _, l := range t.lines {
		if l.entry == nil {
			continue
		}
		if entryMatches(l.entry, idents) {
			e := *l.entry
			return &e
		}
	}
	return nil
}

func entryMatches(e *Entry, idents []string) bool {
	for _, id := range idents {
		if id == "" {
			continue
		}
		if e.Spec == id || e.Spec == "UUID="+id || e.Path == id {
			return true
		}
	}
	return false
}

// Append adds a new active entry to the model.
func (t *Table) Append(e Entry) {
	t.lines = append(t.lines, line{raw: e.String(), entry: &e})
}

// Deactivate comments out every active line matching any identifier and
// returns how many lines it touched.
func (t *Table) Deactivate(idents ...string) int {
	n := 0
	for i := range t.lines {
		if t.lines[i].entry == nil {
			continue
		}
		if entryMatches(t.lines[i].entry, idents) {
			t.lines[i].raw = volutil.RetiredMarker + t.lines[i].raw
			t.lines[i].entry = nil
			n++
		}
	}
	return n
}

// Save backs up the file and writes the model back. The backup path is
// returned so it can be reported to the operator.
func (t *Table) Save() (string, error) {
	backup, err := utils.BackupFile(t.path)
	if err != nil {
		return "", fmt.Errorf("could not back up %s: %w", t.path, err)
	}

	var b strings.Builder
	for _, l := range t.lines {
		b.WriteString(l.raw)
		b.WriteString("\n")
	}

	info, err := os.Stat(t.path)
	if err != nil {
		return backup, err
	}
	if err := os.WriteFile(t.path, []byte(b.String()), info.Mode()); err != nil {
		return backup, fmt.Errorf("could not write %s (backup at %s): %w", t.path, backup, err)
	}
	return backup, nil
}
