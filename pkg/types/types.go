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

package types

// Outcome is the tri-state result of a reconciliation step. The
// orchestrator needs to tell "nothing to do" apart from "did the thing"
// before letting dependent steps proceed.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeDone
	OutcomeAlreadySatisfied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeAlreadySatisfied:
		return "already-satisfied"
	}
	return "failed"
}

// OK reports whether the step left the system in the desired state.
func (o Outcome) OK() bool {
	return o == OutcomeDone || o == OutcomeAlreadySatisfied
}

// Decider answers yes/no gates. Destructive steps never run without one.
// The CLI supplies a terminal prompt, tests supply a scripted source.
type Decider interface {
	Confirm(prompt string) bool
}

// DecideFunc adapts a function to the Decider interface.
type DecideFunc func(prompt string) bool

func (f DecideFunc) Confirm(prompt string) bool {
	return f(prompt)
}

// LocalDisk is one row of the lsblk listing.
type LocalDisk struct {
	Name       string
	MountPoint string
	Size       uint64
	State      string
	Type       string
	Rotational string
	Readonly   bool
	Filesystem string
	ParentName string
}
