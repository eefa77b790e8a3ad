package share

import (
	"fmt"
	"strings"

	"github.com/volutil/volutil/pkg/types"
	"github.com/volutil/volutil/utils/exec"
	"github.com/volutil/volutil/utils/log"
)

// ApplyDirectoryPolicy adjusts ownership and mode of a shared directory
// to match its access scope: guest shares get a permissive mode under the
// generic unprivileged account, authenticated shares are handed to the
// first named principal with a group-restricted mode. Ownership changes
// live outside the share config files, so a confirmation is always asked.
func ApplyDirectoryPolicy(executor exec.Executor, decide types.Decider, dir string, opts ShareOptions) (types.Outcome, error) {
	owner := "nobody:nogroup"
	mode := "0777"
	if !opts.Guest {
		if len(opts.ValidUsers) == 0 {
			return types.OutcomeFailed, fmt.Errorf("authenticated share for %s has no principals to own it", dir)
		}
		owner = opts.ValidUsers[0]
		mode = "0770"
	}

	prompt := fmt.Sprintf("set ownership of %s to %s and mode to %s?", dir, owner, mode)
	if !decide.Confirm(prompt) {
		log.Infof("leaving permissions of %s unchanged", dir)
		return types.OutcomeAlreadySatisfied, nil
	}

	if out, err := executor.ExecuteCommandWithCombinedOutput("chown", owner, dir); err != nil {
		return types.OutcomeFailed, fmt.Errorf("chown %s %s failed: %v: %s", owner, dir, err, strings.TrimSpace(out))
	}
	if out, err := executor.ExecuteCommandWithCombinedOutput("chmod", mode, dir); err != nil {
		return types.OutcomeFailed, fmt.Errorf("chmod %s %s failed: %v: %s", mode, dir, err, strings.TrimSpace(out))
	}
	log.Infof("set %s to %s mode %s", dir, owner, mode)
	return types.OutcomeDone, nil
}
