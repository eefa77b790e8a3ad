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

package run

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	volutil "github.com/volutil/volutil"
	"github.com/volutil/volutil/pkg/configuration"
	"github.com/volutil/volutil/pkg/types"
)

var rootConfig struct {
	yes bool
}

var rootCmd = &cobra.Command{
	Use:     "volutil",
	Version: volutil.Version,
	Short:   "Local volume provisioning and decommissioning",
	Long: `volutil builds disk volumes end to end: it allocates free space,
creates and formats a partition, mounts it, makes the mount persistent
and optionally shares it over NFS and Samba. The decom subcommand walks
the same chain in reverse.

Run it as root on the host that owns the disks.`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configuration.Load()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootConfig.yes, "yes", "y", false,
		"Assume yes on every confirmation prompt")
}

// terminalDecider asks on stdin unless --yes was given.
func terminalDecider() types.Decider {
	if rootConfig.yes {
		return types.DecideFunc(func(string) bool { return true })
	}
	reader := bufio.NewReader(os.Stdin)
	return types.DecideFunc(func(prompt string) bool {
		fmt.Printf("%s [y/N]: ", prompt)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	})
}

func promptLine(prompt string) (string, error) {
	fmt.Printf("%s: ", prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
