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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/volutil/volutil/pkg/configuration"
	"github.com/volutil/volutil/pkg/decommission"
	"github.com/volutil/volutil/pkg/devicemanager/partition"
	"github.com/volutil/volutil/pkg/fstab"
	"github.com/volutil/volutil/pkg/share"
	"github.com/volutil/volutil/utils"
)

var decomCmd = &cobra.Command{
	Use:   "decom <device|partition>",
	Short: "Tear down a volume and release its disk space",
	Long: `decom removes everything build put in place, in reverse order:
shares first, then the mount, then the persistent mount table entry,
then the partition itself. Given a whole device it walks every
partition on it and offers a final signature wipe.

Nothing destructive happens without confirmation unless --yes is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runDecom(args[0])
	},
}

func init() {
	rootCmd.AddCommand(decomCmd)
}

func runDecom(target string) error {
	if !utils.FileExists(target) {
		return fmt.Errorf("device %s does not exist", target)
	}

	decide := terminalDecider()

	mounts := fstab.NewReconciler(decide)
	mounts.TablePath = configuration.FstabPath()
	exports := share.NewExportsReconciler()
	exports.Path = configuration.ExportsPath()
	samba := share.NewSambaReconciler()
	samba.Path = configuration.SmbConfPath()

	o := decommission.New(partition.NewLocalPartitionImplement(), mounts, exports, samba, decide)

	t, err := o.ResolveTarget(target)
	if err != nil {
		return err
	}

	summary, err := o.Run(t)
	if err != nil {
		return err
	}
	if !summary.Complete {
		return errors.New("decommission run incomplete, see warnings above")
	}
	return nil
}
