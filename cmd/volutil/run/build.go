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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/volutil/volutil/pkg/configuration"
	"github.com/volutil/volutil/pkg/devicemanager/allocator"
	"github.com/volutil/volutil/pkg/devicemanager/filesystem"
	"github.com/volutil/volutil/pkg/devicemanager/partition"
	"github.com/volutil/volutil/pkg/fstab"
	"github.com/volutil/volutil/pkg/share"
	"github.com/volutil/volutil/pkg/types"
	"github.com/volutil/volutil/utils"
	"github.com/volutil/volutil/utils/log"
)

var buildConfig struct {
	name       string
	fsType     string
	reserved   int
	persist    bool
	nfs        bool
	samba      bool
	guest      bool
	principals []string
}

var buildCmd = &cobra.Command{
	Use:   "build <device> [size]",
	Short: "Provision a new volume on a device",
	Long: `build allocates the largest free region on the device (or the
requested size within it), creates and formats a partition there, mounts
it under the mount root and optionally persists and shares it.

An omitted size means the whole largest free region. Sizes are binary
units: 512M, 1G, 2T.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		size := ""
		if len(args) == 2 {
			size = args[1]
		}
		return runBuild(args[0], size)
	},
}

func init() {
	fs := buildCmd.Flags()
	fs.StringVar(&buildConfig.name, "name", "", "Base name for the mount path and share names (prompted when omitted)")
	fs.StringVar(&buildConfig.fsType, "fs-type", "", "Filesystem to create, ext4 or xfs")
	fs.IntVar(&buildConfig.reserved, "reserved", 0, "Reserved space percent for the filesystem, 0-50")
	fs.BoolVar(&buildConfig.persist, "persist", false, "Add the mount to the persistent mount table")
	fs.BoolVar(&buildConfig.nfs, "nfs", false, "Export the volume over NFS")
	fs.BoolVar(&buildConfig.samba, "samba", false, "Share the volume over Samba")
	fs.BoolVar(&buildConfig.guest, "guest", false, "Allow unauthenticated guest access on shares")
	fs.StringSliceVar(&buildConfig.principals, "user", nil, "Principal allowed on authenticated shares (repeatable)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(device, size string) error {
	if !utils.FileExists(device) {
		return fmt.Errorf("device %s does not exist", device)
	}

	name := buildConfig.name
	if name == "" {
		if rootConfig.yes {
			return errors.New("--name is required together with --yes")
		}
		var err error
		name, err = promptLine("Base name for the volume (letters, digits, - and _)")
		if err != nil {
			return err
		}
	}

	fsType := buildConfig.fsType
	if fsType == "" {
		fsType = configuration.DefaultFsType()
	}

	cfg := &types.VolumeConfig{
		Device:          device,
		Size:            size,
		BaseName:        name,
		FsType:          fsType,
		ReservedPercent: buildConfig.reserved,
		Persist:         buildConfig.persist,
		NFS:             buildConfig.nfs,
		Samba:           buildConfig.samba,
		GuestAccess:     buildConfig.guest,
		Principals:      buildConfig.principals,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	decide := terminalDecider()

	alloc := allocator.New()
	alloc.AlignmentBytes = configuration.AlignmentBytes()
	result, err := alloc.Allocate(allocator.Request{Device: cfg.Device, Size: cfg.Size})
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		log.Warn(w)
	}
	sectors := result.End - result.Start + 1
	log.Infof("allocated sectors %d-%d on %s (%s)", result.Start, result.End, cfg.Device,
		utils.FormatIECSize(sectors*result.SectorSize))

	if !decide.Confirm(fmt.Sprintf("create a %s %s partition on %s?",
		utils.FormatIECSize(sectors*result.SectorSize), cfg.FsType, cfg.Device)) {
		return errors.New("aborted before partition creation")
	}

	parts := partition.NewLocalPartitionImplement()
	parts.DetectRetries = configuration.PartprobeRetries()
	parts.DetectInterval = configuration.PartprobeInterval()
	node, err := parts.Create(cfg.Device, result.Start, result.End, cfg.FsType)
	if err != nil {
		if errors.Is(err, partition.ErrKernelStale) {
			log.Warnf("the kernel did not pick up the new partition table on %s; reboot and re-run, retrying will not help", cfg.Device)
		}
		return err
	}
	log.Infof("created partition %s", node)

	uuid, err := parts.Format(node, cfg.FsType)
	if err != nil {
		return err
	}
	log.Infof("formatted %s as %s, uuid %s", node, cfg.FsType, uuid)

	if cfg.ReservedPercent > 0 {
		switch err := parts.TuneReserved(node, cfg.FsType, cfg.ReservedPercent); {
		case errors.Is(err, filesystem.ErrNotSupported):
			log.Warnf("%s has no reserved-space tunable, skipping", cfg.FsType)
		case err != nil:
			return err
		default:
			log.Infof("reserved %d%% on %s", cfg.ReservedPercent, node)
		}
	}

	mountPath := filepath.Join(configuration.MountRoot(), cfg.BaseName)
	mounts := fstab.NewReconciler(decide)
	mounts.TablePath = configuration.FstabPath()
	outcome, err := mounts.Bind(uuid, mountPath, cfg.FsType, cfg.Persist)
	if err != nil {
		return err
	}
	log.Infof("mount %s: %s", mountPath, outcome)

	if cfg.NFS {
		exports := share.NewExportsReconciler()
		exports.Path = configuration.ExportsPath()
		outcome, err := exports.Export(mountPath, "*("+configuration.NfsOptions()+")")
		if err != nil {
			return err
		}
		log.Infof("nfs export %s: %s", mountPath, outcome)
	}

	if cfg.Samba {
		samba := share.NewSambaReconciler()
		samba.Path = configuration.SmbConfPath()
		outcome, err := samba.DefineShare(cfg.BaseName, mountPath, share.ShareOptions{
			Guest:      cfg.GuestAccess,
			ValidUsers: cfg.Principals,
		})
		if err != nil {
			return err
		}
		log.Infof("samba share [%s]: %s", cfg.BaseName, outcome)
	}

	if cfg.NFS || cfg.Samba {
		outcome, err := share.ApplyDirectoryPolicy(parts.Executor, decide, mountPath, share.ShareOptions{
			Guest:      cfg.GuestAccess,
			ValidUsers: cfg.Principals,
		})
		if err != nil {
			return err
		}
		log.Infof("directory policy on %s: %s", mountPath, outcome)
	}

	log.Infof("volume %s ready at %s", cfg.BaseName, mountPath)
	return nil
}
