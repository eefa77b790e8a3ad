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

package volutil

const (
	// Version project
	Version = "beta"

	// DefaultMountRoot is where volume mount points are created, as /mnt/<name>
	DefaultMountRoot = "/mnt"

	// DefaultAlignmentBytes partition start alignment, 1MiB
	DefaultAlignmentBytes = 1 << 20

	// DefaultFsType filesystem used when none is requested
	DefaultFsType = "ext4"

	// DefaultFstabPath persistent mount table
	DefaultFstabPath = "/etc/fstab"
	// DefaultExportsPath NFS export table
	DefaultExportsPath = "/etc/exports"
	// DefaultSmbConfPath Samba share config
	DefaultSmbConfPath = "/etc/samba/smb.conf"

	// RetiredMarker prefix used to deactivate config lines instead of deleting them
	RetiredMarker = "# volutil-retired: "

	// MaxReservedPercent upper bound for the filesystem reserved-space tunable.
	// Reservations above this would make the volume mostly unusable.
	MaxReservedPercent = 50

	// MaxSambaShareName samba rejects share names longer than this
	MaxSambaShareName = 80

	// DefaultNfsOptions options appended to new export lines
	DefaultNfsOptions = "rw,sync,no_subtree_check"
)
