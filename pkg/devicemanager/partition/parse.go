package partition

import (
	"strconv"
	"strings"

	"github.com/volutil/volutil/pkg/types"
	"github.com/volutil/volutil/utils/log"
)

// ListDevicesDetail lists block devices, or a single device when given.
func (ld *LocalPartitionImplement) ListDevicesDetail(device string) ([]*types.LocalDisk, error) {
	args := []string{"--pairs", "--paths", "--bytes", "--output", "NAME,FSTYPE,MOUNTPOINT,SIZE,STATE,TYPE,ROTA,RO,PKNAME"}
	if device != "" {
		args = append(args, device)
	}
	devices, err := ld.Executor.ExecuteCommandWithOutput("lsblk", args...)
	if err != nil {
		log.Error("exec lsblk failed " + err.Error())
		return nil, err
	}

	return parseDiskString(devices), nil
}

// partitionNodes returns the device nodes of the partitions on device.
func (ld *LocalPartitionImplement) partitionNodes(device string) ([]string, error) {
	disks, err := ld.ListDevicesDetail(device)
	if err != nil {
		return nil, err
	}
	var nodes []string
	for _, d := range disks {
		if d.Type == "part" {
			nodes = append(nodes, d.Name)
		}
	}
	return nodes, nil
}

func parseDiskString(diskString string) []*types.LocalDisk {
	resp := []*types.LocalDisk{}

	if diskString == "" {
		return resp
	}

	diskString = strings.ReplaceAll(diskString, "\"", "")

	for _, row := range strings.Split(diskString, "\n") {
		if strings.TrimSpace(row) == "" {
			continue
		}
		tmp := types.LocalDisk{}
		for _, pair := range strings.Split(row, " ") {
			k := strings.SplitN(pair, "=", 2)
			if len(k) != 2 {
				continue
			}

			switch k[0] {
			case "NAME":
				tmp.Name = k[1]
			case "MOUNTPOINT":
				tmp.MountPoint = k[1]
			case "SIZE":
				tmp.Size, _ = strconv.ParseUint(k[1], 10, 64)
			case "STATE":
				tmp.State = k[1]
			case "TYPE":
				tmp.Type = k[1]
			case "ROTA":
				tmp.Rotational = k[1]
			case "RO":
				tmp.Readonly = k[1] == "1"
			case "FSTYPE":
				tmp.Filesystem = k[1]
			case "PKNAME":
				tmp.ParentName = k[1]
			default:
				log.Warnf("undefined field %s-%s", k[0], k[1])
			}
		}

		resp = append(resp, &tmp)
	}
	return resp
}
