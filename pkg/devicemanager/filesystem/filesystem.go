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

package filesystem

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrFilesystemExists the device already carries a filesystem
	ErrFilesystemExists = errors.New("filesystem exists")
	// ErrMounted refusing to format or tune a mounted filesystem
	ErrMounted = errors.New("device is mounted")
	// ErrNotSupported the tunable does not exist for this filesystem
	ErrNotSupported = errors.New("not supported for this filesystem")
)

// Filesystem formats a device and reads back its identity.
type Filesystem interface {
	// Mkfs creates the filesystem with fast-init options appropriate to
	// large modern disks. Refuses a device that is mounted or already
	// formatted.
	Mkfs() error
	// UUID returns the filesystem UUID assigned at format time. This is
	// the durable identifier; device paths may change across reboots.
	UUID() (string, error)
	// TuneReserved sets the reserved-space percentage, 0..50.
	TuneReserved(percent int) error
}

var fsTypeMap = map[string]func(device string) Filesystem{}

// New returns the Filesystem handler for fsType on device.
func New(device, fsType string) (Filesystem, error) {
	f, ok := fsTypeMap[fsType]
	if !ok {
		return nil, fmt.Errorf("unsupported filesystem type %q", fsType)
	}
	return f(device), nil
}

// SupportedFsTypes lists the registered filesystem kinds, sorted so the
// list is stable in messages.
func SupportedFsTypes() []string {
	types := make([]string, 0, len(fsTypeMap))
	for k := range fsTypeMap {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}
