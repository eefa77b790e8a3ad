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

// Package configuration loads the optional site config. Every setting
// has a built-in default so a host without /etc/volutil works out of
// the box.
package configuration

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	volutil "github.com/volutil/volutil"
	"github.com/volutil/volutil/pkg/devicemanager/filesystem"
	"github.com/volutil/volutil/utils"
	"github.com/volutil/volutil/utils/log"
)

const configPath = "/etc/volutil/"

var GlobalConfig *viper.Viper
var siteConfig Site

var opt = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))

var siteValidate = validator.New()

type Site struct {
	FstabPath         string        `json:"fstabPath" validate:"omitempty,startswith=/"`
	ExportsPath       string        `json:"exportsPath" validate:"omitempty,startswith=/"`
	SmbConfPath       string        `json:"smbConfPath" validate:"omitempty,startswith=/"`
	MountRoot         string        `json:"mountRoot" validate:"omitempty,startswith=/"`
	DefaultFsType     string        `json:"defaultFsType"`
	NfsOptions        string        `json:"nfsOptions"`
	AlignmentBytes    uint64        `json:"alignmentBytes"`
	PartprobeRetries  int           `json:"partprobeRetries"`
	PartprobeInterval time.Duration `json:"partprobeInterval"`
}

// Load reads the site config if one exists. A missing file is not an
// error, everything falls back to defaults.
func Load() error {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debugf("no site config under %s, using defaults", configPath)
			GlobalConfig = v
			return nil
		}
		return fmt.Errorf("failed to read the configuration: %w", err)
	}

	if err := v.Unmarshal(&siteConfig, opt); err != nil {
		return fmt.Errorf("failed to unmarshal the configuration: %w", err)
	}
	if err := validate(siteConfig); err != nil {
		return fmt.Errorf("failed to validate the configuration: %w", err)
	}

	GlobalConfig = v
	return nil
}

func FstabPath() string {
	if siteConfig.FstabPath == "" {
		return volutil.DefaultFstabPath
	}
	return siteConfig.FstabPath
}

func ExportsPath() string {
	if siteConfig.ExportsPath == "" {
		return volutil.DefaultExportsPath
	}
	return siteConfig.ExportsPath
}

func SmbConfPath() string {
	if siteConfig.SmbConfPath == "" {
		return volutil.DefaultSmbConfPath
	}
	return siteConfig.SmbConfPath
}

func MountRoot() string {
	if siteConfig.MountRoot == "" {
		return volutil.DefaultMountRoot
	}
	return siteConfig.MountRoot
}

func DefaultFsType() string {
	if siteConfig.DefaultFsType == "" {
		return volutil.DefaultFsType
	}
	return siteConfig.DefaultFsType
}

func NfsOptions() string {
	if siteConfig.NfsOptions == "" {
		return volutil.DefaultNfsOptions
	}
	return siteConfig.NfsOptions
}

// AlignmentBytes never goes below 1MiB, smaller values defeat the point
// of aligning at all.
func AlignmentBytes() uint64 {
	if siteConfig.AlignmentBytes < volutil.DefaultAlignmentBytes {
		return volutil.DefaultAlignmentBytes
	}
	return siteConfig.AlignmentBytes
}

func PartprobeRetries() int {
	if siteConfig.PartprobeRetries <= 0 {
		return 10
	}
	return siteConfig.PartprobeRetries
}

func PartprobeInterval() time.Duration {
	if siteConfig.PartprobeInterval <= 0 {
		return 500 * time.Millisecond
	}
	return siteConfig.PartprobeInterval
}

func validate(s Site) error {
	if err := siteValidate.Struct(&s); err != nil {
		return fmt.Errorf("invalid site config: %w", err)
	}
	// registry-backed, a tag cannot know which formatters are compiled in
	if s.DefaultFsType != "" && !utils.ContainsString(filesystem.SupportedFsTypes(), s.DefaultFsType) {
		return fmt.Errorf("defaultFsType must be one of %s: %s",
			strings.Join(filesystem.SupportedFsTypes(), ", "), s.DefaultFsType)
	}
	if s.AlignmentBytes != 0 && s.AlignmentBytes%512 != 0 {
		return fmt.Errorf("alignmentBytes must be a multiple of the 512 byte sector: %d", s.AlignmentBytes)
	}
	return nil
}
