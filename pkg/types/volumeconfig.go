package types

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// baseNamePattern limits volume names to what both mount paths and share
// names tolerate.
var baseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("volname", func(fl validator.FieldLevel) bool {
		return baseNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// VolumeConfig is the operator intent for a single provisioning run. It is
// never persisted itself, only its effects are.
type VolumeConfig struct {
	Device          string   `validate:"required,startswith=/dev/"`
	Size            string   `validate:"-"`
	BaseName        string   `validate:"required,volname"`
	FsType          string   `validate:"oneof=ext4 xfs"`
	ReservedPercent int      `validate:"gte=0,lte=50"`
	Persist         bool
	NFS             bool
	Samba           bool
	GuestAccess     bool
	Principals      []string `validate:"dive,required"`
}

// Validate rejects bad operator input before any external command runs.
func (c *VolumeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid volume config: %w", err)
	}
	if c.Samba && len(c.BaseName) > 80 {
		return fmt.Errorf("name %q is too long for a samba share (max 80 characters)", c.BaseName)
	}
	if c.Samba && !c.GuestAccess && len(c.Principals) == 0 {
		return fmt.Errorf("an authenticated samba share needs at least one principal")
	}
	return nil
}
