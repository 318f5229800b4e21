// Package policy holds what the pluggable policy families share: the violation
// error raised when a policy misbehaves and the recovery helper used around every
// call into policy code.
package policy

import (
	"errors"
	"fmt"
)

var ErrViolation = errors.New("policy violation")

// Family names the policy kinds a violation can come from.
type Family string

const (
	Eviction    Family = "eviction"
	Admission   Family = "admission"
	Tenancy     Family = "tenancy"
	Consistency Family = "consistency"
)

type Violation struct {
	Family Family
	Policy string
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s policy %q violated its contract: %s", v.Family, v.Policy, v.Reason)
}

func (v *Violation) Is(target error) bool {
	return target == ErrViolation
}

func Violate(family Family, name, format string, args ...any) *Violation {
	return &Violation{Family: family, Policy: name, Reason: fmt.Sprintf(format, args...)}
}

// Recover converts a panic of policy code into a Violation stored in *err.
// It must be deferred directly.
func Recover(family Family, name string, err *error) {
	if r := recover(); r != nil {
		*err = Violate(family, name, "panic: %v", r)
	}
}
