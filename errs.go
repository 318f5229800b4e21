package hotkv

import (
	"errors"
	"github.com/Borislavv/go-hotkv/internal/policy"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/Borislavv/go-hotkv/transport"
)

var (
	ErrClosed     = errors.New("hotkv: cache closed")
	ErrInvalidKey = model.ErrInvalidKey

	// ErrPolicyViolation matches every *PolicyViolation.
	ErrPolicyViolation = policy.ErrViolation

	// ErrTransportTimeout is what a control channel call returns when its bound elapses.
	ErrTransportTimeout = transport.ErrTimeout
)

// PolicyViolation is raised when a policy plugin panics or breaks an invariant.
// Only the faulting plugin is replaced; the cache keeps serving.
type PolicyViolation = policy.Violation
