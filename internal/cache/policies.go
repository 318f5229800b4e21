package cache

import (
	"errors"
	"github.com/Borislavv/go-hotkv/internal/policy"
	"github.com/Borislavv/go-hotkv/internal/policy/admission"
	"github.com/Borislavv/go-hotkv/internal/policy/consistency"
	"github.com/Borislavv/go-hotkv/internal/policy/tenancy"
	"github.com/Borislavv/go-hotkv/model"
	"time"
)

type admissionBox struct{ p admission.Policy }

type consistencyBox struct{ p consistency.Policy }

// guard calls fn and turns its panic into a policy violation.
func guard[T any](family policy.Family, name string, fn func() T) (out T, err error) {
	defer policy.Recover(family, name, &err)
	return fn(), nil
}

func (c *Cache) admit(cand admission.Candidate, budget admission.Budget) bool {
	box := c.admission.Load()
	ok, err := guard(policy.Admission, box.p.Name(), func() bool { return box.p.Admit(cand, budget) })
	if err == nil {
		return ok
	}
	if c.admission.CompareAndSwap(box, &admissionBox{p: admission.Always{}}) {
		c.fault(err, cand.Key.Tenant, box.p.Name(), admission.Always{}.Name())
	}
	return true
}

func (c *Cache) onRead(r consistency.Read) consistency.ReadAction {
	box := c.consistency.Load()
	action, err := guard(policy.Consistency, box.p.Name(), func() consistency.ReadAction { return box.p.OnRead(r) })
	if err == nil && action > consistency.Miss {
		err = policy.Violate(policy.Consistency, box.p.Name(), "unknown read action %d", action)
	}
	if err == nil {
		return action
	}
	c.consistencyFault(box, err)
	return consistency.Strict{}.OnRead(r)
}

func (c *Cache) onInvalidate() consistency.InvalidateAction {
	box := c.consistency.Load()
	action, err := guard(policy.Consistency, box.p.Name(), box.p.OnInvalidate)
	if err == nil && action > consistency.MarkStaleRefresh {
		err = policy.Violate(policy.Consistency, box.p.Name(), "unknown invalidate action %d", action)
	}
	if err == nil {
		return action
	}
	c.consistencyFault(box, err)
	return consistency.Tombstone
}

func (c *Cache) onStaleSweep(staleFor time.Duration) consistency.SweepAction {
	box := c.consistency.Load()
	action, err := guard(policy.Consistency, box.p.Name(), func() consistency.SweepAction { return box.p.OnStaleSweep(staleFor) })
	if err == nil && action > consistency.Refresh {
		err = policy.Violate(policy.Consistency, box.p.Name(), "unknown sweep action %d", action)
	}
	if err == nil {
		return action
	}
	c.consistencyFault(box, err)
	return consistency.Remove
}

func (c *Cache) consistencyFault(box *consistencyBox, err error) {
	if c.consistency.CompareAndSwap(box, &consistencyBox{p: consistency.Strict{}}) {
		c.fault(err, 0, box.p.Name(), consistency.Strict{}.Name())
	}
}

// asyncRefresh reports whether the active consistency policy refreshes stale entries.
func (c *Cache) asyncRefresh() bool {
	_, ok := c.consistency.Load().p.(consistency.AsyncRefresh)
	return ok
}

func (c *Cache) onBudgetViolation(err error) {
	c.fault(err, 0, "", tenancy.HardQuota{}.Name())
}

// fault counts, logs and announces a policy replaced by its safe default.
func (c *Cache) fault(err error, tenant model.TenantID, failed, replacement string) {
	c.counters.policyFaults.Add(1)

	family := policy.Family("")
	var v *policy.Violation
	if errors.As(err, &v) {
		family = v.Family
		if failed == "" {
			failed = v.Policy
		}
	}
	c.logger.Error("[cache] policy disabled",
		"family", family,
		"policy", failed,
		"replacement", replacement,
		"tenant", tenant,
		"err", err,
	)
	c.publish(model.Event{Kind: model.PolicyFault, Tenant: tenant, Policy: failed, Detail: err.Error()})
}
