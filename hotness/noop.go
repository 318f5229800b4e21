package hotness

import "github.com/Borislavv/go-hotkv/model"

type NoOp struct{}

func NewNoOp() *NoOp { return &NoOp{} }

func (NoOp) Record(model.Key) {}

func (NoOp) Estimate(model.Key) uint8 { return 0 }

func (NoOp) Prefer(_, _ model.Key) bool { return true }

func (NoOp) Reset() {}
