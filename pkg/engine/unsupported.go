//go:build !linux

package engine

import (
	"fmt"
)

type UringEngine struct {
}

func NewUring() *UringEngine {
	return &UringEngine{}
}

func (e *UringEngine) Run(params Params) (*Result, error) {
	return nil, fmt.Errorf("uring engine is only supported on Linux")
}

type LibAIOEngine struct {
}

func NewLibAIO() *LibAIOEngine {
	return &LibAIOEngine{}
}

func (e *LibAIOEngine) Run(params Params) (*Result, error) {
	return nil, fmt.Errorf("libaio engine is only supported on Linux")
}
