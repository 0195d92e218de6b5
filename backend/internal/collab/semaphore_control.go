package collab

import (
	"context"
	"errors"
)

var MaxSemaphore = 100

var (
	ErrSemaphoreTimeout = errors.New("acquire reached time limit")
	ErrSemaphoreNotHeld = errors.New("release failed, semaphore is not acquired")
)

// SemaphoreControl 限制同时进行的提交/发送数量
type SemaphoreControl struct {
	ch chan struct{}
}

// NewSemaphoreControl 容量 <= 0 时使用 MaxSemaphore
func NewSemaphoreControl(size int) *SemaphoreControl {
	if size <= 0 {
		size = MaxSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, size)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrSemaphoreTimeout
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrSemaphoreNotHeld
	}
}
