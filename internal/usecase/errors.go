package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrRepository = errors.New("repository error")
	ErrUpstream   = errors.New("upstream error")
)

func wrapRepo(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRepository, err)
}

// UpstreamStatusError carries a non-2xx upstream status plus the target path
// shape for diagnostics. Target never includes the query string, so the
// credential cannot leak through error messages.
type UpstreamStatusError struct {
	Status int
	Target string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Status, e.Target)
}

func (e *UpstreamStatusError) Unwrap() error { return ErrUpstream }
