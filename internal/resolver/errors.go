package resolver

import (
	"errors"
	"fmt"
)

// ErrEntityNotFound matches every [NotFoundError] via [errors.Is].
var ErrEntityNotFound = errors.New("resolver: entity not found")

// NotFoundError is returned when every strategy missed.
type NotFoundError struct {
	Token string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resolver: no entity matches %q", e.Token)
}

// Is reports whether target is [ErrEntityNotFound].
func (e *NotFoundError) Is(target error) bool {
	return target == ErrEntityNotFound
}
