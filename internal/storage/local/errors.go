package local

import (
	"fmt"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

// ErrNotFound is returned when a record file does not exist. It matches
// domain.ErrNotFound with errors.Is.
var ErrNotFound = fmt.Errorf("local store: %w", domain.ErrNotFound)
