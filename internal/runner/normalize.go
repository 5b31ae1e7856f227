package runner

import "github.com/felixgeelhaar/verdict/internal/domain"

// Normalize enforces the outcome shape: an error discards any results, and
// a results outcome always carries a non-nil list.
func Normalize(o domain.Outcome) domain.Outcome {
	if o.IsError() {
		return domain.Failed(o.Error)
	}
	return domain.Completed(o.Results)
}
