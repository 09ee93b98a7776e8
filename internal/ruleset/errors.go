package ruleset

import "errors"

// Config-phase errors (spec §6 operator-facing error codes).
var (
	ErrDuplicateName  = errors.New("ruleset: duplicate name")
	ErrNotFound       = errors.New("ruleset: not found")
	ErrNoCurrRuleset  = errors.New("ruleset: no current ruleset in scope")
	ErrZeroActions    = errors.New("ruleset: rule has zero actions")
	ErrRulesetExists  = errors.New("ruleset: already attached to a registry")
	ErrQueueExists    = errors.New("ruleset: queue already attached")
	ErrRulesetVanished = errors.New("ruleset: bound ruleset no longer exists")
)

// ErrAllocFail is returned by the batch dispatcher's slow path when
// allocating the temporary single-ruleset batch fails. Production
// allocation never fails; this exists so tests can inject the failure via
// Dispatcher.AllocFunc and assert the documented abort behavior.
var ErrAllocFail = errors.New("ruleset: batch allocation failed")
