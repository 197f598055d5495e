package activation

import "fmt"

// MandatoryElementError means a required login element never appeared within
// its wait budget. Fatal for the account.
type MandatoryElementError struct {
	Query string
	Err   error
}

func (e *MandatoryElementError) Error() string {
	return fmt.Sprintf("mandatory element '%s' never appeared: %v", e.Query, e.Err)
}

func (e *MandatoryElementError) Unwrap() error { return e.Err }

// NavigationError means an expected page or URL was never reached. Fatal for
// the account.
type NavigationError struct {
	Expected string
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("expected page '%s' never reached: %v", e.Expected, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ToggleError means a protocol toggle control never became visible, or a
// click was issued but the UI never confirmed the new state. The server-side
// state is whatever the UI last showed.
type ToggleError struct {
	Protocol string
	Err      error
}

func (e *ToggleError) Error() string {
	return fmt.Sprintf("toggling %s failed: %v", e.Protocol, e.Err)
}

func (e *ToggleError) Unwrap() error { return e.Err }
