package filter

import "fmt"

// SyntaxError is the structured diagnostic every parse failure carries:
// a byte position, a human message, and a suggested fix. It implements
// error so callers that only check for failure can still use errors.As
// to recover the structured fields.
type SyntaxError struct {
	Pos      int
	Message  string
	Expected string
	Hint     string
}

func (e *SyntaxError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("filter: syntax error at %d: %s (expected %s)", e.Pos, e.Message, e.Expected)
	}
	return fmt.Sprintf("filter: syntax error at %d: %s", e.Pos, e.Message)
}
