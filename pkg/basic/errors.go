package basic

import (
	"errors"
	"fmt"
)

// Error definitions for encoding and decoding program images.
var (
	ErrEmptyProgram      = errors.New("program has no lines")
	ErrInvalidLineOrder  = errors.New("line numbers not strictly increasing")
	ErrLineNumberRange   = errors.New("line number out of range (0-63999)")
	ErrAddressOverflow   = errors.New("program does not fit below $FFFF")
	ErrUnknownCharacter  = errors.New("character has no PETSCII code")
	ErrMalformedChain    = errors.New("malformed line link chain")
	ErrMissingLineNumber = errors.New("missing line number")
	ErrShortPRG          = errors.New("PRG file shorter than its load address")
)

// LineError reports which BASIC line (and, for character errors, which
// character) an encoding failure refers to.
type LineError struct {
	Line   int  // BASIC line number
	Column int  // 1-based position in the line text, 0 if not applicable
	Char   rune // offending character, 0 if not applicable
	Err    error
}

// Error implements the error interface
func (e *LineError) Error() string {
	if e.Char != 0 {
		return fmt.Sprintf("line %d: %v: %q at column %d", e.Line, e.Err, e.Char, e.Column)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// chainError describes a link chain defect at a memory address.
func chainError(addr int, format string, args ...interface{}) error {
	return fmt.Errorf("%w at $%04X: %s", ErrMalformedChain, addr, fmt.Sprintf(format, args...))
}
