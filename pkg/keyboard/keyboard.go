// Package keyboard feeds keystrokes into the KERNAL keyboard buffer.
package keyboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/logger"
	"github.com/antibyte/c64mcp/pkg/petscii"
)

const (
	BufferAddr   uint16 = 0x0277
	LengthAddr   uint16 = 0x00C6
	MaxBufferLen        = 10
)

var (
	ErrNothingToType = errors.New("no valid characters to type")
	ErrUnknownKey    = errors.New("unknown key")
	ErrTooLong       = errors.New("keystrokes exceed keyboard buffer")
)

// Memory is the part of the device the keyboard needs
type Memory interface {
	ReadMemory(ctx context.Context, addr uint16, length int) ([]byte, error)
	WriteMemory(ctx context.Context, addr uint16, data []byte) error
}

// Typist writes keystrokes into the buffer in chunks the KERNAL can hold
type Typist struct {
	mem          Memory
	pollInterval time.Duration
	pollAttempts int
	sleep        func(ctx context.Context, d time.Duration) error
}

// New creates a Typist with the [Keyboard] settings
func New(mem Memory) *Typist {
	return &Typist{
		mem:          mem,
		pollInterval: configuration.GetDuration("Keyboard", "poll_interval", 100*time.Millisecond),
		pollAttempts: configuration.GetInt("Keyboard", "poll_attempts", 50),
		sleep:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitEmpty polls the length byte until the KERNAL has consumed the buffer.
// It reports false when the buffer did not drain in time.
func (k *Typist) WaitEmpty(ctx context.Context) (bool, error) {
	for i := 0; i < k.pollAttempts; i++ {
		data, err := k.mem.ReadMemory(ctx, LengthAddr, 1)
		if err != nil {
			return false, err
		}
		if data[0] == 0 {
			return true, nil
		}
		if err := k.sleep(ctx, k.pollInterval); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Inject writes at most MaxBufferLen codes and sets the length byte to
// exactly their count
func (k *Typist) Inject(ctx context.Context, codes []byte) error {
	if len(codes) > MaxBufferLen {
		return fmt.Errorf("%w: %d > %d", ErrTooLong, len(codes), MaxBufferLen)
	}
	if len(codes) == 0 {
		return nil
	}
	if drained, err := k.WaitEmpty(ctx); err != nil {
		return err
	} else if !drained {
		logger.Warn(logger.AreaKeyboard, "Keyboard buffer still busy, writing anyway")
	}
	if err := k.mem.WriteMemory(ctx, BufferAddr, codes); err != nil {
		return fmt.Errorf("writing keyboard buffer: %w", err)
	}
	if err := k.mem.WriteMemory(ctx, LengthAddr, []byte{byte(len(codes))}); err != nil {
		return fmt.Errorf("writing keyboard buffer length: %w", err)
	}
	return nil
}

// TypeCodes types PETSCII codes of any length, waiting wait between chunks
// and once more after the last one
func (k *Typist) TypeCodes(ctx context.Context, codes []byte, wait time.Duration) (int, error) {
	if len(codes) == 0 {
		return 0, ErrNothingToType
	}
	typed := 0
	for start := 0; start < len(codes); start += MaxBufferLen {
		end := start + MaxBufferLen
		if end > len(codes) {
			end = len(codes)
		}
		if err := k.Inject(ctx, codes[start:end]); err != nil {
			return typed, err
		}
		typed += end - start
		if err := k.sleep(ctx, wait); err != nil {
			return typed, err
		}
	}
	logger.Debug(logger.AreaKeyboard, "Typed %d characters", typed)
	return typed, nil
}

// TypeText converts text with {KEY} placeholders and types it
func (k *Typist) TypeText(ctx context.Context, text string, wait time.Duration) (int, error) {
	return k.TypeCodes(ctx, petscii.FromText(text), wait)
}

// SendKey types a single named key such as RETURN or F1
func (k *Typist) SendKey(ctx context.Context, name string) (byte, error) {
	code, ok := petscii.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKey, name)
	}
	if err := k.Inject(ctx, []byte{code}); err != nil {
		return 0, err
	}
	return code, nil
}
