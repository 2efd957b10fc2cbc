package keyboard

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

type write struct {
	addr uint16
	data []byte
}

// fakeMemory drains the keyboard buffer after busyReads polls
type fakeMemory struct {
	ram       [0x10000]byte
	writes    []write
	reads     int
	busyReads int
}

func (m *fakeMemory) ReadMemory(ctx context.Context, addr uint16, length int) ([]byte, error) {
	if addr == LengthAddr {
		m.reads++
		if m.busyReads > 0 {
			m.busyReads--
			return []byte{1}, nil
		}
		m.ram[LengthAddr] = 0
	}
	return append([]byte(nil), m.ram[addr:int(addr)+length]...), nil
}

func (m *fakeMemory) WriteMemory(ctx context.Context, addr uint16, data []byte) error {
	copy(m.ram[addr:], data)
	m.writes = append(m.writes, write{addr, append([]byte(nil), data...)})
	return nil
}

func newTestTypist(mem Memory) *Typist {
	return &Typist{
		mem:          mem,
		pollInterval: time.Millisecond,
		pollAttempts: 5,
		sleep:        func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
}

func TestTypeTextChunks(t *testing.T) {
	mem := &fakeMemory{}
	k := newTestTypist(mem)

	n, err := k.TypeText(context.Background(), "print \"hello world\"{RETURN}", 0)
	if err != nil {
		t.Fatalf("TypeText failed: %v", err)
	}
	if n != 20 {
		t.Fatalf("Expected 20 typed characters, got %d", n)
	}
	// two chunks of 10, each written as buffer + length
	if len(mem.writes) != 4 {
		t.Fatalf("Expected 4 writes, got %d", len(mem.writes))
	}
	if mem.writes[0].addr != BufferAddr || !bytes.Equal(mem.writes[0].data, []byte(`PRINT "HEL`)) {
		t.Errorf("First chunk = %q at $%04X", mem.writes[0].data, mem.writes[0].addr)
	}
	if mem.writes[1].addr != LengthAddr || mem.writes[1].data[0] != 10 {
		t.Errorf("First length write = %v", mem.writes[1])
	}
	if !bytes.Equal(mem.writes[2].data, []byte{'L', 'O', ' ', 'W', 'O', 'R', 'L', 'D', '"', 13}) {
		t.Errorf("Second chunk = % X", mem.writes[2].data)
	}
	if mem.writes[3].data[0] != 10 {
		t.Errorf("Second length = %d", mem.writes[3].data[0])
	}
}

func TestWaitsForEmptyBuffer(t *testing.T) {
	mem := &fakeMemory{busyReads: 3}
	k := newTestTypist(mem)

	if _, err := k.SendKey(context.Background(), "F1"); err != nil {
		t.Fatalf("SendKey failed: %v", err)
	}
	if mem.reads != 4 {
		t.Errorf("Expected 4 polls, got %d", mem.reads)
	}
	if mem.ram[BufferAddr] != 133 || mem.ram[LengthAddr] != 1 {
		t.Errorf("Buffer = $%02X len %d", mem.ram[BufferAddr], mem.ram[LengthAddr])
	}
}

func TestBusyBufferTimesOut(t *testing.T) {
	mem := &fakeMemory{busyReads: 100}
	k := newTestTypist(mem)

	drained, err := k.WaitEmpty(context.Background())
	if err != nil {
		t.Fatalf("WaitEmpty failed: %v", err)
	}
	if drained {
		t.Error("Buffer should not report drained")
	}
	if mem.reads != k.pollAttempts {
		t.Errorf("Expected %d polls, got %d", k.pollAttempts, mem.reads)
	}
}

func TestErrors(t *testing.T) {
	k := newTestTypist(&fakeMemory{})
	ctx := context.Background()

	if _, err := k.TypeText(ctx, "~~~", 0); !errors.Is(err, ErrNothingToType) {
		t.Errorf("Expected ErrNothingToType, got %v", err)
	}
	if _, err := k.SendKey(ctx, "WARP"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey, got %v", err)
	}
	if err := k.Inject(ctx, make([]byte, 11)); !errors.Is(err, ErrTooLong) {
		t.Errorf("Expected ErrTooLong, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := k.TypeText(cancelled, "RUN{RETURN}", 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
