//go:build linux

package l2cap

import (
	"context"
	"testing"
	"time"
)

func TestSecurityOptionName(t *testing.T) {
	if btSecurity != 4 {
		t.Errorf("btSecurity = %d, want 4", btSecurity)
	}
}

// Without an adapter the socket call fails; with one, nobody answers at
// this address before the deadline.
func TestDialUnreachablePeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	addr, err := ParseAddress("00:00:00:00:00:01")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	opts := DefaultDialOptions()
	opts.Security = SecurityMedium

	done := make(chan error, 1)
	go func() {
		rwc, err := Dial(ctx, addr, opts)
		if err == nil {
			rwc.Close()
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Dial() to an unreachable peer succeeded")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Dial() ignored the context deadline")
	}
}
