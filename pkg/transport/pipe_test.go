package transport

import (
	"context"
	"testing"
	"time"
)

func TestPipeSendReceive(t *testing.T) {
	p := NewPipe()

	if err := p.ClientConn().Send([]byte("hello")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	data, err := p.ServerConn().Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Receive() = %q, want %q", data, "hello")
	}
}

func TestPipePreservesOrder(t *testing.T) {
	p := NewPipe()

	messages := []string{"one", "two", "three"}
	for _, m := range messages {
		if err := p.ClientConn().Send([]byte(m)); err != nil {
			t.Fatalf("Send(%q) error = %v", m, err)
		}
	}

	for _, want := range messages {
		data, err := p.ServerConn().Receive()
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if string(data) != want {
			t.Errorf("Receive() = %q, want %q", data, want)
		}
	}
}

func TestPipeCloseUnblocksReceive(t *testing.T) {
	p := NewPipe()

	errCh := make(chan error, 1)
	go func() {
		_, err := p.ClientConn().Receive()
		errCh <- err
	}()

	p.ServerConn().Close()

	select {
	case err := <-errCh:
		if err != ErrClosed {
			t.Errorf("Receive() after close error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive() not unblocked by Close()")
	}

	if err := p.ClientConn().Send([]byte("x")); err != ErrClosed {
		t.Errorf("Send() after close error = %v, want ErrClosed", err)
	}
}

func TestPipeBreakActsAsTransportFailure(t *testing.T) {
	p := NewPipe()
	p.Break()

	if _, err := p.ClientConn().Receive(); err != ErrClosed {
		t.Errorf("Receive() after Break error = %v, want ErrClosed", err)
	}
}

func TestPipeDialer(t *testing.T) {
	t.Run("serves pipes in order", func(t *testing.T) {
		p1, p2 := NewPipe(), NewPipe()
		d := NewPipeDialer(p1, p2)

		c1, err := d.Dial(context.Background(), "pipe://", "")
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		if c1 != p1.ClientConn() {
			t.Error("first Dial() did not return first pipe")
		}

		if _, err := d.Dial(context.Background(), "pipe://", ""); err != nil {
			t.Fatalf("second Dial() error = %v", err)
		}
		if got := d.Dials(); got != 2 {
			t.Errorf("Dials() = %d, want 2", got)
		}
	})

	t.Run("nil entry scripts failure", func(t *testing.T) {
		d := NewPipeDialer(nil, NewPipe())

		if _, err := d.Dial(context.Background(), "pipe://", ""); err != ErrDialFailed {
			t.Errorf("Dial() error = %v, want ErrDialFailed", err)
		}
		if _, err := d.Dial(context.Background(), "pipe://", ""); err != nil {
			t.Errorf("Dial() error = %v, want nil", err)
		}
	})

	t.Run("exhausted queue fails", func(t *testing.T) {
		d := NewPipeDialer()
		if _, err := d.Dial(context.Background(), "pipe://", ""); err != ErrDialFailed {
			t.Errorf("Dial() error = %v, want ErrDialFailed", err)
		}
	})
}
