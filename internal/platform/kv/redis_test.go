package kv

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"
)

func TestOpen_InvalidURL(t *testing.T) {
	if _, err := Open(context.Background(), "http://localhost:6379", zerolog.Nop()); err == nil {
		t.Fatal("expected error for non-redis scheme")
	}
}

func TestOpen_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	if _, err := Open(context.Background(), "redis://"+addr+"/0", zerolog.Nop()); err == nil {
		t.Fatal("expected ping error for closed port")
	}
}
