package redis

import (
	"context"
	"strings"
	"testing"
)

func TestConnect(t *testing.T) {
	t.Parallel()

	mr := newTestMiniredis(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0", "")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := mr.Exists("k"); !got {
		t.Fatal("key should be written to miniredis")
	}
}

func TestConnectErrors(t *testing.T) {
	t.Parallel()

	mr := newTestMiniredis(t)
	addr := mr.Addr()
	mr.Close()

	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "bad url", url: "mysql://nope", wantErr: "invalid redis url"},
		{name: "unreachable", url: "redis://" + addr, wantErr: "unreachable"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Connect(context.Background(), tt.url, "bordereau-test")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Connect() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
