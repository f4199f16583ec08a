package redis

import (
	"context"
	"testing"
)

func TestNewRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	cfg := &Config{URL: "http://not-redis"}
	if _, err := cfg.New(context.Background()); err == nil {
		t.Fatal("expected error for non redis scheme")
	}
}

func TestNewFailsWhenServerIsUnreachable(t *testing.T) {
	t.Parallel()

	cfg := &Config{URL: "redis://127.0.0.1:1/0", ReadTimeout: 1, WriteTimeout: 1, DialTimeout: 1}
	client, err := cfg.New(context.Background())
	if err == nil {
		_ = client.Close()
		t.Fatal("expected ping error for unreachable server")
	}
}
