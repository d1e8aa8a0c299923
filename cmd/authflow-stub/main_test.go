package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_InvalidSeed(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-addr", "127.0.0.1:0", "-seed", "no-colon"}, &out)
	assert.ErrorContains(t, err, "want email:password")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := run(ctx, []string{"-addr", "127.0.0.1:0", "-log-level", "error", "-seed", "a@example.com:Secret123"}, &out)
	assert.NoError(t, err)
}
