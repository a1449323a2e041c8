package ratelimit

import (
	"context"
	"testing"
)

func TestIsBackground_UntaggedContextIsFalse(t *testing.T) {
	if IsBackground(context.Background()) {
		t.Error("expected a plain context to not be tagged background")
	}
}

func TestWithBackground_TagsContext(t *testing.T) {
	ctx := WithBackground(context.Background())
	if !IsBackground(ctx) {
		t.Error("expected WithBackground to mark the context")
	}
}
