package openai

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyRateLimitIsRetryable(t *testing.T) {
	class := classifyOpenAIError(errors.New("http 429: Too Many Requests"))
	if !class.Retryable || !class.RecordFailure {
		t.Fatalf("rate limit should be retryable and recorded, got %+v", class)
	}
}

func TestClassifyServerErrorIsRetryable(t *testing.T) {
	class := classifyOpenAIError(errors.New("post: 503 service unavailable"))
	if !class.Retryable {
		t.Fatalf("server error should be retryable, got %+v", class)
	}
}

func TestClassifyContextCancellationNotRecorded(t *testing.T) {
	class := classifyOpenAIError(context.Canceled)
	if class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must not retry or trip the breaker, got %+v", class)
	}
}

func TestClassifyClientErrorIsPermanent(t *testing.T) {
	class := classifyOpenAIError(errors.New("400 invalid request"))
	if class.Retryable {
		t.Fatalf("client error must not be retried, got %+v", class)
	}
	if !class.RecordFailure {
		t.Fatalf("client error should still count against the breaker")
	}
}

func TestRewriteSchemaListsAllPropertiesRequired(t *testing.T) {
	props, ok := rewriteSchema["properties"].(map[string]interface{})
	if !ok || len(props) == 0 {
		t.Fatalf("rewrite schema has no properties: %v", rewriteSchema)
	}
	required, ok := rewriteSchema["required"].([]interface{})
	if !ok || len(required) != len(props) {
		t.Fatalf("strict schema must require every property, got %v", rewriteSchema["required"])
	}
}
