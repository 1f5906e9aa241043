package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("dial tcp: connection refused")
	err := fmt.Errorf("fetch post: %w", Wrap(CodeChainCallFailure, cause, "postAt 调用失败"))

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped error to reach the cause")
	}
	if got := CodeOf(err); got != CodeChainCallFailure {
		t.Fatalf("unexpected code %s", got)
	}
	if !RetryableError(err) {
		t.Fatal("chain call failures are retryable by default")
	}
	if !stdErrors.Is(err, New(CodeChainCallFailure, "")) {
		t.Fatal("errors.Is should match on code")
	}
}

func TestRegisterAndOverrides(t *testing.T) {
	const code Code = "TEST_ONLY"
	Register(code, Attributes{Message: "test only", Severity: SeverityInfo, Retryable: true})

	err := New(code, "", WithRetryable(false), WithSeverity(SeverityCritical), WithMetadata("index", "7"))
	if err.Message() != "test only" {
		t.Fatalf("expected registered default message, got %q", err.Message())
	}
	if err.Retryable() {
		t.Fatal("override should disable retry")
	}
	if err.Severity() != SeverityCritical {
		t.Fatalf("unexpected severity %s", err.Severity())
	}
	if err.Metadata()["index"] != "7" {
		t.Fatalf("unexpected metadata %+v", err.Metadata())
	}
}

func TestUnknownCodeFallsBack(t *testing.T) {
	if AttributesOf("NOPE").Message != "unknown error" {
		t.Fatal("expected unknown fallback")
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatal("plain errors map to UNKNOWN")
	}
}
