package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("dropped detection at frame %d", 7)
	if got != "dropped detection at frame %d" {
		t.Errorf("custom logger not invoked, got %q", got)
	}

	// nil installs a no-op, not a nil function.
	SetLogger(nil)
	if Logf == nil {
		t.Fatal("Logf must never be nil")
	}
	Logf("must not panic")
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should default to a usable logger")
	}
}
