package testutil_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/example/go-ort-harness/internal/testutil"
)

func TestRequireONNXRuntime_SkipsWhenAbsent(t *testing.T) {
	t.Setenv("ORTHARNESS_ORT_LIB", "")
	t.Setenv("ORT_LIBRARY_PATH", filepath.Join(t.TempDir(), "libonnxruntime.so"))

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireONNXRuntime(fakeT)
	if !skipped {
		t.Error("expected RequireONNXRuntime to skip when library is absent")
	}
}

func TestRequireModel_SkipsWhenUnset(t *testing.T) {
	t.Setenv("ORTHARNESS_TEST_MODEL", "")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireModel(fakeT)
	if !skipped {
		t.Error("expected RequireModel to skip when ORTHARNESS_TEST_MODEL is unset")
	}
}

func TestIdentityModel_Deterministic(t *testing.T) {
	a := testutil.IdentityModel("x", "y", 1, 4)
	b := testutil.IdentityModel("x", "y", 1, 4)
	if len(a) == 0 {
		t.Fatal("IdentityModel returned no bytes")
	}
	if !bytes.Equal(a, b) {
		t.Error("IdentityModel is not deterministic")
	}
	if bytes.Equal(a, testutil.IdentityModel("x", "y", 1, 5)) {
		t.Error("IdentityModel ignores dims")
	}
}

// skipTracker is a minimal testing.TB implementation that intercepts Skip calls.
type skipTracker struct {
	testing.TB
	onSkip func()
}

func (s *skipTracker) Helper() {}

func (s *skipTracker) Skip(_ ...any) {
	s.onSkip()
}

func (s *skipTracker) Skipf(_ string, _ ...any) {
	s.onSkip()
	// Do NOT call s.TB.Skip; that would actually skip the outer test.
}
