package models_test

import (
	"testing"

	"github.com/JobDoesburg/landolfio-backend/models"
)

func int64Ptr(v int64) *int64 { return &v }

func TestShouldApplyFirstLinkAlwaysSucceeds(t *testing.T) {
	link := models.RemoteLink{}
	if !link.ShouldApply(int64Ptr(1)) {
		t.Fatalf("unlinked entity should accept any version")
	}
	if !link.ShouldApply(nil) {
		t.Fatalf("unlinked entity should accept a version-less payload")
	}
}

func TestShouldApplyRejectsStaleVersions(t *testing.T) {
	link := models.RemoteLink{}
	link.Link("42", int64Ptr(5))

	cases := []struct {
		version  *int64
		expected bool
	}{
		{int64Ptr(6), true},
		{int64Ptr(5), false},
		{int64Ptr(4), false},
		{nil, true}, // payload without version is always applied
	}
	for _, tc := range cases {
		if got := link.ShouldApply(tc.version); got != tc.expected {
			t.Fatalf("ShouldApply(%v) expected %v, got %v", tc.version, tc.expected, got)
		}
	}
}

func TestLinkAndUnlink(t *testing.T) {
	link := models.RemoteLink{}
	if link.Linked() {
		t.Fatalf("zero value must not be linked")
	}

	link.Link("abc", int64Ptr(3))
	if !link.Linked() {
		t.Fatalf("expected linked after Link")
	}
	if *link.RemoteId != "abc" || *link.RemoteVersion != 3 {
		t.Fatalf("unexpected link state: %v %v", link.RemoteId, link.RemoteVersion)
	}

	link.Unlink()
	if link.Linked() || link.RemoteId != nil || link.RemoteVersion != nil {
		t.Fatalf("expected cleared link after Unlink")
	}
}
