package westcache

import (
	"testing"
)

// TestFingerprintDeterminism 重复计算同一内容的摘要，确保输出稳定。
func TestFingerprintDeterminism(t *testing.T) {
	beans := []FlusherBean{
		{CacheKey: "svc.a", KeyMatch: KeyMatchFull, ValueVersion: 3, ValueType: ValueTypeNone},
		{CacheKey: "svc.b", KeyMatch: KeyMatchPrefix, ValueVersion: 1, ValueType: ValueTypeDirect, Specs: "readBy=redis"},
	}
	expected := FingerprintBeans(beans)

	for i := 0; i < 1000; i++ {
		if got := NewTable(beans).Fingerprint(); got != expected {
			t.Fatalf("iteration %d: non-deterministic fingerprint: %s != %s", i, got, expected)
		}
	}
}

func TestFingerprintChanges(t *testing.T) {
	a := NewTable([]FlusherBean{{CacheKey: "k", KeyMatch: KeyMatchFull, ValueVersion: 1}})
	b := NewTable([]FlusherBean{{CacheKey: "k", KeyMatch: KeyMatchFull, ValueVersion: 2}})
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("Fingerprint should change with the version")
	}

	var empty *Table
	if empty.Fingerprint() != "" {
		t.Error("Uninitialized table has no fingerprint")
	}
	if NewTable(nil).Fingerprint() == "" {
		t.Error("Empty table still has a fingerprint")
	}
}
