package eventlog

import (
	"bytes"
	"testing"
)

func TestEntryKeysOrderBySequence(t *testing.T) {
	a := KeyEntry("s", 1)
	b := KeyEntry("s", 256)
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected key order to follow sequence")
	}
	if !bytes.HasPrefix(a, KeyEntryPrefix("s")) {
		t.Fatalf("entry key missing prefix")
	}
	if idFromKeySuffix(b) != 256 {
		t.Fatalf("suffix decode: %v", idFromKeySuffix(b))
	}
}

func TestPendingPrefixIsolatesGroups(t *testing.T) {
	k := KeyPending("s", "group:ab", 1)
	if bytes.HasPrefix(k, KeyPendingPrefix("s", "group:a")) {
		t.Fatalf("group prefix must not match a longer group name")
	}
}
