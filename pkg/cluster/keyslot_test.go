package cluster

import (
	"errors"
	"testing"
)

func TestSlotForKey_KnownVectors(t *testing.T) {
	// Reference values from the CRC16-CCITT (XMODEM) checksum with
	// slot = crc mod 16384.
	tests := []struct {
		key  string
		slot int
	}{
		{"", 0},
		{"123456789", 12739}, // crc16 check value 0x31C3
		{"foo", 12182},
		{"bar", 5061},
	}

	for _, tt := range tests {
		got := SlotForKeyString(tt.key)
		if got != tt.slot {
			t.Errorf("SlotForKey(%q) = %d, want %d", tt.key, got, tt.slot)
		}
	}
}

func TestSlotForKey_InRange(t *testing.T) {
	keys := []string{"a", "user:1000", "session:{abc}:data", "\x00\xff\xfe", "{}"}
	for _, key := range keys {
		slot := SlotForKeyString(key)
		if slot < 0 || slot >= SlotCount {
			t.Errorf("SlotForKey(%q) = %d, outside [0, %d)", key, slot, SlotCount)
		}
	}
}

func TestHashTag(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"foo", "foo"},                       // no braces
		{"{user1000}.following", "user1000"}, // plain tag
		{"{user1000}.followers", "user1000"},
		{"foo{}{bar}", "foo{}{bar}"}, // empty tag disables tagging
		{"foo{{bar}}zap", "{bar"},    // tag starts at first brace
		{"foo{bar}{zap}", "bar"},     // only the first tag counts
		{"{}", "{}"},
		{"{a}", "a"},
		{"x}y{tag}z", "tag"}, // stray closing brace before the tag
		{"unclosed{tag", "unclosed{tag"},
	}

	for _, tt := range tests {
		got := string(hashTag([]byte(tt.key)))
		if got != tt.want {
			t.Errorf("hashTag(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestHashTag_PinsRelatedKeys(t *testing.T) {
	a := SlotForKeyString("{user1000}.following")
	b := SlotForKeyString("{user1000}.followers")
	bare := SlotForKeyString("user1000")

	if a != b {
		t.Errorf("tagged keys map to different slots: %d vs %d", a, b)
	}
	if a != bare {
		t.Errorf("tagged key slot %d differs from bare tag slot %d", a, bare)
	}
}

func TestSlotForKeys_CommonSlot(t *testing.T) {
	slot, err := SlotForKeys([]byte("{order:77}:items"), []byte("{order:77}:total"), []byte("order:77"))
	if err != nil {
		t.Fatalf("SlotForKeys() error = %v, want nil", err)
	}
	if want := SlotForKeyString("order:77"); slot != want {
		t.Errorf("SlotForKeys() = %d, want %d", slot, want)
	}
}

func TestSlotForKeys_SingleKey(t *testing.T) {
	slot, err := SlotForKeys([]byte("foo"))
	if err != nil {
		t.Fatalf("SlotForKeys() error = %v, want nil", err)
	}
	if slot != SlotForKeyString("foo") {
		t.Errorf("SlotForKeys() = %d, want %d", slot, SlotForKeyString("foo"))
	}
}

func TestSlotForKeys_CrossSlot(t *testing.T) {
	_, err := SlotForKeys([]byte("foo"), []byte("bar"))
	if !errors.Is(err, ErrCrossSlotKeys) {
		t.Errorf("SlotForKeys() error = %v, want ErrCrossSlotKeys", err)
	}
}

func TestSlotForKeys_NoKeys(t *testing.T) {
	_, err := SlotForKeys()
	if !errors.Is(err, ErrNoKeys) {
		t.Errorf("SlotForKeys() error = %v, want ErrNoKeys", err)
	}
}

func TestGroupKeysBySlot(t *testing.T) {
	keys := [][]byte{
		[]byte("{a}:1"),
		[]byte("{b}:1"),
		[]byte("{a}:2"),
		[]byte("{a}:3"),
	}

	groups := GroupKeysBySlot(keys)

	slotA := SlotForKeyString("a")
	slotB := SlotForKeyString("b")

	if len(groups[slotA]) != 3 {
		t.Errorf("slot %d group size = %d, want 3", slotA, len(groups[slotA]))
	}
	if len(groups[slotB]) != 1 {
		t.Errorf("slot %d group size = %d, want 1", slotB, len(groups[slotB]))
	}

	// Input order is preserved inside each group
	want := []string{"{a}:1", "{a}:2", "{a}:3"}
	for i, key := range groups[slotA] {
		if string(key) != want[i] {
			t.Errorf("group[%d] = %q, want %q", i, key, want[i])
		}
	}
}

func BenchmarkSlotForKey(b *testing.B) {
	key := []byte("user:session:{abc123}:payload")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SlotForKey(key)
	}
}
