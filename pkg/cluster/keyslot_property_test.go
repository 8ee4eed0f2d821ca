package cluster

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestKeySlotInvariants uses property-based testing to verify the
// slot hashing rules hold for arbitrary keys, not just fixtures.
func TestKeySlotInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property 1: Every key maps into the slot space
	properties.Property("slots stay in range", prop.ForAll(
		func(key []byte) bool {
			slot := SlotForKey(key)
			return slot >= 0 && slot < SlotCount
		},
		gen.SliceOf(gen.UInt8()),
	))

	// Property 2: Hashing is deterministic
	properties.Property("hashing is stable", prop.ForAll(
		func(key string) bool {
			return SlotForKeyString(key) == SlotForKeyString(key)
		},
		gen.AnyString(),
	))

	// Property 3: Keys sharing a hash tag share a slot
	properties.Property("tagged keys collapse to the tag slot", prop.ForAll(
		func(tag, suffixA, suffixB string) bool {
			if tag == "" {
				return true // empty tags disable tagging
			}
			a := SlotForKeyString("{" + tag + "}" + suffixA)
			b := SlotForKeyString("{" + tag + "}" + suffixB)
			return a == b && a == SlotForKeyString(tag)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	// Property 4: SlotForKeys agrees with SlotForKey exactly when all
	// keys share a slot, and reports cross-slot keys otherwise
	properties.Property("multi-key lookup matches per-key slots", prop.ForAll(
		func(a, b string) bool {
			slotA := SlotForKeyString(a)
			slotB := SlotForKeyString(b)

			slot, err := SlotForKeys([]byte(a), []byte(b))
			if slotA == slotB {
				return err == nil && slot == slotA
			}
			return err != nil
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	// Property 5: A topology built from one full-range master serves
	// whatever slot any key hashes to
	properties.Property("full assignment serves every key", prop.ForAll(
		func(key string) bool {
			topo := NewTopology([]NodeDescriptor{
				{
					ID:    "m1",
					Addr:  NodeAddress{Host: "10.0.0.1", Port: 7000},
					Role:  RoleMaster,
					Slots: []SlotRange{{Start: 0, End: SlotCount - 1}},
				},
			})
			_, ok := topo.MasterServing(SlotForKeyString(key))
			return ok
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
