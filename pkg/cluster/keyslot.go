package cluster

import (
	"bytes"
	"fmt"
)

// SlotCount is the fixed number of hash slots a cluster is divided into
const SlotCount = 16384

// crc16Table holds the lookup table for CRC16-CCITT (XMODEM),
// polynomial 0x1021, the checksum used for key-to-slot hashing.
var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crc16Table[i] = crc
	}
}

func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}

// hashTag returns the portion of key used for slot hashing. When the
// key contains a non-empty "{...}" section, only its contents are
// hashed, which lets callers pin related keys to one slot.
func hashTag(key []byte) []byte {
	open := bytes.IndexByte(key, '{')
	if open == -1 {
		return key
	}
	span := bytes.IndexByte(key[open+1:], '}')
	if span <= 0 {
		// No closing brace, or an empty "{}" tag: hash the whole key.
		return key
	}
	return key[open+1 : open+1+span]
}

// SlotForKey returns the hash slot the key belongs to
func SlotForKey(key []byte) int {
	return int(crc16(hashTag(key))) % SlotCount
}

// SlotForKeyString returns the hash slot for a string key
func SlotForKeyString(key string) int {
	return SlotForKey([]byte(key))
}

// SlotForKeys returns the single hash slot shared by all keys.
// It returns ErrNoKeys for an empty key set, and an error wrapping
// ErrCrossSlotKeys when the keys do not all map to the same slot.
func SlotForKeys(keys ...[]byte) (int, error) {
	if len(keys) == 0 {
		return 0, ErrNoKeys
	}
	slot := SlotForKey(keys[0])
	for _, key := range keys[1:] {
		if s := SlotForKey(key); s != slot {
			return 0, fmt.Errorf("%w: slot %d and slot %d", ErrCrossSlotKeys, slot, s)
		}
	}
	return slot, nil
}

// GroupKeysBySlot partitions keys by the hash slot they map to,
// preserving the order keys were given in within each group.
func GroupKeysBySlot(keys [][]byte) map[int][][]byte {
	groups := make(map[int][][]byte)
	for _, key := range keys {
		slot := SlotForKey(key)
		groups[slot] = append(groups[slot], key)
	}
	return groups
}
