package mixer

import "strings"

// Slot indexes the fixed engine registry.
type Slot int

const (
	SlotCriosfera Slot = iota
	SlotGearheart
	SlotEchoVessel
	SlotVocoder
	SlotBreitema
)

// SlotCount is the number of engine slots.
const SlotCount = 5

var slotNames = [SlotCount]string{
	SlotCriosfera:  "criosfera",
	SlotGearheart:  "gearheart",
	SlotEchoVessel: "echovessel",
	SlotVocoder:    "vocoder",
	SlotBreitema:   "breitema",
}

// Valid reports whether s names an existing slot.
func (s Slot) Valid() bool { return s >= 0 && int(s) < SlotCount }

func (s Slot) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return slotNames[s]
}

// ParseSlot maps a slot name (case-insensitive) to its Slot.
func ParseSlot(name string) (Slot, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range slotNames {
		if n == name {
			return Slot(i), true
		}
	}
	return 0, false
}
