package extractor

import (
	"fmt"
	"math/bits"
	"regexp"
	"strconv"

	"github.com/VectorBits/facetsplit/src/internal/abi"
	"github.com/VectorBits/facetsplit/src/internal/model"
)

const slotBytes = 32

var (
	sizedIntRe   = regexp.MustCompile(`^u?int(\d+)$`)
	sizedBytesRe = regexp.MustCompile(`^bytes(\d+)$`)
	fixedRe      = regexp.MustCompile(`^u?fixed(\d+)x\d+$`)
)

// footprint returns the storage size of t and whether it packs into a partly
// used slot. Non-packing values start a fresh slot and the next variable starts
// after them.
func footprint(t abi.Type) (uint64, bool, error) {
	switch t.Kind {
	case abi.KindElementary:
		name, err := abi.CanonicalElementary(t.Name)
		if err != nil {
			return 0, false, err
		}
		switch name {
		case "address":
			return 20, true, nil
		case "bool":
			return 1, true, nil
		case "function":
			return 24, true, nil
		case "string", "bytes":
			return slotBytes, false, nil
		}
		for _, re := range []*regexp.Regexp{sizedIntRe, fixedRe} {
			if m := re.FindStringSubmatch(name); m != nil {
				n, _ := strconv.ParseUint(m[1], 10, 64)
				return n / 8, true, nil
			}
		}
		if m := sizedBytesRe.FindStringSubmatch(name); m != nil {
			n, _ := strconv.ParseUint(m[1], 10, 64)
			return n, true, nil
		}
		return 0, false, fmt.Errorf("%w: no storage size for %s", abi.ErrMalformedType, name)

	case abi.KindFunction:
		return 24, true, nil

	case abi.KindMapping:
		return slotBytes, false, nil

	case abi.KindArray:
		if t.Length == "" {
			return slotBytes, false, nil
		}
		if t.Elem == nil {
			return 0, false, fmt.Errorf("%w: array without base type", abi.ErrMalformedType)
		}
		n, err := strconv.ParseUint(t.Length, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: array length %q", abi.ErrMalformedType, t.Length)
		}
		elem, packed, err := footprint(*t.Elem)
		if err != nil {
			return 0, false, err
		}
		var slots uint64
		if packed {
			perSlot := slotBytes / elem
			slots = (n + perSlot - 1) / perSlot
		} else {
			hi, lo := bits.Mul64(n, elem/slotBytes)
			if hi != 0 {
				return 0, false, fmt.Errorf("%w: array too large", abi.ErrMalformedType)
			}
			slots = lo
		}
		hi, size := bits.Mul64(slots, slotBytes)
		if hi != 0 {
			return 0, false, fmt.Errorf("%w: array too large", abi.ErrMalformedType)
		}
		return size, false, nil

	case abi.KindTuple:
		slots, err := slotsFor(t.Components)
		if err != nil {
			return 0, false, err
		}
		if slots == 0 {
			slots = 1
		}
		return slots * slotBytes, false, nil
	}
	return 0, false, fmt.Errorf("%w: kind %s has no storage size", abi.ErrMalformedType, t.Kind)
}

type cursor struct {
	slot   uint64
	offset uint64
}

// place returns the slot and offset of the next value and advances past it.
func (c *cursor) place(size uint64, packed bool) (uint64, uint64) {
	if packed {
		if c.offset+size > slotBytes {
			c.slot++
			c.offset = 0
		}
		slot, offset := c.slot, c.offset
		c.offset += size
		return slot, offset
	}
	if c.offset > 0 {
		c.slot++
		c.offset = 0
	}
	slot := c.slot
	c.slot += (size + slotBytes - 1) / slotBytes
	return slot, 0
}

// used is the number of slots touched so far.
func (c *cursor) used() uint64 {
	if c.offset > 0 {
		return c.slot + 1
	}
	return c.slot
}

func slotsFor(types []abi.Type) (uint64, error) {
	var c cursor
	for _, t := range types {
		size, packed, err := footprint(t)
		if err != nil {
			return 0, err
		}
		c.place(size, packed)
	}
	return c.used(), nil
}

// layoutStorage predicts slot and offset for each variable in declaration
// order. Constants and immutables get model.NoSlot.
func layoutStorage(vars []model.VariableDescriptor, types []abi.Type) error {
	var c cursor
	for i := range vars {
		v := &vars[i]
		size, packed, err := footprint(types[i])
		if err != nil {
			return fmt.Errorf("variable %s: %w", v.Name, err)
		}
		v.SizeBytes = size
		if v.Constant || v.Immutable {
			v.Slot, v.Offset = model.NoSlot, 0
			continue
		}
		slot, offset := c.place(size, packed)
		v.Slot, v.Offset = int64(slot), int(offset)
	}
	return nil
}
