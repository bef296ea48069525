package abi

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedType is returned for any type node that cannot be rendered canonically.
// A wrong selector is worse than no selector, so nothing here falls back to a default.
var ErrMalformedType = errors.New("malformed type node")

type Kind int

const (
	KindInvalid Kind = iota
	KindElementary
	KindArray
	KindMapping
	KindTuple
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindElementary:
		return "elementary"
	case KindArray:
		return "array"
	case KindMapping:
		return "mapping"
	case KindTuple:
		return "tuple"
	case KindFunction:
		return "function"
	default:
		return "invalid"
	}
}

// Type is a resolved parameter type. User-defined names never reach this package:
// the parser side resolves them to tuples (structs) or elementary types (enums,
// contracts, value types) first.
type Type struct {
	Kind Kind

	// Name is the elementary type name (KindElementary).
	Name string

	// Elem and Length describe KindArray. Length is empty for dynamic arrays.
	Elem   *Type
	Length string

	// Key and Value describe KindMapping.
	Key   *Type
	Value *Type

	// Components are the member types of KindTuple, in declaration order.
	Components []Type
}

func Elementary(name string) Type {
	return Type{Kind: KindElementary, Name: name}
}

func ArrayOf(elem Type, length string) Type {
	return Type{Kind: KindArray, Elem: &elem, Length: length}
}

func MappingOf(key, value Type) Type {
	return Type{Kind: KindMapping, Key: &key, Value: &value}
}

func TupleOf(components ...Type) Type {
	return Type{Kind: KindTuple, Components: components}
}

var aliases = map[string]string{
	"uint":            "uint256",
	"int":             "int256",
	"byte":            "bytes1",
	"fixed":           "fixed128x18",
	"ufixed":          "ufixed128x18",
	"address payable": "address",
}

var (
	intRe   = regexp.MustCompile(`^u?int(\d+)$`)
	bytesRe = regexp.MustCompile(`^bytes(\d+)$`)
	fixedRe = regexp.MustCompile(`^u?fixed(\d+)x(\d+)$`)
	lenRe   = regexp.MustCompile(`^[0-9]+$`)
)

// CanonicalElementary applies the integer/byte aliases and checks the name is a
// real elementary type.
func CanonicalElementary(name string) (string, error) {
	name = strings.TrimSpace(name)
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	switch name {
	case "address", "bool", "string", "bytes", "function":
		return name, nil
	case "":
		return "", fmt.Errorf("%w: empty elementary name", ErrMalformedType)
	}
	if m := intRe.FindStringSubmatch(name); m != nil {
		bits, _ := strconv.Atoi(m[1])
		if bits < 8 || bits > 256 || bits%8 != 0 {
			return "", fmt.Errorf("%w: integer width %d", ErrMalformedType, bits)
		}
		return name, nil
	}
	if m := bytesRe.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > 32 {
			return "", fmt.Errorf("%w: bytes width %d", ErrMalformedType, n)
		}
		return name, nil
	}
	if m := fixedRe.FindStringSubmatch(name); m != nil {
		bits, _ := strconv.Atoi(m[1])
		decimals, _ := strconv.Atoi(m[2])
		if bits < 8 || bits > 256 || bits%8 != 0 || decimals > 80 {
			return "", fmt.Errorf("%w: fixed type %s", ErrMalformedType, name)
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: unknown elementary type %q", ErrMalformedType, name)
}

// Canonical renders t in signature form.
func Canonical(t Type) (string, error) {
	switch t.Kind {
	case KindElementary:
		return CanonicalElementary(t.Name)
	case KindArray:
		if t.Elem == nil {
			return "", fmt.Errorf("%w: array without base type", ErrMalformedType)
		}
		if t.Length != "" && !lenRe.MatchString(t.Length) {
			return "", fmt.Errorf("%w: array length %q", ErrMalformedType, t.Length)
		}
		base, err := Canonical(*t.Elem)
		if err != nil {
			return "", err
		}
		return base + "[" + t.Length + "]", nil
	case KindMapping:
		if t.Key == nil || t.Value == nil {
			return "", fmt.Errorf("%w: mapping without key or value", ErrMalformedType)
		}
		key, err := Canonical(*t.Key)
		if err != nil {
			return "", err
		}
		value, err := Canonical(*t.Value)
		if err != nil {
			return "", err
		}
		return "mapping(" + key + " => " + value + ")", nil
	case KindTuple:
		parts := make([]string, 0, len(t.Components))
		for _, c := range t.Components {
			s, err := Canonical(c)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "tuple(" + strings.Join(parts, ",") + ")", nil
	case KindFunction:
		return "function", nil
	default:
		return "", fmt.Errorf("%w: kind %s", ErrMalformedType, t.Kind)
	}
}
