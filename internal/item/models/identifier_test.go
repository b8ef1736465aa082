package models

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "attestor/pkg/domain-errors"
)

type IdentifierSuite struct {
	suite.Suite
}

func TestIdentifierSuite(t *testing.T) {
	suite.Run(t, new(IdentifierSuite))
}

func canonical(ns, key, value string) Identifier {
	return Identifier{Namespace: ns, Key: key, Value: value, Kind: KindCanonical}
}

func contextual(ns, key, value string) Identifier {
	return Identifier{Namespace: ns, Key: key, Value: value, Kind: KindContextual}
}

func (s *IdentifierSuite) TestValidation() {
	s.Run("accepts a complete identifier", func() {
		s.NoError(canonical("gs1", "gtin", "0761234567890").Validate())
	})

	s.Run("rejects blank namespace, key, and value", func() {
		s.Error(canonical("", "gtin", "x").Validate())
		s.Error(canonical("gs1", "  ", "x").Validate())
		s.Error(canonical("gs1", "gtin", "").Validate())
	})

	s.Run("rejects unknown kind", func() {
		err := Identifier{Namespace: "gs1", Key: "gtin", Value: "x", Kind: "other"}.Validate()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *IdentifierSuite) TestTupleNormalization() {
	s.Run("lowercases namespace and key, keeps value verbatim", func() {
		a := canonical("GS1", "GTIN", "0761234567890")
		b := canonical("gs1", "gtin", "0761234567890")
		s.Equal(a.Tuple(), b.Tuple())

		upper := canonical("gs1", "gtin", "ABC")
		lower := canonical("gs1", "gtin", "abc")
		s.NotEqual(upper.Tuple(), lower.Tuple())
	})

	s.Run("round-trips through SplitTuple", func() {
		ns, key, value := SplitTuple(canonical("GS1", "Gtin", "abc").Tuple())
		s.Equal("gs1", ns)
		s.Equal("gtin", key)
		s.Equal("abc", value)
	})
}

func (s *IdentifierSuite) TestCanonicalTuples() {
	s.Run("ignores contextual identifiers", func() {
		tuples := CanonicalTuples([]Identifier{
			contextual("vendor", "sku", "A-1"),
			canonical("gs1", "gtin", "1"),
		})
		s.Len(tuples, 1)
	})

	s.Run("dedupes and orders deterministically", func() {
		a := CanonicalTuples([]Identifier{
			canonical("gs1", "gtin", "2"),
			canonical("iso", "serial", "9"),
			canonical("GS1", "GTIN", "2"),
		})
		b := CanonicalTuples([]Identifier{
			canonical("iso", "serial", "9"),
			canonical("gs1", "gtin", "2"),
		})
		s.Equal(a, b)
		s.Len(a, 2)
	})

	s.Run("contextual-only sets have an empty canonical key", func() {
		s.Empty(CanonicalKey([]Identifier{contextual("vendor", "sku", "A-1")}))
	})
}

func (s *IdentifierSuite) TestUnionIdentifiers() {
	s.Run("adds only new identifiers", func() {
		dst := []Identifier{canonical("gs1", "gtin", "1")}
		merged, added := UnionIdentifiers(dst, []Identifier{
			canonical("GS1", "GTIN", "1"),
			canonical("iso", "serial", "9"),
		})
		s.True(added)
		s.Len(merged, 2)
	})

	s.Run("reports no change for a subset", func() {
		dst := []Identifier{canonical("gs1", "gtin", "1"), contextual("vendor", "sku", "A")}
		merged, added := UnionIdentifiers(dst, []Identifier{canonical("gs1", "gtin", "1")})
		s.False(added)
		s.Len(merged, 2)
	})

	s.Run("same tuple with different kind is distinct", func() {
		dst := []Identifier{canonical("gs1", "gtin", "1")}
		merged, added := UnionIdentifiers(dst, []Identifier{contextual("gs1", "gtin", "1")})
		s.True(added)
		s.Len(merged, 2)
	})
}
