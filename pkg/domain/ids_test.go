package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attestor/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the trust-boundary rule: IDs must be
// valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseMemberID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseMemberID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseMemberID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseMemberID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, MemberID(validUUID), id)
	})
}

// TestParseID_SecurityInvariants validates that parsing rejects attack
// vectors at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE items;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMemberID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures every UUID-backed ID type has
// identical parsing behavior.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errMember := ParseMemberID(validUUID)
		_, errCircuit := ParseCircuitID(validUUID)
		_, errLocal := ParseLocalItemID(validUUID)

		require.NoError(t, errMember)
		require.NoError(t, errCircuit)
		require.NoError(t, errLocal)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errMember := ParseMemberID(input)
			_, errCircuit := ParseCircuitID(input)
			_, errLocal := ParseLocalItemID(input)

			require.Error(t, errMember)
			require.Error(t, errCircuit)
			require.Error(t, errLocal)
		})
	}
}

func TestDFID(t *testing.T) {
	t.Run("allocated dfids are valid and sortable", func(t *testing.T) {
		a, err := NewDFID()
		require.NoError(t, err)
		b, err := NewDFID()
		require.NoError(t, err)

		_, err = ParseDFID(string(a))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
		// UUIDv7 payloads order by creation time.
		assert.Less(t, string(a), string(b))
	})

	t.Run("parse rejects malformed shapes", func(t *testing.T) {
		valid, err := NewDFID()
		require.NoError(t, err)

		for _, input := range []string{
			"",
			"not-a-dfid",
			string(valid)[1:],                  // missing prefix
			string(valid) + "0",                // too long
			string(valid[:len(valid)-1]) + "G", // non-hex
			"df_" + strings.Repeat("Z", 32),
		} {
			_, err := ParseDFID(input)
			assert.Error(t, err, "input %q", input)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})
}
