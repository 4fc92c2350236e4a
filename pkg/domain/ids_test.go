package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gestionale/pkg/domain-errors"
)

func TestParseUserID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseUserID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(valid), id)
		assert.False(t, id.IsNil())
	})
}

// Parsing runs at API entry points, so hostile input must be rejected with the same code.
func TestParseUserID_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE users;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIDTypes_ConsistentParsing(t *testing.T) {
	valid := uuid.New().String()

	_, errUser := ParseUserID(valid)
	_, errEntry := ParseEntryID(valid)
	require.NoError(t, errUser)
	require.NoError(t, errEntry)

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("rejects "+input, func(t *testing.T) {
			_, errUser := ParseUserID(input)
			_, errEntry := ParseEntryID(input)
			require.Error(t, errUser)
			require.Error(t, errEntry)
		})
	}
}

func TestZeroValuesAreNil(t *testing.T) {
	assert.True(t, UserID{}.IsNil())
	assert.True(t, EntryID{}.IsNil())
	assert.True(t, OutboxID{}.IsNil())
	assert.False(t, NewEntryID().IsNil())
}
