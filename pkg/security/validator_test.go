package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "uuid", id: "6f1c1c0e-6a0b-4b4e-9a53-0d1f5f1d8f11"},
		{name: "firebase style uid", id: "Xy12abCD34efGH56ij78"},
		{name: "email style", id: "alice@example.com"},
		{name: "empty", id: "", wantErr: ErrEmptyIdentifier},
		{name: "too long", id: strings.Repeat("a", MaxIdentifierLength+1), wantErr: ErrIdentifierTooLong},
		{name: "space", id: "queue 1", wantErr: ErrInvalidIdentifier},
		{name: "quote", id: "q1' OR '1'='1", wantErr: ErrInvalidIdentifier},
		{name: "slash", id: "../etc", wantErr: ErrInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSanitizeDisplayName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  string
		expectErr error
	}{
		{name: "empty", input: "", expected: ""},
		{name: "trimmed", input: "  Alice Nguyen ", expected: "Alice Nguyen"},
		{name: "unicode", input: "Nguyễn Văn An", expected: "Nguyễn Văn An"},
		{name: "queue name with words close to sql", input: "Sleep Clinic - Executive Desk", expected: "Sleep Clinic - Executive Desk"},
		{name: "apostrophe", input: "O'Brien", expected: "O'Brien"},
		{name: "too long", input: strings.Repeat("x", MaxDisplayNameLength+1), expectErr: ErrDisplayNameTooLong},
		{name: "script tag", input: "<script>alert(1)</script>", expectErr: ErrInvalidDisplayName},
		{name: "sql tautology", input: "bob' or 1=1", expectErr: ErrInvalidDisplayName},
		{name: "sql comment", input: "bob'--", expectErr: ErrInvalidDisplayName},
		{name: "stacked query", input: "bob; drop table queues", expectErr: ErrInvalidDisplayName},
		{name: "control char", input: "bob\x00", expectErr: ErrInvalidDisplayName},
		{name: "javascript url", input: "javascript:alert(1)", expectErr: ErrInvalidDisplayName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeDisplayName(tt.input)
			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
