package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDirectRef(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"<@U123ABC>", "U123ABC", true},
		{"<@U123ABC|bob>", "U123ABC", true},
		{" 555 ", "555", true},
		{"@bob", "", false},
		{"bob", "", false},
		{"<@>", "", false},
	}
	for _, tc := range tests {
		got, ok := parseDirectRef(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "bob", normalizeHandle("@Bob"))
	assert.Equal(t, "bob_99", normalizeHandle(" bob_99 "))
	assert.Equal(t, "", normalizeHandle("bob smith"))
	assert.Equal(t, "", normalizeHandle("<@U1>"))
	assert.Equal(t, "", normalizeHandle("@"))
}
