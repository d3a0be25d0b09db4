package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemClassification(t *testing.T) {
	tests := []struct {
		value   uint64
		want    ItemClassification
		wantErr bool
	}{
		{0, ItemNormal, false},
		{1, ItemLogical, false},
		{2, ItemImportant, false},
		{4, ItemTrap, false},
		{3, 0, true},
		{5, 0, true},
		{6, 0, true},
		{7, 0, true},
		{8, 0, true},
		{260, 0, true},
	}

	for _, tt := range tests {
		got, err := ParseItemClassification(tt.value)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidClassification, "value %d", tt.value)
			continue
		}
		require.NoError(t, err, "value %d", tt.value)
		assert.Equal(t, tt.want, got)
	}
}

func TestItemClassification_UnmarshalJSON(t *testing.T) {
	var item NetworkItem
	require.NoError(t, json.Unmarshal([]byte(`{"item":1,"location":2,"player":3,"flags":1}`), &item))
	assert.Equal(t, ItemLogical, item.Flags)

	for _, raw := range []string{`3`, `-1`, `1.5`, `"1"`, `null`} {
		var c ItemClassification
		err := json.Unmarshal([]byte(raw), &c)
		assert.ErrorIs(t, err, ErrInvalidClassification, "input %s", raw)
	}
}

func TestItemClassification_String(t *testing.T) {
	assert.Equal(t, "normal", ItemNormal.String())
	assert.Equal(t, "logical", ItemLogical.String())
	assert.Equal(t, "important", ItemImportant.String())
	assert.Equal(t, "trap", ItemTrap.String())
	assert.Equal(t, "unknown(3)", ItemClassification(3).String())
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("5.0.0")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, v)

	v, err = ParseVersion("0.5")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 0, Minor: 5, Build: 0}, v)
	assert.Equal(t, "0.5.0", v.String())

	_, err = ParseVersion("five")
	assert.Error(t, err)
}
