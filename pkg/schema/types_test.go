package schema

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type slugType string

func TestInferSQLType(t *testing.T) {
	tests := []struct {
		goType reflect.Type
		want   string
	}{
		{reflect.TypeFor[bool](), "boolean"},
		{reflect.TypeFor[int](), "integer"},
		{reflect.TypeFor[int16](), "smallint"},
		{reflect.TypeFor[int64](), "bigint"},
		{reflect.TypeFor[float64](), "double precision"},
		{reflect.TypeFor[string](), "text"},
		{reflect.TypeFor[slugType](), "text"},
		{reflect.TypeFor[time.Time](), "timestamptz"},
		{reflect.TypeFor[*time.Time](), "timestamptz"},
		{reflect.TypeFor[*int](), "integer"},
		{reflect.TypeFor[[]byte](), "bytea"},
		{reflect.TypeFor[[]string](), "text[]"},
		{reflect.TypeFor[uint8](), ""},
		{reflect.TypeFor[struct{}](), ""},
		{reflect.TypeFor[[]struct{}](), ""},
	}

	for _, tt := range tests {
		t.Run(tt.goType.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, inferSQLType(tt.goType))
		})
	}
}

func TestNilable(t *testing.T) {
	assert.False(t, nilable(reflect.TypeFor[string]()))
	assert.False(t, nilable(reflect.TypeFor[time.Time]()))
	assert.False(t, nilable(reflect.TypeFor[[]string]()))
	assert.True(t, nilable(reflect.TypeFor[*string]()))
	assert.True(t, nilable(reflect.TypeFor[*time.Time]()))
	assert.True(t, nilable(reflect.TypeFor[map[string]any]()))
}
