package blog

import (
	"encoding/json"
	"testing"

	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    ContentStatus
		wantErr bool
	}{
		{"DRAFT", StatusDraft, false},
		{"PUBLISHED", StatusPublished, false},
		{"PRIVATE", StatusPrivate, false},
		{"published", "", true},
		{"ARCHIVED", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseContentStatus(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, runtime.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContentStatus_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Status ContentStatus `json:"status"`
	}{StatusPublished})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"PUBLISHED"}`, string(data))

	_, err = json.Marshal(ContentStatus("ARCHIVED"))
	assert.Error(t, err)

	var content Content
	require.NoError(t, json.Unmarshal([]byte(`{"slug":"a","status":"PRIVATE","authorId":3,"contentBody":"x"}`), &content))
	assert.Equal(t, StatusPrivate, content.Status)
	assert.Equal(t, 3, content.AuthorID)
	assert.Equal(t, "x", content.ContentBody)

	err = json.Unmarshal([]byte(`{"status":"ARCHIVED"}`), &content)
	assert.ErrorIs(t, err, runtime.ErrValidation)

	err = json.Unmarshal([]byte(`{"status":1}`), &content)
	assert.ErrorIs(t, err, runtime.ErrValidation)
}

func TestContentStatus_SQL(t *testing.T) {
	var s ContentStatus
	require.NoError(t, s.Scan("DRAFT"))
	assert.Equal(t, StatusDraft, s)

	require.NoError(t, s.Scan([]byte("PUBLISHED")))
	assert.Equal(t, StatusPublished, s)

	assert.ErrorIs(t, s.Scan("ARCHIVED"), runtime.ErrValidation)
	assert.ErrorIs(t, s.Scan(nil), runtime.ErrValidation)
	assert.Error(t, s.Scan(42))

	v, err := StatusPrivate.Value()
	require.NoError(t, err)
	assert.Equal(t, "PRIVATE", v)

	_, err = ContentStatus("gone").Value()
	assert.ErrorIs(t, err, runtime.ErrValidation)
}

func TestContent_Validate(t *testing.T) {
	assert.NoError(t, (&Content{}).Validate())
	assert.NoError(t, (&Content{Status: StatusDraft}).Validate())

	err := (&Content{Status: "LIVE"}).Validate()
	var verr *runtime.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)
}
