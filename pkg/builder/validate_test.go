package builder

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/marshallshelly/blogstore/pkg/registry"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Draft struct {
	ID    int    `po:"id,primaryKey,serial"`
	Title string `po:"title,varchar(80),notNull" validate:"required,min=3"`
	State string `po:"state,varchar(20),notNull"`
}

func (Draft) TableName() string { return "drafts" }

func (d *Draft) Validate() error {
	if d.State != "open" && d.State != "closed" {
		return runtime.Invalid("state", "unknown state %q", d.State)
	}
	return nil
}

type Plain struct {
	ID   int    `po:"id,primaryKey,serial"`
	Note string `po:"note,text,notNull"`
}

func (Plain) TableName() string { return "plain" }

func (p Plain) Validate() error {
	if p.Note == "" {
		return errors.New("note is empty")
	}
	return nil
}

func TestValidateModel(t *testing.T) {
	table, err := registry.NewRegistry().GetOrRegister(Draft{})
	require.NoError(t, err)

	tests := []struct {
		name      string
		draft     Draft
		wantField string
		wantMsg   string
	}{
		{"valid", Draft{Title: "Hello", State: "open"}, "", ""},
		{"tag failure names the column", Draft{Title: "Hi", State: "open"}, "title", `title failed "min" (3)`},
		{"validate method", Draft{Title: "Hello", State: "gone"}, "state", `unknown state "gone"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateModel(defaultValidate, table, reflect.ValueOf(&tt.draft).Elem())
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verr *runtime.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Contains(t, verr.Message, tt.wantMsg)
		})
	}
}

func TestValidateModel_PlainErrors(t *testing.T) {
	q := &recorder{}
	repo := newRepo[Plain](t, q)

	_, err := repo.Create(context.Background(), Plain{})
	assert.ErrorIs(t, err, runtime.ErrValidation)
	assert.ErrorContains(t, err, "note is empty")
	assert.Empty(t, q.calls)
}

func TestCol(t *testing.T) {
	assert.Equal(t, "writer_id", Col[Post]("WriterID"))
	assert.Equal(t, "published_at", Col[Post]("PublishedAt"))
	assert.Panics(t, func() { Col[Post]("Nope") })
}
