package builder

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/marshallshelly/blogstore/pkg/registry"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/stretchr/testify/require"
)

type Writer struct {
	ID    int     `po:"id,primaryKey,serial"`
	Email string  `po:"email,varchar(255),notNull,unique" validate:"required,email"`
	Name  string  `po:"name,varchar(50),notNull" validate:"required,max=50"`
	Bio   *string `po:"bio,text"`
	Posts []Post  `po:"-,hasMany,foreignKey(writer_id),references(id)"`
}

func (Writer) TableName() string { return "writers" }

type Post struct {
	ID          int         `po:"id,primaryKey,serial"`
	Slug        string      `po:"slug,varchar(100),notNull,unique"`
	Title       string      `po:"title,varchar(200),notNull"`
	WriterID    int         `po:"writer_id,integer,notNull,fk(writers.id),onDelete(restrict)"`
	Views       int         `po:"views,integer,notNull,default(0)"`
	Rating      float64     `po:"rating,double precision,notNull,default(0)"`
	PublishedAt *time.Time  `po:"published_at,timestamptz"`
	UpdatedAt   time.Time   `po:"updated_at,timestamptz,notNull,default(NOW()),updatedAt"`
	Writer      *Writer     `po:"-,belongsTo,foreignKey(writer_id),references(id)"`
	Notes       []Note      `po:"-,hasMany,foreignKey(post_id),references(id)"`
	Labels      []PostLabel `po:"-,hasMany,foreignKey(post_id),references(id)"`
}

func (Post) TableName() string { return "posts" }

type Note struct {
	ID       int    `po:"id,primaryKey,serial"`
	PostID   int    `po:"post_id,integer,notNull,fk(posts.id),onDelete(cascade)"`
	ParentID *int   `po:"parent_id,integer,fk(notes.id),onDelete(cascade)"`
	Body     string `po:"body,text,notNull"`
	Approved bool   `po:"approved,boolean,notNull,default(false)"`
	Post     *Post  `po:"-,belongsTo,foreignKey(post_id),references(id)"`
	Parent   *Note  `po:"-,belongsTo,foreignKey(parent_id),references(id)"`
	Replies  []Note `po:"-,hasMany,foreignKey(parent_id),references(id)"`
}

func (Note) TableName() string { return "notes" }

type PostLabel struct {
	PostID int    `po:"post_id,integer,primaryKey,fk(posts.id),onDelete(cascade)"`
	Label  string `po:"label,varchar(50),primaryKey"`
}

func (PostLabel) TableName() string { return "post_labels" }

type Vote struct {
	ID      int `po:"id,primaryKey,serial"`
	PostID  int `po:"post_id,integer,notNull,unique(post_voter)"`
	VoterID int `po:"voter_id,integer,notNull,unique(post_voter)"`
}

func (Vote) TableName() string { return "votes" }

// call is one statement seen by the recorder.
type call struct {
	sql  string
	args []any
}

// recorder is a Querier that records statements and returns no rows.
type recorder struct {
	calls    []call
	affected int64
	count    int64
	err      error
	hooks    []func()
}

func (r *recorder) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	r.calls = append(r.calls, call{sql: sql, args: args})
	return r.affected, r.err
}

func (r *recorder) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.calls = append(r.calls, call{sql: sql, args: args})
	if r.err != nil {
		return nil, r.err
	}
	return &emptyRows{}, nil
}

func (r *recorder) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r.calls = append(r.calls, call{sql: sql, args: args})
	if r.err != nil {
		return errRow{err: r.err}
	}
	return countRow{n: r.count}
}

func (r *recorder) last(t *testing.T) call {
	t.Helper()
	require.NotEmpty(t, r.calls)
	return r.calls[len(r.calls)-1]
}

// committer is a recorder that defers hooks like a transaction.
type committer struct {
	recorder
}

func (c *committer) OnCommit(fn func()) {
	c.hooks = append(c.hooks, fn)
}

// countRow answers COUNT(*) queries.
type countRow struct {
	n int64
}

func (r countRow) Scan(dest ...any) error {
	for _, d := range dest {
		if p, ok := d.(*int64); ok {
			*p = r.n
		}
	}
	return nil
}

type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(...any) error                            { return pgx.ErrNoRows }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

// newRepo builds a repository on an isolated registry.
func newRepo[T any](t *testing.T, q runtime.Querier, opts ...Option) *Repository[T] {
	t.Helper()
	repo, err := NewRepository[T](q, append([]Option{WithRegistry(registry.NewRegistry())}, opts...)...)
	require.NoError(t, err)
	return repo
}
