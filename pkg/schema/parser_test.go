package schema

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	ID        int       `po:"id,primaryKey,serial"`
	Email     string    `po:"email,varchar(255),notNull,unique"`
	Nickname  *string   `po:"nickname,varchar(50)"`
	CreatedAt time.Time `po:"created_at,timestamptz,notNull,default(now())"`
	UpdatedAt time.Time `po:"updated_at,timestamptz,notNull,default(now()),updatedAt"`
	Articles  []article `po:"-,hasMany,foreignKey(member_id),references(id)"`
}

func (member) TableName() string { return "members" }

type article struct {
	ID       int     `po:"id,primaryKey,serial"`
	Slug     string  `po:"slug,varchar(191),notNull,unique"`
	MemberID int     `po:"member_id,integer,notNull,fk(members.id),onDelete(restrict)"`
	Member   *member `po:"-,belongsTo,foreignKey(member_id),references(id)"`
	Score    float64 `po:"score,double precision,notNull"`
	Skipped  string  `po:"-"`
}

type reaction struct {
	ID        int `po:"id,primaryKey,serial"`
	ArticleID int `po:"article_id,integer,notNull,unique(article_member),fk(article.id),onDelete(cascade)"`
	MemberID  int `po:"member_id,integer,notNull,unique(article_member),fk(members.id),onDelete(cascade)"`
}

type pair struct {
	LeftID  int `po:"left_id,integer,primaryKey"`
	RightID int `po:"right_id,integer,primaryKey"`
}

type note struct {
	ID       int    `po:"id,primaryKey,serial"`
	ParentID *int   `po:"parent_id,integer,fk(note.id),onDelete(cascade)"`
	Parent   *note  `po:"-,belongsTo,foreignKey(parent_id),references(id)"`
	Replies  []note `po:"-,hasMany,foreignKey(parent_id),references(id)"`
}

type keyless struct {
	Name string `po:"name,text"`
}

func TestParser_Parse(t *testing.T) {
	parser := NewParser()

	t.Run("columns and table name", func(t *testing.T) {
		table, err := parser.Parse(reflect.TypeOf(member{}))
		require.NoError(t, err)

		assert.Equal(t, "members", table.Name)
		assert.Equal(t, []string{"id", "email", "nickname", "created_at", "updated_at"}, table.ColumnNames())
		assert.Equal(t, []string{"id"}, table.PrimaryKeyColumns())

		id := table.Column("id")
		require.NotNil(t, id)
		assert.True(t, id.AutoIncrement)
		assert.False(t, id.Nullable)

		email := table.Column("email")
		require.NotNil(t, email)
		assert.Equal(t, "varchar(255)", email.SQLType)
		assert.True(t, email.Unique)
		assert.True(t, email.IsString())

		nickname := table.Column("nickname")
		require.NotNil(t, nickname)
		assert.True(t, nickname.Nullable, "pointer fields are nullable")

		updated := table.Column("updated_at")
		require.NotNil(t, updated)
		assert.True(t, updated.AutoUpdate)
		require.NotNil(t, updated.Default)
		assert.Equal(t, "now()", *updated.Default)
	})

	t.Run("default table name is snake case", func(t *testing.T) {
		table, err := parser.Parse(reflect.TypeOf(&article{}))
		require.NoError(t, err)
		assert.Equal(t, "article", table.Name)
		assert.False(t, table.HasColumn("skipped"))
		assert.True(t, table.Column("score").IsFloat())
	})

	t.Run("foreign keys", func(t *testing.T) {
		table, err := parser.Parse(reflect.TypeOf(reaction{}))
		require.NoError(t, err)
		require.Len(t, table.ForeignKeys, 2)

		fk := table.ForeignKeys[0]
		assert.Equal(t, "reaction_article_id_fkey", fk.Name)
		assert.Equal(t, "article", fk.ReferencedTable)
		assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
		assert.Equal(t, Cascade, fk.OnDelete)
		assert.Equal(t, NoAction, fk.OnUpdate)
	})

	t.Run("compound unique key", func(t *testing.T) {
		table, err := parser.Parse(reflect.TypeOf(reaction{}))
		require.NoError(t, err)

		require.Len(t, table.UniqueKeys, 1)
		assert.Equal(t, []string{"article_id", "member_id"}, table.UniqueKeys[0].Columns)
		assert.Equal(t, "reaction_article_id_member_id_key", table.UniqueKeys[0].Name)

		assert.NotNil(t, table.FindUniqueKey([]string{"member_id", "article_id"}), "column order does not matter")
		assert.Nil(t, table.FindUniqueKey([]string{"member_id"}))
		assert.NotNil(t, table.FindUniqueKey([]string{"id"}))
		assert.Equal(t, "(id) | (article_id, member_id)", table.DescribeUniqueKeys())
	})

	t.Run("composite primary key", func(t *testing.T) {
		table, err := parser.Parse(reflect.TypeOf(pair{}))
		require.NoError(t, err)
		assert.Equal(t, []string{"left_id", "right_id"}, table.PrimaryKeyColumns())
		assert.True(t, table.IsPrimaryKey("right_id"))
	})

	t.Run("missing primary key", func(t *testing.T) {
		_, err := parser.Parse(reflect.TypeOf(keyless{}))
		assert.Error(t, err)
	})

	t.Run("non struct", func(t *testing.T) {
		_, err := parser.Parse(reflect.TypeOf(42))
		assert.Error(t, err)
	})

	t.Run("cached", func(t *testing.T) {
		first, err := parser.Parse(reflect.TypeOf(member{}))
		require.NoError(t, err)
		second, err := parser.Parse(reflect.TypeOf(&member{}))
		require.NoError(t, err)
		assert.Same(t, first, second)
	})
}

func TestParser_Relationships(t *testing.T) {
	parser := NewParser()

	members, err := parser.Parse(reflect.TypeOf(member{}))
	require.NoError(t, err)
	articles, err := parser.Parse(reflect.TypeOf(article{}))
	require.NoError(t, err)

	hasMany := members.GetRelationship("Articles")
	require.NotNil(t, hasMany)
	assert.Equal(t, HasMany, hasMany.Type)
	assert.Equal(t, "article", hasMany.TargetTable)
	assert.Equal(t, "id", hasMany.LocalKey())
	assert.Equal(t, "member_id", hasMany.RemoteKey())
	assert.NoError(t, hasMany.Validate(members, articles))

	belongsTo := articles.GetRelationship("Member")
	require.NotNil(t, belongsTo)
	assert.Equal(t, BelongsTo, belongsTo.Type)
	assert.Equal(t, "members", belongsTo.TargetTable, "target table honors TableName()")
	assert.Equal(t, "member_id", belongsTo.LocalKey())
	assert.Equal(t, "id", belongsTo.RemoteKey())
	assert.NoError(t, belongsTo.Validate(articles, members))

	assert.Nil(t, articles.GetRelationship("Nope"))
}

func TestParser_SelfReference(t *testing.T) {
	table, err := NewParser().Parse(reflect.TypeOf(note{}))
	require.NoError(t, err)

	parent := table.GetRelationship("Parent")
	replies := table.GetRelationship("Replies")
	require.NotNil(t, parent)
	require.NotNil(t, replies)

	assert.Equal(t, "note", parent.TargetTable)
	assert.Equal(t, "parent_id", parent.LocalKey())
	assert.Equal(t, "parent_id", replies.RemoteKey())
	assert.True(t, table.Column("parent_id").Nullable)
	assert.NoError(t, parent.Validate(table, table))
}

func TestParser_InvalidRelationshipField(t *testing.T) {
	type broken struct {
		ID     int    `po:"id,primaryKey,serial"`
		Owner  member `po:"-,belongsTo,foreignKey(owner_id)"`
		Others member `po:"-,hasMany"`
	}

	_, err := NewParser().Parse(reflect.TypeOf(broken{}))
	assert.Error(t, err)
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		column  string
		options map[string]string
		wantErr bool
	}{
		{
			name:    "simple",
			tag:     "email,varchar(255),notNull",
			column:  "email",
			options: map[string]string{"varchar": "255", "notNull": ""},
		},
		{
			name:    "nested parentheses",
			tag:     "price,numeric(10,2),default(0)",
			column:  "price",
			options: map[string]string{"numeric": "10,2", "default": "0"},
		},
		{
			name:    "colon value",
			tag:     "status,onDelete:cascade",
			column:  "status",
			options: map[string]string{"onDelete": "cascade"},
		},
		{
			name:    "unterminated option",
			tag:     "name,varchar(10",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := parseTag(tt.tag)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.column, spec.column)
			assert.Equal(t, tt.options, spec.opts)
		})
	}
}

func TestRegisterTableName(t *testing.T) {
	type legacyThing struct {
		ID int `po:"id,primaryKey"`
	}
	RegisterTableName("legacyThing", "things_v2")

	table, err := NewParser().Parse(reflect.TypeOf(legacyThing{}))
	require.NoError(t, err)
	assert.Equal(t, "things_v2", table.Name)
}

func TestToSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"User":         "user",
		"BlogCategory": "blog_category",
		"ContentTag":   "content_tag",
		"lower":        "lower",
	} {
		assert.Equal(t, want, toSnakeCase(in), in)
	}
}

func TestTagSpec_SQLType(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"title,varchar(191),notNull", "varchar(191)"},
		{"price,numeric(10,2)", "numeric(10,2)"},
		{"body,text", "text"},
		{"score,double precision", "double precision"},
		{"views,notNull", ""},
	}
	for _, tt := range tests {
		spec, err := parseTag(tt.tag)
		require.NoError(t, err)
		assert.Equal(t, tt.want, spec.sqlType(), tt.tag)
	}
}

func TestSplitTag(t *testing.T) {
	assert.Equal(t, []string{"a", "b(1,2)", "c"}, splitTag("a, b(1,2) ,c"))
	assert.Equal(t, []string{"a"}, splitTag("a,"))
	assert.Equal(t, []string{""}, splitTag(""))
}
