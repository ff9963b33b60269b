package blog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
	"go.uber.org/zap"
)

// Users is the repository of User rows.
type Users struct {
	*builder.Repository[User]
	client *Client
}

func newUsers(c *Client, db *builder.DB, opts []builder.Option) (*Users, error) {
	repo, err := builder.NewRepository[User](db, opts...)
	if err != nil {
		return nil, err
	}
	return &Users{Repository: repo, client: c}, nil
}

// FindByEmail returns the user with the given email, or nil.
func (u *Users) FindByEmail(ctx context.Context, email string, opts ...builder.FindOption) (*User, error) {
	return u.FindUnique(ctx, builder.UniqueKey{"email": email}, opts...)
}

// Delete removes a user. Their comments and likes go with them and the
// counters of every content they touched are recomputed in the same
// transaction. A user who still authors content cannot be deleted.
func (u *Users) Delete(ctx context.Context, key builder.UniqueKey) (*User, error) {
	var deleted *User
	err := u.client.atomic(ctx, func(tx *Client) error {
		user, err := tx.Users.FindUniqueOrError(ctx, key)
		if err != nil {
			return err
		}

		touched, err := tx.touchedContents(ctx, user.ID)
		if err != nil {
			return err
		}

		deleted, err = tx.Users.Repository.Delete(ctx, builder.UniqueKey{"id": user.ID})
		if err != nil {
			return err
		}

		if len(touched) > 0 {
			if _, err := tx.Contents.Recount(ctx, touched...); err != nil {
				return err
			}
		}

		u.client.logger.Debug("user deleted",
			zap.Int("user_id", user.ID),
			zap.Ints("recounted_contents", touched),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// touchedContents returns the ids of contents whose counters change when
// the user goes: rows of every table that cascades from users and carries
// a content_id.
func (c *Client) touchedContents(ctx context.Context, userID int) ([]int, error) {
	sql, err := c.cascadedContentsSQL()
	if err != nil || sql == "" {
		return nil, err
	}

	rows, err := c.querier().Query(ctx, sql, userID)
	if err != nil {
		return nil, &runtime.QueryError{Query: sql, Err: runtime.Classify(err)}
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, &runtime.QueryError{Query: sql, Err: runtime.Classify(err)}
	}
	return ids, nil
}

// cascadedContentsSQL builds the content_id lookup from the registered
// foreign keys that point at users.
func (c *Client) cascadedContentsSQL() (string, error) {
	var selects []string
	for _, ref := range c.registry.Referencing(User{}.TableName()) {
		fk := ref.ForeignKey
		if fk.OnDelete != schema.Cascade || len(fk.Columns) != 1 {
			continue
		}
		table, err := c.registry.GetByName(ref.Table)
		if err != nil {
			return "", err
		}
		if table.Column("content_id") == nil {
			continue
		}
		selects = append(selects, fmt.Sprintf("SELECT content_id FROM %s WHERE %s = $1", ref.Table, fk.Columns[0]))
	}
	if len(selects) == 0 {
		return "", nil
	}
	return strings.Join(selects, " UNION ") + " ORDER BY content_id", nil
}
