package blog

import (
	"context"

	"github.com/marshallshelly/blogstore/pkg/builder"
)

// Likes is the repository of Like rows.
type Likes struct {
	*builder.Repository[Like]
	client *Client
}

func newLikes(c *Client, db *builder.DB, opts []builder.Option) (*Likes, error) {
	repo, err := builder.NewRepository[Like](db, opts...)
	if err != nil {
		return nil, err
	}
	return &Likes{Repository: repo, client: c}, nil
}

func likeKey(contentID, userID int) builder.UniqueKey {
	return builder.UniqueKey{"content_id": contentID, "user_id": userID}
}

// Like records that a user liked a content and bumps like_count. Liking
// twice fails with a duplicate key error.
func (l *Likes) Like(ctx context.Context, contentID, userID int) (*Like, error) {
	var like *Like
	err := l.client.atomic(ctx, func(tx *Client) error {
		var err error
		like, err = tx.Likes.Create(ctx, Like{ContentID: contentID, UserID: userID})
		if err != nil {
			return err
		}
		return tx.Contents.bumpLikes(ctx, contentID, 1)
	})
	if err != nil {
		return nil, err
	}
	return like, nil
}

// Unlike removes a like and lowers like_count. It fails with a not-found
// error when the user has not liked the content.
func (l *Likes) Unlike(ctx context.Context, contentID, userID int) (*Like, error) {
	var like *Like
	err := l.client.atomic(ctx, func(tx *Client) error {
		var err error
		like, err = tx.Likes.Delete(ctx, likeKey(contentID, userID))
		if err != nil {
			return err
		}
		return tx.Contents.bumpLikes(ctx, contentID, -1)
	})
	if err != nil {
		return nil, err
	}
	return like, nil
}

// Toggle likes or unlikes a content and reports whether it is now liked.
func (l *Likes) Toggle(ctx context.Context, contentID, userID int) (bool, error) {
	var liked bool
	err := l.client.atomic(ctx, func(tx *Client) error {
		has, err := tx.Likes.HasLiked(ctx, contentID, userID)
		if err != nil {
			return err
		}
		if has {
			_, err = tx.Likes.Unlike(ctx, contentID, userID)
		} else {
			_, err = tx.Likes.Like(ctx, contentID, userID)
		}
		liked = !has
		return err
	})
	return liked, err
}

// HasLiked reports whether the user liked the content.
func (l *Likes) HasLiked(ctx context.Context, contentID, userID int) (bool, error) {
	like, err := l.FindUnique(ctx, likeKey(contentID, userID), builder.Selecting("id"))
	if err != nil {
		return false, err
	}
	return like != nil, nil
}
