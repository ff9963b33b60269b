// Package blog holds the blog entities and their typed repositories.
package blog

import "time"

// User is an account that writes content, comments and likes.
type User struct {
	ID          int       `po:"id,primaryKey,serial" json:"id"`
	Email       string    `po:"email,varchar(255),notNull,unique" json:"email" validate:"required,email,max=255"`
	Username    string    `po:"username,varchar(50),notNull" json:"username" validate:"required,max=50"`
	PhoneNumber string    `po:"phone_number,varchar(32),notNull" json:"phoneNumber" validate:"required,max=32"`
	Status      string    `po:"status,varchar(20),notNull,default('active')" json:"status" validate:"omitempty,max=20"`
	CreatedAt   time.Time `po:"created_at,timestamptz,notNull,default(NOW())" json:"createdAt"`
	UpdatedAt   time.Time `po:"updated_at,timestamptz,notNull,default(NOW()),updatedAt" json:"updatedAt"`

	Contents []Content `po:"-,hasMany,foreignKey(author_id),references(id)" json:"contents,omitempty"`
	Comments []Comment `po:"-,hasMany,foreignKey(user_id),references(id)" json:"comments,omitempty"`
	Likes    []Like    `po:"-,hasMany,foreignKey(user_id),references(id)" json:"likes,omitempty"`
}

func (User) TableName() string { return "users" }

// BlogCategory groups content. IsVisible is a pointer so that an unset
// value takes the column default (true) on create.
type BlogCategory struct {
	ID          int       `po:"id,primaryKey,serial" json:"id"`
	Slug        string    `po:"slug,varchar(100),notNull,unique" json:"slug" validate:"required,max=100"`
	Name        string    `po:"name,varchar(100),notNull" json:"name" validate:"required,max=100"`
	Description *string   `po:"description,text" json:"description"`
	IsVisible   *bool     `po:"is_visible,boolean,notNull,default(true)" json:"isVisible"`
	SortOrder   int       `po:"sort_order,integer,notNull,default(0)" json:"sortOrder"`
	CreatedAt   time.Time `po:"created_at,timestamptz,notNull,default(NOW())" json:"createdAt"`
	UpdatedAt   time.Time `po:"updated_at,timestamptz,notNull,default(NOW()),updatedAt" json:"updatedAt"`

	Contents []Content `po:"-,hasMany,foreignKey(category_id),references(id)" json:"contents,omitempty"`
}

func (BlogCategory) TableName() string { return "blog_categories" }

// Content is a post written by a User inside a BlogCategory.
type Content struct {
	ID           int           `po:"id,primaryKey,serial" json:"id"`
	Slug         string        `po:"slug,varchar(200),notNull,unique" json:"slug" validate:"required,max=200"`
	Title        string        `po:"title,varchar(200),notNull" json:"title" validate:"required,max=200"`
	ContentBody  string        `po:"content_body,text,notNull" json:"contentBody" validate:"required"`
	Excerpt      *string       `po:"excerpt,text" json:"excerpt"`
	AuthorID     int           `po:"author_id,integer,notNull,fk(users.id),onDelete(restrict)" json:"authorId" validate:"required"`
	CategoryID   int           `po:"category_id,integer,notNull,fk(blog_categories.id),onDelete(restrict)" json:"categoryId" validate:"required"`
	Status       ContentStatus `po:"status,varchar(20),notNull,default('DRAFT')" json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED PRIVATE"`
	ViewCount    int           `po:"view_count,integer,notNull,default(0)" json:"viewCount" validate:"gte=0"`
	LikeCount    int           `po:"like_count,integer,notNull,default(0)" json:"likeCount" validate:"gte=0"`
	CommentCount int           `po:"comment_count,integer,notNull,default(0)" json:"commentCount" validate:"gte=0"`
	PublishedAt  *time.Time    `po:"published_at,timestamptz" json:"publishedAt"`
	CreatedAt    time.Time     `po:"created_at,timestamptz,notNull,default(NOW())" json:"createdAt"`
	UpdatedAt    time.Time     `po:"updated_at,timestamptz,notNull,default(NOW()),updatedAt" json:"updatedAt"`

	Author   *User         `po:"-,belongsTo,foreignKey(author_id),references(id)" json:"author,omitempty"`
	Category *BlogCategory `po:"-,belongsTo,foreignKey(category_id),references(id)" json:"category,omitempty"`
	Tags     []ContentTag  `po:"-,hasMany,foreignKey(content_id),references(id)" json:"tags,omitempty"`
	Comments []Comment     `po:"-,hasMany,foreignKey(content_id),references(id)" json:"comments,omitempty"`
	Likes    []Like        `po:"-,hasMany,foreignKey(content_id),references(id)" json:"likes,omitempty"`
}

func (Content) TableName() string { return "contents" }

// Validate rejects statuses outside the enum.
func (c *Content) Validate() error {
	if c.Status == "" {
		return nil
	}
	return c.Status.validate()
}

// Tag labels content.
type Tag struct {
	ID        int       `po:"id,primaryKey,serial" json:"id"`
	Name      string    `po:"name,varchar(50),notNull,unique" json:"name" validate:"required,max=50"`
	Slug      string    `po:"slug,varchar(50),notNull,unique" json:"slug" validate:"required,max=50"`
	CreatedAt time.Time `po:"created_at,timestamptz,notNull,default(NOW())" json:"createdAt"`

	Contents []ContentTag `po:"-,hasMany,foreignKey(tag_id),references(id)" json:"contents,omitempty"`
}

func (Tag) TableName() string { return "tags" }

// ContentTag links a Content to a Tag. The pair is the primary key.
type ContentTag struct {
	ContentID int       `po:"content_id,integer,primaryKey,fk(contents.id),onDelete(cascade)" json:"contentId" validate:"required"`
	TagID     int       `po:"tag_id,integer,primaryKey,fk(tags.id),onDelete(cascade)" json:"tagId" validate:"required"`
	CreatedAt time.Time `po:"created_at,timestamptz,notNull,default(NOW())" json:"createdAt"`

	Content *Content `po:"-,belongsTo,foreignKey(content_id),references(id)" json:"content,omitempty"`
	Tag     *Tag     `po:"-,belongsTo,foreignKey(tag_id),references(id)" json:"tag,omitempty"`
}

func (ContentTag) TableName() string { return "content_tags" }

// Comment is a remark on a Content, optionally replying to another Comment
// of the same Content.
type Comment struct {
	ID         int       `po:"id,primaryKey,serial" json:"id"`
	ContentID  int       `po:"content_id,integer,notNull,fk(contents.id),onDelete(cascade)" json:"contentId" validate:"required"`
	UserID     int       `po:"user_id,integer,notNull,fk(users.id),onDelete(cascade)" json:"userId" validate:"required"`
	ParentID   *int      `po:"parent_id,integer,fk(comments.id),onDelete(cascade)" json:"parentId"`
	Body       string    `po:"body,text,notNull" json:"body" validate:"required,max=10000"`
	IsApproved bool      `po:"is_approved,boolean,notNull,default(false)" json:"isApproved"`
	CreatedAt  time.Time `po:"created_at,timestamptz,notNull,default(NOW())" json:"createdAt"`
	UpdatedAt  time.Time `po:"updated_at,timestamptz,notNull,default(NOW()),updatedAt" json:"updatedAt"`

	Content *Content  `po:"-,belongsTo,foreignKey(content_id),references(id)" json:"content,omitempty"`
	User    *User     `po:"-,belongsTo,foreignKey(user_id),references(id)" json:"user,omitempty"`
	Parent  *Comment  `po:"-,belongsTo,foreignKey(parent_id),references(id)" json:"parent,omitempty"`
	Replies []Comment `po:"-,hasMany,foreignKey(parent_id),references(id)" json:"replies,omitempty"`
}

func (Comment) TableName() string { return "comments" }

// Like records that a User liked a Content. A user likes a content at most once.
type Like struct {
	ID        int       `po:"id,primaryKey,serial" json:"id"`
	ContentID int       `po:"content_id,integer,notNull,fk(contents.id),onDelete(cascade),unique(content_user)" json:"contentId" validate:"required"`
	UserID    int       `po:"user_id,integer,notNull,fk(users.id),onDelete(cascade),unique(content_user)" json:"userId" validate:"required"`
	CreatedAt time.Time `po:"created_at,timestamptz,notNull,default(NOW())" json:"createdAt"`

	Content *Content `po:"-,belongsTo,foreignKey(content_id),references(id)" json:"content,omitempty"`
	User    *User    `po:"-,belongsTo,foreignKey(user_id),references(id)" json:"user,omitempty"`
}

func (Like) TableName() string { return "likes" }
