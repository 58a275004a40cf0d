package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is a community board entry.
type Post struct {
	ID       uint   `gorm:"primaryKey" json:"id" yaml:"id"`
	Title    string `gorm:"not null" json:"title" yaml:"title"`
	Content  string `gorm:"type:text;not null" json:"content" yaml:"content"`
	ImageURL string `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	UserID   uint   `gorm:"not null;index" json:"user_id" yaml:"user_id"`
	User     User   `gorm:"foreignKey:UserID" json:"user" yaml:"user"`
	// CommentsCount is computed at query time
	CommentsCount int            `gorm:"->;-:migration" json:"comments_count" yaml:"comments_count"`
	CreatedAt     time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" yaml:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-" yaml:"-"`
}

// Comment belongs to a post.
type Comment struct {
	ID        uint           `gorm:"primaryKey" json:"id" yaml:"id"`
	Content   string         `gorm:"not null" json:"content" yaml:"content"`
	UserID    uint           `gorm:"not null" json:"user_id" yaml:"user_id"`
	PostID    uint           `gorm:"not null;index" json:"post_id" yaml:"post_id"`
	User      User           `gorm:"foreignKey:UserID" json:"user" yaml:"user"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-" yaml:"-"`
}

// Report flags a post or comment for moderation.
type Report struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TargetType string    `gorm:"not null;uniqueIndex:idx_report_target" json:"target_type"`
	TargetID   uint      `gorm:"not null;uniqueIndex:idx_report_target" json:"target_id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_report_target" json:"user_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportRequest is the body of a report call.
type ReportRequest struct {
	Reason string `json:"reason"`
}

// PostUpdate is the body of PUT /api/posts/:id.
type PostUpdate struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CommentRequest is the body of POST /api/posts/:id/comments.
type CommentRequest struct {
	Content string `json:"content"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T   `json:"items" yaml:"items"`
	Total int64 `json:"total" yaml:"total"`
	Page  int   `json:"page" yaml:"page"`
	Size  int   `json:"size" yaml:"size"`
}
