package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"qrguard/internal/gateway"
	"qrguard/internal/imageprep"
	"qrguard/internal/models"
)

// NewPost is the input to CreatePost. Image is optional.
type NewPost struct {
	Title     string
	Content   string
	ImageName string
	Image     io.Reader
}

// ListPosts returns one page of the community board, optionally filtered by query.
func (c *Client) ListPosts(ctx context.Context, page, size int, query string) (*models.Page[models.Post], error) {
	page, size = normalizePage(page, size)
	q := url.Values{"page": {strconv.Itoa(page)}, "size": {strconv.Itoa(size)}}
	if query = strings.TrimSpace(query); query != "" {
		q.Set("q", query)
	}
	var out models.Page[models.Post]
	if err := c.gw.Get(ctx, "/api/posts", q, &out); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	for i := range out.Items {
		c.sanitize.Post(&out.Items[i])
	}
	return &out, nil
}

// GetPost fetches one post.
func (c *Client) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var out models.Post
	if err := c.gw.Get(ctx, "/api/posts/"+itoa(id), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch post: %w", err)
	}
	c.sanitize.Post(&out)
	return &out, nil
}

// CreatePost publishes a post as multipart form data. An attached image is
// normalized to PNG first.
func (c *Client) CreatePost(ctx context.Context, in NewPost) (*models.Post, error) {
	title, content := strings.TrimSpace(in.Title), strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return nil, invalid("title and content are required")
	}
	form := &gateway.Form{}
	form.Add("title", title)
	form.Add("content", content)
	if in.Image != nil {
		img, err := imageprep.Normalize(in.ImageName, in.Image, c.maxEdge)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		form.Attach(gateway.File{Field: "image", Name: img.Filename, ContentType: img.ContentType, Content: bytes.NewReader(img.Data)})
	}

	var out models.Post
	if err := c.gw.Upload(ctx, http.MethodPost, "/api/posts", form, &out); err != nil {
		return nil, c.identityBound(ctx, "create post", err)
	}
	c.sanitize.Post(&out)
	return &out, nil
}

// UpdatePost edits the caller's post. Empty fields are left unchanged.
func (c *Client) UpdatePost(ctx context.Context, id uint, title, content string) (*models.Post, error) {
	var out models.Post
	body := models.PostUpdate{Title: strings.TrimSpace(title), Content: strings.TrimSpace(content)}
	if err := c.gw.Put(ctx, "/api/posts/"+itoa(id), body, &out); err != nil {
		return nil, c.identityBound(ctx, "update post", err)
	}
	c.sanitize.Post(&out)
	return &out, nil
}

// DeletePost removes the caller's post.
func (c *Client) DeletePost(ctx context.Context, id uint) error {
	return moderated("delete post", c.gw.Delete(ctx, "/api/posts/"+itoa(id), nil))
}

// ReportPost flags a post for moderation.
func (c *Client) ReportPost(ctx context.Context, id uint, reason string) error {
	path := "/api/posts/" + itoa(id) + "/report"
	return moderated("report post", c.gw.Post(ctx, path, models.ReportRequest{Reason: strings.TrimSpace(reason)}, nil))
}

// ListComments returns a post's comments, oldest first.
func (c *Client) ListComments(ctx context.Context, postID uint) ([]models.Comment, error) {
	var out []models.Comment
	if err := c.gw.Get(ctx, "/api/posts/"+itoa(postID)+"/comments", nil, &out); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	for i := range out {
		c.sanitize.Comment(&out[i])
	}
	return out, nil
}

// CreateComment adds a comment to a post.
func (c *Client) CreateComment(ctx context.Context, postID uint, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("comment is empty")
	}
	var out models.Comment
	if err := c.gw.Post(ctx, "/api/posts/"+itoa(postID)+"/comments", models.CommentRequest{Content: content}, &out); err != nil {
		return nil, c.identityBound(ctx, "create comment", err)
	}
	c.sanitize.Comment(&out)
	return &out, nil
}

// DeleteComment removes the caller's comment.
func (c *Client) DeleteComment(ctx context.Context, postID, commentID uint) error {
	path := "/api/posts/" + itoa(postID) + "/comments/" + itoa(commentID)
	return moderated("delete comment", c.gw.Delete(ctx, path, nil))
}

// ReportComment flags a comment for moderation.
func (c *Client) ReportComment(ctx context.Context, postID, commentID uint, reason string) error {
	path := "/api/posts/" + itoa(postID) + "/comments/" + itoa(commentID) + "/report"
	return moderated("report comment", c.gw.Post(ctx, path, models.ReportRequest{Reason: strings.TrimSpace(reason)}, nil))
}
