package testutil

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"qrguard/internal/models"
)

const (
	targetPost    = "post"
	targetComment = "comment"
)

func (b *Backend) posts() *gorm.DB {
	return b.DB.Model(&models.Post{}).
		Select("posts.*, (SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id AND comments.deleted_at IS NULL) AS comments_count").
		Preload("User")
}

func (b *Backend) findPost(c *fiber.Ctx) (*models.Post, error) {
	id, err := c.ParamsInt("id")
	if err != nil {
		return nil, respond(c, fiber.StatusBadRequest, models.CodeValidation, "invalid post id")
	}
	var post models.Post
	if err := b.posts().First(&post, "posts.id = ?", id).Error; err != nil {
		return nil, respond(c, fiber.StatusNotFound, models.CodeNotFound, "Post not found")
	}
	return &post, nil
}

func (b *Backend) listPosts(c *fiber.Ctx) error {
	page, size := pagination(c)
	q := b.DB.Model(&models.Post{})
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		like := "%" + term + "%"
		q = q.Where("title LIKE ? OR content LIKE ?", like, like)
	}
	var total int64
	q.Count(&total)

	items := []models.Post{}
	list := b.posts()
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		like := "%" + term + "%"
		list = list.Where("posts.title LIKE ? OR posts.content LIKE ?", like, like)
	}
	list.Order("posts.id DESC").Offset((page - 1) * size).Limit(size).Find(&items)
	return c.JSON(models.Page[models.Post]{Items: items, Total: total, Page: page, Size: size})
}

func (b *Backend) getPost(c *fiber.Ctx) error {
	post, err := b.findPost(c)
	if post == nil {
		return err
	}
	return c.JSON(post)
}

func (b *Backend) createPost(c *fiber.Ctx) error {
	title := strings.TrimSpace(c.FormValue("title"))
	content := strings.TrimSpace(c.FormValue("content"))
	if title == "" || content == "" {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "title and content are required")
	}
	post := models.Post{Title: title, Content: content, UserID: currentUser(c)}
	if fh, err := c.FormFile("image"); err == nil {
		if fh.Header.Get("Content-Type") != "image/png" {
			return respond(c, fiber.StatusBadRequest, models.CodeValidation, "image must be PNG")
		}
		post.ImageURL = "/uploads/" + uuid.NewString() + ".png"
	}
	if err := b.DB.Create(&post).Error; err != nil {
		return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
	}
	var out models.Post
	b.posts().First(&out, "posts.id = ?", post.ID)
	return c.Status(fiber.StatusCreated).JSON(out)
}

func (b *Backend) updatePost(c *fiber.Ctx) error {
	post, err := b.findPost(c)
	if post == nil {
		return err
	}
	if post.UserID != currentUser(c) {
		return respond(c, fiber.StatusForbidden, models.CodeForbidden, "Not your post")
	}
	var req models.PostUpdate
	if err := c.BodyParser(&req); err != nil {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "Invalid request body")
	}
	updates := map[string]any{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Content != "" {
		updates["content"] = req.Content
	}
	b.DB.Model(&models.Post{ID: post.ID}).Updates(updates)
	var out models.Post
	b.posts().First(&out, "posts.id = ?", post.ID)
	return c.JSON(out)
}

func (b *Backend) deletePost(c *fiber.Ctx) error {
	post, err := b.findPost(c)
	if post == nil {
		return err
	}
	if post.UserID != currentUser(c) {
		return respond(c, fiber.StatusForbidden, models.CodeForbidden, "Not your post")
	}
	b.DB.Delete(&models.Post{}, post.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

func (b *Backend) reportPost(c *fiber.Ctx) error {
	post, err := b.findPost(c)
	if post == nil {
		return err
	}
	if post.UserID == currentUser(c) {
		return respond(c, fiber.StatusForbidden, models.CodeForbidden, "Cannot report your own post")
	}
	return b.report(c, targetPost, post.ID, func(tx *gorm.DB) error {
		return tx.Delete(&models.Post{}, post.ID).Error
	})
}

// report files a report and removes the target once ReportThreshold is reached.
func (b *Backend) report(c *fiber.Ctx, targetType string, targetID uint, remove func(*gorm.DB) error) error {
	var req models.ReportRequest
	_ = c.BodyParser(&req)

	rep := models.Report{TargetType: targetType, TargetID: targetID, UserID: currentUser(c), Reason: req.Reason}
	if err := b.DB.Create(&rep).Error; err != nil {
		return respond(c, fiber.StatusForbidden, models.CodeForbidden, "Already reported")
	}
	var count int64
	b.DB.Model(&models.Report{}).Where("target_type = ? AND target_id = ?", targetType, targetID).Count(&count)
	if int(count) >= b.ReportThreshold {
		if err := remove(b.DB); err != nil {
			return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
		}
	}
	return c.Status(fiber.StatusCreated).JSON(rep)
}

func (b *Backend) listComments(c *fiber.Ctx) error {
	post, err := b.findPost(c)
	if post == nil {
		return err
	}
	items := []models.Comment{}
	b.DB.Preload("User").Where("post_id = ?", post.ID).Order("id ASC").Find(&items)
	return c.JSON(items)
}

func (b *Backend) createComment(c *fiber.Ctx) error {
	post, err := b.findPost(c)
	if post == nil {
		return err
	}
	var req models.CommentRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "content is required")
	}
	comment := models.Comment{Content: strings.TrimSpace(req.Content), PostID: post.ID, UserID: currentUser(c)}
	if err := b.DB.Create(&comment).Error; err != nil {
		return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
	}
	b.DB.Preload("User").First(&comment, comment.ID)
	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (b *Backend) findComment(c *fiber.Ctx) (*models.Comment, error) {
	post, err := b.findPost(c)
	if post == nil {
		return nil, err
	}
	id, err := c.ParamsInt("commentId")
	if err != nil {
		return nil, respond(c, fiber.StatusBadRequest, models.CodeValidation, "invalid comment id")
	}
	var comment models.Comment
	if err := b.DB.Where("post_id = ?", post.ID).First(&comment, id).Error; err != nil {
		return nil, respond(c, fiber.StatusNotFound, models.CodeNotFound, "Comment not found")
	}
	return &comment, nil
}

func (b *Backend) deleteComment(c *fiber.Ctx) error {
	comment, err := b.findComment(c)
	if comment == nil {
		return err
	}
	if comment.UserID != currentUser(c) {
		return respond(c, fiber.StatusForbidden, models.CodeForbidden, "Not your comment")
	}
	b.DB.Delete(&models.Comment{}, comment.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

func (b *Backend) reportComment(c *fiber.Ctx) error {
	comment, err := b.findComment(c)
	if comment == nil {
		return err
	}
	if comment.UserID == currentUser(c) {
		return respond(c, fiber.StatusForbidden, models.CodeForbidden, "Cannot report your own comment")
	}
	return b.report(c, targetComment, comment.ID, func(tx *gorm.DB) error {
		return tx.Delete(&models.Comment{}, comment.ID).Error
	})
}
