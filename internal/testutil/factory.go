package testutil

import (
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"qrguard/internal/models"
)

// DefaultPassword satisfies the signup password rules.
const DefaultPassword = "CorrectHorse9!"

// CreateUser inserts a random user with DefaultPassword and returns it with a valid token.
func (b *Backend) CreateUser(t testing.TB) (*models.User, string) {
	t.Helper()
	username := fmt.Sprintf("%s%d", gofakeit.Username(), gofakeit.Number(100, 999))
	user, err := b.createUser(gofakeit.Email(), username, DefaultPassword, "")
	require.NoError(t, err)
	return user, b.Token(user, TokenTTL)
}

// CreatePost inserts a random post by author.
func (b *Backend) CreatePost(t testing.TB, author *models.User, overrides ...func(*models.Post)) *models.Post {
	t.Helper()
	post := &models.Post{
		Title:   gofakeit.Sentence(5),
		Content: gofakeit.Paragraph(1, 2, 8, "\n"),
		UserID:  author.ID,
	}
	for _, o := range overrides {
		o(post)
	}
	require.NoError(t, b.DB.Create(post).Error)
	return post
}

// CreateComment inserts a random comment by author on post.
func (b *Backend) CreateComment(t testing.TB, post *models.Post, author *models.User) *models.Comment {
	t.Helper()
	comment := &models.Comment{Content: gofakeit.Sentence(8), PostID: post.ID, UserID: author.ID}
	require.NoError(t, b.DB.Create(comment).Error)
	return comment
}
