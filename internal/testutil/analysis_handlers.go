package testutil

import (
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"qrguard/internal/models"
)

var lureWords = []string{"login", "verify", "account", "secure", "update", "wallet", "bank", "pay"}

// Classify is the fake backend's phishing heuristic.
func Classify(raw string) (verdict string, score float64, reasons []string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return models.VerdictSuspicious, 0.5, []string{"unparseable URL"}
	}
	if u.Scheme != "https" {
		score += 0.3
		reasons = append(reasons, "not served over https")
	}
	if net.ParseIP(u.Hostname()) != nil {
		score += 0.4
		reasons = append(reasons, "raw IP address host")
	}
	if strings.Contains(u.Hostname(), "xn--") {
		score += 0.3
		reasons = append(reasons, "punycode host")
	}
	if u.User != nil {
		score += 0.3
		reasons = append(reasons, "credentials in URL")
	}
	lower := strings.ToLower(u.Host + u.Path)
	for _, w := range lureWords {
		if strings.Contains(lower, w) {
			score += 0.2
			reasons = append(reasons, "lure keyword: "+w)
		}
	}
	score = min(score, 1)
	switch {
	case score >= 0.7:
		verdict = models.VerdictPhishing
	case score >= 0.3:
		verdict = models.VerdictSuspicious
	default:
		verdict = models.VerdictSafe
	}
	if reasons == nil {
		reasons = []string{}
	}
	return verdict, score, reasons
}

func (b *Backend) analyzeURL(c *fiber.Ctx) error {
	var req models.URLAnalysisRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "url is required")
	}
	verdict, score, reasons := Classify(req.URL)
	rec := models.AnalysisRecord{
		UserID:  currentUser(c),
		Kind:    models.KindURL,
		Target:  req.URL,
		Verdict: verdict,
		Score:   score,
		Reasons: reasons,
	}
	if err := b.DB.Create(&rec).Error; err != nil {
		return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (b *Backend) analyzeImage(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "file is required")
	}
	if ct := fh.Header.Get("Content-Type"); ct != "image/png" {
		return respond(c, fiber.StatusBadRequest, models.CodeValidation, "image must be PNG")
	}
	rec := models.AnalysisRecord{
		UserID:  currentUser(c),
		Kind:    models.KindImage,
		Target:  filepath.Base(fh.Filename),
		Verdict: models.VerdictSafe,
		Reasons: []string{"no QR payload decoded"},
	}
	if err := b.DB.Create(&rec).Error; err != nil {
		return respond(c, fiber.StatusInternalServerError, models.CodeInternal, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (b *Backend) history(c *fiber.Ctx) error {
	page, size := pagination(c)
	q := b.DB.Model(&models.AnalysisRecord{}).Where("user_id = ?", currentUser(c))
	var total int64
	q.Count(&total)
	items := []models.AnalysisRecord{}
	q.Order("id DESC").Offset((page - 1) * size).Limit(size).Find(&items)
	return c.JSON(models.Page[models.AnalysisRecord]{Items: items, Total: total, Page: page, Size: size})
}

func (b *Backend) ownedAnalysis(c *fiber.Ctx) (*models.AnalysisRecord, error) {
	id, err := c.ParamsInt("id")
	if err != nil {
		return nil, respond(c, fiber.StatusBadRequest, models.CodeValidation, "invalid id")
	}
	var rec models.AnalysisRecord
	if err := b.DB.First(&rec, id).Error; err != nil {
		return nil, respond(c, fiber.StatusNotFound, models.CodeNotFound, "Analysis not found")
	}
	if rec.UserID != currentUser(c) {
		return nil, respond(c, fiber.StatusForbidden, models.CodeForbidden, "Not your analysis")
	}
	return &rec, nil
}

func (b *Backend) getAnalysis(c *fiber.Ctx) error {
	rec, err := b.ownedAnalysis(c)
	if rec == nil {
		return err
	}
	return c.JSON(rec)
}

func (b *Backend) deleteAnalysis(c *fiber.Ctx) error {
	rec, err := b.ownedAnalysis(c)
	if rec == nil {
		return err
	}
	b.DB.Delete(rec)
	return c.SendStatus(fiber.StatusNoContent)
}

func pagination(c *fiber.Ctx) (page, size int) {
	page = c.QueryInt("page", 1)
	size = c.QueryInt("size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}
