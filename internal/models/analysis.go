package models

import "time"

// Verdicts an analysis can reach.
const (
	VerdictSafe       = "safe"
	VerdictSuspicious = "suspicious"
	VerdictPhishing   = "phishing"
)

// Analysis kinds.
const (
	KindURL   = "url"
	KindImage = "image"
)

// AnalysisRecord is one QR or URL check.
type AnalysisRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id" yaml:"id"`
	UserID    uint      `gorm:"index" json:"user_id" yaml:"user_id"`
	Kind      string    `gorm:"not null" json:"kind" yaml:"kind"`
	Target    string    `gorm:"not null" json:"target" yaml:"target"`
	Verdict   string    `gorm:"not null" json:"verdict" yaml:"verdict"`
	Score     float64   `json:"score" yaml:"score"`
	Reasons   []string  `gorm:"serializer:json" json:"reasons" yaml:"reasons"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// URLAnalysisRequest is the body of POST /api/analysis/url.
type URLAnalysisRequest struct {
	URL string `json:"url"`
}

// ChatTurn is one message in a chat history.
type ChatTurn struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string     `json:"message"`
	History []ChatTurn `json:"history"`
}

// ChatResponse is returned by POST /api/chat and sent over /ws/chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}
