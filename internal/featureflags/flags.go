// Package featureflags gates optional client features (chat widget, image
// analysis) from a FEATURE_FLAGS list such as "chat_widget=on,image_analysis=25%".
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Known flags.
const (
	ChatWidget    = "chat_widget"
	ImageAnalysis = "image_analysis"
	ChatWebSocket = "chat_websocket"
)

type rule struct {
	raw     string
	percent int // 0..100; on is 100, off is 0
	valid   bool
}

// Set holds parsed flag rules. A nil Set has every flag off.
type Set struct {
	rules map[string]rule
}

// Parse builds a Set from a comma separated key=value list. Malformed pairs are skipped.
func Parse(raw string) *Set {
	rules := make(map[string]rule)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		rules[key] = parseRule(value)
	}
	return &Set{rules: rules}
}

func parseRule(value string) rule {
	r := rule{raw: value, valid: true}
	switch value {
	case "on", "true", "1":
		r.percent = 100
		return r
	case "off", "false", "0":
		return r
	}
	pct, ok := strings.CutSuffix(value, "%")
	if !ok {
		r.valid = false
		return r
	}
	n, err := strconv.Atoi(pct)
	if err != nil {
		r.valid = false
		return r
	}
	r.percent = min(max(n, 0), 100)
	return r
}

// Enabled reports whether name is on for userID. Partial rollouts are
// deterministic per user and always off for the anonymous user ("").
func (s *Set) Enabled(name, userID string) bool {
	if s == nil {
		return false
	}
	r, ok := s.rules[normalize(name)]
	if !ok || !r.valid {
		return false
	}
	switch r.percent {
	case 0:
		return false
	case 100:
		return true
	}
	if userID == "" {
		return false
	}
	return bucket(name, userID) < r.percent
}

// Names returns the configured flag names, sorted.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.rules))
	for n := range s.rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Raw returns the configured value of name.
func (s *Set) Raw(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	r, ok := s.rules[normalize(name)]
	return r.raw, ok
}

// Snapshot evaluates every configured flag for userID.
func (s *Set) Snapshot(userID string) map[string]bool {
	out := make(map[string]bool)
	for _, n := range s.Names() {
		out[n] = s.Enabled(n, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID))
	return int(h.Sum32() % 100)
}
