// Package cache implements the fingerprint-keyed request cache (§4.2):
// the hasher, the pluggable backend interface, and the cache facade with
// cacheability rules, invalidation, and telemetry.
package cache

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// KeyStrategy selects one of the four fingerprint algorithms in §4.2.
type KeyStrategy string

const (
	StrategyDefault      KeyStrategy = "default"
	StrategySemantic     KeyStrategy = "semantic"
	StrategyHierarchical KeyStrategy = "hierarchical"
	StrategyContentBased KeyStrategy = "content_based"
)

// Message is the normalized {role, content} projection used by every
// strategy; non-deterministic fields (stream, user, timestamp) never
// reach this struct.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params is the normalized request shape the hasher keys on.
type Params struct {
	Route       string
	Method      string
	Model       string
	Provider    string
	RequestType string // chat|embedding|tts|transcription|completion
	Messages    []Message
	Core        map[string]any // temperature, max_tokens, top_p, penalties, n, stop, encoding_format, dimensions
}

// Fingerprint computes a cache key for params under strategy, truncated to
// hexLen hex characters where the strategy allows truncation.
func Fingerprint(strategy KeyStrategy, p Params, hexLen int) string {
	switch strategy {
	case StrategySemantic:
		return semanticKey(p)
	case StrategyHierarchical:
		return hierarchicalKey(p)
	case StrategyContentBased:
		return contentBasedKey(p)
	default:
		return defaultKey(p, hexLen)
	}
}

func defaultKey(p Params, hexLen int) string {
	payload := struct {
		Model    string
		Provider string
		Messages []Message
		Core     map[string]any
	}{p.Model, p.Provider, p.Messages, p.Core}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	h := hex.EncodeToString(sum[:])
	if hexLen > 0 && hexLen < len(h) {
		return h[:hexLen]
	}
	return h
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func semanticKey(p Params) string {
	var sb strings.Builder
	for _, m := range p.Messages {
		sb.WriteString(m.Role)
		sb.WriteByte(':')
		sb.WriteString(normalizeText(m.Content))
		sb.WriteByte('|')
	}
	coreKeys := make([]string, 0, len(p.Core))
	for k := range p.Core {
		coreKeys = append(coreKeys, k)
	}
	sort.Strings(coreKeys)
	for _, k := range coreKeys {
		fmt.Fprintf(&sb, "%s=%v;", k, p.Core[k])
	}
	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func hierarchicalKey(p Params) string {
	contentHash := contentBasedKey(p)
	reqType := p.RequestType
	if reqType == "" {
		reqType = "chat"
	}
	return fmt.Sprintf("llm_gateway:%s:%s:%s:%s", p.Provider, p.Model, reqType, contentHash)
}

func contentBasedKey(p Params) string {
	parts := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		sum := md5.Sum([]byte(m.Content))
		parts = append(parts, fmt.Sprintf("%s:%s", m.Role, hex.EncodeToString(sum[:])[:8]))
	}
	joined := strings.Join(parts, ",")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
