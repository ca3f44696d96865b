// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Anthonyvijay10/GrealthAI/internal/ollama"
)

// =============================================================================
// PROMPTS
// =============================================================================

const chatInstruction = `You are a healthcare assistant. Your role is to:
1. Provide general health information and guidance only.
2. Help users understand common medical terms, conditions, and health-related documents.
3. Suggest when to seek professional medical help.
4. Offer wellness and preventive health advice.
5. Answer in the language the user writes in.
6. Never write or return programming code.

Always end with a short disclaimer that you are not a replacement for professional medical advice.`

const insightInstruction = `You are an analytical health insight generator. You analyze health
conversations, identify key patterns and return concise, actionable insights.`

// maxDocumentChars bounds the document text placed in an analysis prompt.
const maxDocumentChars = 3000

func insightPrompt(conversation []string, language string) string {
	return fmt.Sprintf(`Analyze this health conversation and return a JSON object with exactly 2 insights.
Return ONLY this JSON, with the insights translated to %s:

{"insights": [
  {"type": "recommendation", "content": "specific actionable advice", "severity": "low"},
  {"type": "trend", "content": "observed pattern", "severity": "low"}
]}

Conversation to analyze:
%s`, language, strings.Join(conversation, "\n"))
}

func documentPrompt(text string) string {
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars] + "..."
	}
	return `I've uploaded a document. Please:
1. Identify what type of medical document this is
2. Summarize key patient information and findings
3. Explain any medical terms in simple language
4. Highlight any areas that might need attention

Document content:
` + text
}

// =============================================================================
// INSIGHTS
// =============================================================================

// Insight is one structured observation sent with the done line.
type Insight struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Severity string `json:"severity"`
}

// FallbackInsights are sent when the model cannot produce usable insights.
func FallbackInsights() []Insight {
	return []Insight{
		{
			Type:     "recommendation",
			Content:  "Consider keeping track of your health questions and concerns in a journal.",
			Severity: "low",
		},
		{
			Type:     "trend",
			Content:  "Your interest in health information shows proactive health management.",
			Severity: "low",
		},
	}
}

// ParseInsights extracts the insights array from a model reply that may
// wrap the JSON object in prose or code fences.
func ParseInsights(reply string) ([]Insight, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var payload struct {
		Insights []Insight `json:"insights"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}

	out := payload.Insights[:0]
	for _, in := range payload.Insights {
		if strings.TrimSpace(in.Content) != "" {
			out = append(out, in)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("reply has no insights")
	}
	return out, nil
}

// generateInsights asks the model for insights on the recent turns,
// falling back to FallbackInsights on any failure.
func (s *Server) generateInsights(ctx context.Context, conversation []string, language string) []Insight {
	resp, err := s.ollama.Chat(ctx, s.cfg.Model, []ollama.Message{
		ollama.NewSystemMessage(insightInstruction),
		ollama.NewUserMessage(insightPrompt(conversation, language)),
	})
	if err != nil {
		s.logger.Printf("INSIGHTS_FAILED | error=%v", err)
		return FallbackInsights()
	}
	insights, err := ParseInsights(resp.Message.Content)
	if err != nil {
		s.logger.Printf("INSIGHTS_FALLBACK | reason=%v", err)
		return FallbackInsights()
	}
	return insights
}
