package tasks

import (
	"fmt"

	"github.com/Nexgear75/MacScribe/internal/models"
)

const coursePrompt = `You are an expert instructional designer. Your goal is to turn a raw transcription into a structured, clear, professional academic course.

Transcription to process:
%s

Strict writing rules:
1. Filtering: identify and ignore every passage unrelated to the teaching subject (small talk, administrative remarks, noise, personal digressions).
2. Headings: use Markdown headings (## and ###). NEVER number headings (no "1.", "I.", "A.", etc.).
3. Interactions: when a student question helps understanding, include it explicitly followed by the teacher's detailed answer.
4. Content: develop the concepts, explain technical terms and give the concrete examples mentioned in the text.
5. Style: professional and didactic. Do not use emoji.
6. Conclusion: always end with a section titled "Key takeaways".

Write the structured course now:`

const summaryPrompt = `You are an expert at synthesizing information. Your job is to write a sharp, faithful summary of the transcription below.

Transcription to process:
%s

Writing rules:
1. Title: give the summary a single explicit main title (no number).
2. Key points: use a bulleted list for the essential ideas and main conclusions of the transcription.
3. Synthesis: write a short conclusion that captures where the reasoning or lesson ends up.
4. Form: pure Markdown. Do not use emoji. Do not number sections.
5. Filtering: keep only what matters, remove redundancy and non-informative content.

Write the summary now:`

// buildPrompt returns the generation prompt for action over transcription.
func buildPrompt(action models.Action, transcription string) (string, error) {
	switch action {
	case models.ActionCreateCourse:
		return fmt.Sprintf(coursePrompt, transcription), nil
	case models.ActionCreateSummary:
		return fmt.Sprintf(summaryPrompt, transcription), nil
	default:
		return "", fmt.Errorf("no prompt for action %q", action)
	}
}
