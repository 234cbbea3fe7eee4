package ai

import "strings"

type Message struct {
	Role    string
	Content string
}

const systemPrompt = `You are NeuroNote, an AI clinical assistant specializing in summarizing EHRs (Electronic Health Records).

Your role:
- Summarize patient data into clear, concise, and medically relevant bullet points.
- Include the sections Patient Overview, Diagnosis, Medications, Allergies, Vital Signs, Key Findings/Lab Results, Follow-up Recommendations.
- Use markdown-style bullets ("- "), short, readable, clinically accurate.
- Write "Not documented" for a section the record does not cover.
- Do NOT answer anything unrelated to EHRs.`

// BuildMessages frames the record text as a system + user chat exchange.
func BuildMessages(text string) []Message {
	var b strings.Builder
	b.WriteString("EHR DATA:\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\nGenerate bullet point summary below:")

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}
