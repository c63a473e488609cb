package qa

import "github.com/tmc/langchaingo/prompts"

const systemPrompt = `You are a patient tutor. Answer the student's question using only the
provided excerpts from their study material. If the excerpts do not contain
the answer, say so plainly instead of guessing.`

var answerPrompt = prompts.NewPromptTemplate(`Study material: {{.title}}

Excerpts:
{{.context}}

Question: {{.question}}

Answer in a few short paragraphs.`, []string{"title", "context", "question"})
