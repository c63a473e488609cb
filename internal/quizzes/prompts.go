package quizzes

const systemPrompt = `You write fair, unambiguous quiz questions for students. Respond with JSON only.`

const promptTemplate = `Write a %s-level quiz of %d questions about %q.

Return an object of the form:
{"title":"...","questions":[{"type":"multiple-choice|true-false|short-answer|fill-blank|multi-select|essay","question":"...","options":["..."],"correctAnswer":"... or [\"...\"]","points":1,"tags":["topic"],"explanation":"..."}]}

Rules:
- multiple-choice and multi-select questions list their options; the answer repeats option text exactly.
- multi-select answers are arrays.
- Tag each question with one or two short topic names.
%s
Summary:
%s

Key concepts:
%s`

var difficultyGuidance = map[string]string{
	"beginner":     "- Focus on definitions and recall of the key concepts.\n",
	"intermediate": "- Mix recall with application of concepts to short scenarios.\n",
	"advanced":     "- Emphasize analysis, comparison and multi-step reasoning; include at least one essay question.\n",
}
