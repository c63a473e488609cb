package summarization

const summarySystemPrompt = `You are a study assistant. Write clear, accurate summaries of lecture
transcripts and documents for students preparing for exams. Use plain prose
and short paragraphs. Do not invent facts that are not in the material.`

const summaryPromptTemplate = `Summarize the following study material titled %q.
Cover the main ideas in the order they are introduced, keep definitions
precise, and finish with one sentence on why the topic matters.

Material:
%s`

const conceptSystemPrompt = `You extract key concepts from study material. Respond with JSON only.`

const conceptPromptTemplate = `List the key concepts of the study material titled %q.
Return a JSON object of the form {"concepts":[{"term":"...","definition":"..."}]}.
Use an empty list when the material has no distinct concepts.

Material:
%s`
