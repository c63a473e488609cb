package flashcards

const systemPrompt = `You write concise study flashcards. Respond with JSON only.`

const promptTemplate = `Create %d flashcards for %q.

Return an object of the form:
{"flashcards":[{"front":"question or cue","back":"answer","type":"basic|cloze|definition","difficulty":"easy|medium|hard"}]}

Cover the key concepts first. Keep each back under 60 words.

Summary:
%s

Key concepts:
%s

Source excerpt:
%s`
