package categorizer

const systemPrompt = `You organize a user's library of AI prompts.

For every prompt you receive, decide:
- category: one of Debugging, Testing, Code Review, Refactoring, Documentation, DevOps, Data Analysis, Code Generation, Writing, Research, Design, General
- tags: 1-5 lowercase tags naming technologies or topics (python, react, sql, email, ...)
- suggestedFolder: a short lowercase folder slug, e.g. "debugging" or "writing/emails"
- suggestedName: a descriptive name of at most 6 words
- complexity: simple | moderate | complex

Return ONLY a JSON array with one object per prompt, in input order, each with
the fields index, category, tags, suggestedFolder, suggestedName, complexity.
No markdown fencing or explanation.`

const userPromptHeader = "Categorize these %d prompts:\n"
