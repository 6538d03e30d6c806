package executor

// AutoWritePrompt is the bounded nudge issued when a cycle's response
// contains fenced code blocks but no write_file tool call appears in that
// cycle's history. Carried from the original step_executor.py's
// AUTO_WRITE_PROMPT intervention (not named explicitly in spec.md's prose,
// supplemented here per the spec's own hallucination-avoidance goal) — code
// generated but never persisted to disk is worse than no code at all,
// since the Verifier will later classify it as hallucinated.
const AutoWritePrompt = `You generated code in your previous response but did not call
write_file to persist it. Call write_file now to save every file you
produced before continuing. Do not just describe the files — write them.`
