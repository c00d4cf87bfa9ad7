package research

import (
	"fmt"
	"strings"
)

const routerSystemPrompt = `You classify a user request for a research assistant.
Routes:
- "direct": answerable from general knowledge, no web evidence needed
- "web": needs a quick round of web searches
- "deep": needs multi-query research with evaluation and revision
- "agent": needs interactive tool use (browsing, code execution)
- "clarify": too ambiguous to route

Respond with JSON: {"route": "...", "confidence": 0.0-1.0, "reasoning": "..."}`

const clarifierSystemPrompt = `You decide whether a research request needs clarification before work starts.
Respond with JSON:
{"need_clarification": true|false, "question": "the single question to ask, empty if none", "verification": "what the answer would disambiguate"}`

const plannerSystemPrompt = `You are a research planner. Decompose the request into 3 to 7 focused web search queries.
Cover distinct facets; avoid near-duplicates.
Respond with JSON: {"queries": ["...", "..."], "reasoning": "..."}`

const directSystemPrompt = `You are a precise assistant. Answer the question directly and concisely from general knowledge.`

const agentSystemPrompt = `You are a research agent with tools. Use them as needed to complete the task, then give a final answer.`

const writerSystemPrompt = `You are a research writer. Using ONLY the evidence provided, write a structured report that answers the request.
Cite evidence inline with its bracketed tag, e.g. [S1-2]. Keep every citation tag exactly as given.
End with a "Sources" section listing each cited tag and URL.`

const evaluatorSystemPrompt = `You grade a research report against its request and evidence.
Dimensions, each 0.0-1.0: coverage, accuracy, freshness, coherence.
Verdict: "pass", "revise", or "incomplete".
Respond with JSON:
{"verdict": "...", "dimensions": {"coverage": 0.0, "accuracy": 0.0, "freshness": 0.0, "coherence": 0.0}, "feedback": "...", "missing_topics": ["..."], "suggested_queries": ["..."]}`

const reviserSystemPrompt = `You revise a research report per the evaluator's feedback.
Preserve all citation tags like [S1-2] that remain supported. Return only the revised report.`

const refineSystemPrompt = `Given a research request and evaluator feedback, propose up to 3 follow-up web search queries that close the gaps.
Respond with JSON: {"queries": ["..."]}`

func writerUserPrompt(input, evidenceBlock string) string {
	var sb strings.Builder
	sb.WriteString("Request:\n")
	sb.WriteString(input)
	sb.WriteString("\n\nEvidence:\n")
	sb.WriteString(evidenceBlock)
	return sb.String()
}

func evaluatorUserPrompt(input, draft string, claimSummary string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request:\n%s\n\nReport:\n%s\n", input, draft)
	if claimSummary != "" {
		fmt.Fprintf(&sb, "\nClaim verification:\n%s\n", claimSummary)
	}
	return sb.String()
}

func reviserUserPrompt(input, draft, feedback string) string {
	return fmt.Sprintf("Request:\n%s\n\nCurrent report:\n%s\n\nEvaluator feedback:\n%s", input, draft, feedback)
}
