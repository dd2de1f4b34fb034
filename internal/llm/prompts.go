package llm

import "fmt"

// JudgePrompt asks the model to rate an assistant response 1-10.
func JudgePrompt(content string) string {
	return fmt.Sprintf(`You are an AI response quality evaluator. Rate the quality of AI responses strictly from 1 to 10. Consider accuracy, helpfulness, clarity, and completeness. Respond with only a single number (integer or one decimal).

Rate this AI response:

%s

Score:`, content)
}

// StrictJudgePrompt is the fallback when the first reply did not parse.
func StrictJudgePrompt(content string) string {
	return fmt.Sprintf(`Output only a number 1-10. No extra text.

%s`, content)
}

// IssueTagPrompt asks for a one-word reason tag when a user reply shows
// negative sentiment toward an assistant response.
func IssueTagPrompt(aiResponse, userReply string) string {
	return fmt.Sprintf(`You are a post-hoc evaluator. Given an AI response and the user's follow-up reply, output a single short reason tag for why the user might be unhappy. Choose only one from: inaccuracy, unclear, insufficient detail, off-topic, tone, other. Respond with just the tag.

AI response:
%s

User reply:
%s

Reason tag:`, aiResponse, userReply)
}
