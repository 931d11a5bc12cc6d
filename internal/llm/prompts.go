package llm

import (
	"fmt"
	"strings"
)

const (
	questionSourceLimit = 3000
	hintContextLimit    = 500
)

const (
	questionSystemPrompt    = "You are a helpful assistant designed to create study questions. Respond ONLY with the requested JSON object."
	hintSystemPrompt        = "You are a helpful study assistant providing hints for questions without revealing the answer."
	explanationSystemPrompt = "You are an educational assistant explaining the reasoning behind answers."
	cssSystemPrompt         = "You are a CSS generator. Output ONLY valid CSS code based on the user's theme description. NO MARKDOWN."
	gradeSystemPrompt       = `You are an impartial grader evaluating student answers. Respond ONLY with a JSON object like {"score": float_value}.`
)

func buildQuestionSetPrompt(text string, count int, types []string) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Based on the following text, generate %d study questions.\n", count))
	b.WriteString(fmt.Sprintf("Include a mix of the following types ONLY: %s. DO NOT use any other type names like \"text\".\n\n", strings.Join(types, ", ")))

	b.WriteString(`Format the output STRICTLY as a single JSON object containing a single key "questions".
The value of "questions" should be a JSON array.
Each element in the array MUST be a JSON object representing one question with the following keys:
- "type": A string, MUST be EXACTLY one of: "multiple_choice", "fill_in_the_blank", or "free_response".
- "text": A string containing the question text. For "fill_in_the_blank", include '___' as the placeholder.
- "options" (ONLY for "multiple_choice"): An array of strings representing the choices.
- "answer":
    - For "multiple_choice": The 0-based index (integer) or the exact string content of the correct option. Prefer the index.
    - For "fill_in_the_blank": A string representing the correct word(s) for the blank.
    - For "free_response": A brief suggested answer or key points (string). Use an empty string "" if not applicable.

Example formats MUST be followed precisely:
{ "type": "multiple_choice", "text": "...", "options": ["...", "..."], "answer": 0 }
{ "type": "fill_in_the_blank", "text": "... ___ ...", "answer": "..." }
{ "type": "free_response", "text": "...", "answer": "..." }

Ensure the entire output is ONLY the JSON object, starting with { and ending with }. NO extra text, NO explanations, NO markdown.
`)

	b.WriteString("\nSource Text:\n---\n")
	b.WriteString(truncateRunes(text, questionSourceLimit))
	b.WriteString("\n---\n")

	return b.String()
}

func buildHintPrompt(questionText, contextText string) string {
	var b strings.Builder

	b.WriteString("A student needs a hint for the following study question.\n")
	b.WriteString("Provide a helpful clue or piece of related information that guides them towards the answer, but **DO NOT give away the final answer directly**.\n")
	b.WriteString("The hint should make them think or recall the relevant concept. Keep the hint concise (1-2 sentences).\n\n")
	b.WriteString(fmt.Sprintf("Question:\n%q\n", questionText))

	if contextText != "" {
		b.WriteString("\nRelevant context from the source material (optional):\n---\n")
		b.WriteString(truncateRunes(contextText, hintContextLimit))
		b.WriteString("\n---\n")
	}
	b.WriteString("\nHint:")

	return b.String()
}

func buildExplanationPrompt(questionText, correctDisplay string, userAnswer *string, isCorrect *bool) string {
	var b strings.Builder

	b.WriteString("Explain briefly (1-3 sentences) why the answer to the following question is correct.\n")
	b.WriteString("Focus on the core concept being tested.\n\n")
	b.WriteString(fmt.Sprintf("Question:\n%q\n\n", questionText))
	b.WriteString(fmt.Sprintf("Correct Answer:\n%q\n", correctDisplay))

	if userAnswer != nil && isCorrect != nil {
		status := "incorrectly"
		if *isCorrect {
			status = "correctly"
		}
		b.WriteString(fmt.Sprintf("\nThe student answered %q (%s). ", *userAnswer, status))
		if *isCorrect {
			b.WriteString("Reinforce why their understanding is correct.")
		} else {
			b.WriteString("Briefly clarify the misunderstanding if possible, based on the correct answer.")
		}
	}
	b.WriteString("\n\nExplanation:")

	return b.String()
}

func buildCSSPrompt(description string) string {
	return fmt.Sprintf(`Generate CSS code ONLY to style a simple web application based on the following theme description.
Target standard HTML elements and common utility classes (body, nav, button, .btn, .btn-primary, .card, .alert, h1, p, a).
Do NOT include any explanations or comments outside CSS comments (/* */).
ABSOLUTELY NO MARKDOWN formatting like `+"```css or ```"+`.
The output must be PURE CSS code ONLY, suitable for direct embedding in a <style> tag.

Theme Description: %q

CSS Code:`, description)
}

func buildGradePrompt(questionText, suggested, userAnswer string) string {
	return fmt.Sprintf(`Evaluate the student's answer to the following question based on the provided suggested answer.
Determine how well the student's answer captures the key points or concepts of the suggested answer.
Respond ONLY with a JSON object containing a single key "score", where the value is a floating-point number between 0.0 (completely incorrect/irrelevant) and 1.0 (perfectly correct/captures all key points).

Question:
%q

Suggested Answer:
%q

Student's Answer:
%q

JSON Response:`, questionText, suggested, userAnswer)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
