// Package postprocess removes common LLM artifacts from model output.
//
// Every chunk, merge, and refine response passes through Clean before it is
// deduplicated or shown to the user.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean strips, in order: reasoning blocks, a code fence wrapping the whole
// answer, a leading "Here is the summary:" style preamble, and outer quotes.
// Line endings are normalized to \n and the result is trimmed.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = removeThinkingBlocks(text)
	text = unwrapFence(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// RE2 has no backreferences, so each tag pair is spelled out.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// An opening tag with no closing tag: the model was cut off mid-thought.
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

var fenceRe = regexp.MustCompile("(?s)^```(?:markdown|md|text)?[ \t]*\n(.*?)\n?```$")

func unwrapFence(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

const outputNouns = `summary|simplified version|simplified text|simplification|translation|translated text|` +
	`proofread text|proofread version|corrected text|corrected version|flashcards|template|` +
	`combined result|merged result|final result|result|cleaned markdown|markdown|text`

// echoPatterns are anchored at the start and require a colon, so ordinary
// sentences that merely start with "Here is" survive.
var echoPatterns = []*regexp.Regexp{
	// "[Sure,] here's [the|a|your] [adjectives] summary [of the text]:"
	regexp.MustCompile(`(?i)^(?:(?:certainly|sure|of course|okay|ok)[,.!]?\s+)?here(?:'s| is| are)(?: the| a| an| your)?(?: [\w-]+){0,2}? (?:` +
		outputNouns + `)(?: of (?:the|this|your) (?:text|passage|part|chunk|content|page|input))?\s*:`),
	// "[The] [refined|final] translation:"
	regexp.MustCompile(`(?i)^(?:the )?(?:refined |polished |final |combined )?(?:translation|translated text|corrected text|simplified version|result)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

var quotePairs = [][2]rune{
	{'"', '"'},
	{'\'', '\''},
	{'«', '»'},
	{'“', '”'},
	{'‘', '’'},
}

// removeQuoteWrapping strips one matching pair of outer quotes when they
// enclose the entire text.
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	for _, p := range quotePairs {
		if runes[0] == p[0] && runes[n-1] == p[1] {
			return strings.TrimSpace(string(runes[1 : n-1]))
		}
	}
	return text
}
