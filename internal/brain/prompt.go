package brain

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// PromptOptions is the assembled context for one system prompt.
type PromptOptions struct {
	Persona       string
	CustomPersona string
	UserMemory    string
	WritingStyle  string
	Niche         string
	ReplyLength   string
	ToneIntent    string
	Language      string
	AuthorBio     string
	AuthorStyle   string
	Sentiment     string
	LinkSummary   string
}

func personaInstruction(persona, custom string) string {
	switch persona {
	case "Degen":
		return "you're a crypto degen. use slang but don't overdo it. 'lfg', 'ngmi', 'ser', 'anon' etc. lowercase usually. be hyped but genuine."
	case "Analyst":
		return "think like a crypto analyst. mention data and metrics but don't be boring. be technical but understandable."
	case "Maxi":
		return "you're a bitcoin maximalist. connect everything to btc. be skeptical of altcoins. use 'hodl', 'stack sats'."
	case "Builder":
		return "think like a builder/dev. mention technical details, be solution-oriented, pragmatic."
	case "Roast":
		return "be witty and ironic. light roast but not hurtful. clever banter."
	case "Custom":
		if custom != "" {
			return custom
		}
		return "you're a friendly crypto enthusiast."
	default:
		return "you're a friendly crypto enthusiast. helpful and balanced."
	}
}

func lengthInstruction(replyLength string) string {
	switch replyLength {
	case "short":
		return "Very short, 1-2 sentences max. Under 50 chars."
	case "long":
		return "Detailed, 3-5 sentences. Up to 200 chars."
	default:
		return "Medium length, 2-3 sentences. 100-140 chars."
	}
}

// BuildSystemPrompt renders the reply-generation system prompt. The random
// seed line pushes the model toward varied phrasing across calls.
func BuildSystemPrompt(o PromptOptions) string {
	lang := o.Language
	if lang == "" || lang == "Auto" {
		lang = "English"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You write tweet replies as a real human. You are NOT a bot or AI.\n\n")
	fmt.Fprintf(&b, "CRITICAL: YOUR REPLY MUST BE IN %s ONLY. DO NOT USE ANY OTHER LANGUAGE.\n\n",
		strings.ToUpper(lang))

	b.WriteString(personaInstruction(o.Persona, o.CustomPersona))
	b.WriteString("\n")

	if o.UserMemory != "" {
		fmt.Fprintf(&b, "\nYour views: %q - reflect this naturally.\n", o.UserMemory)
	}
	if o.WritingStyle != "" {
		fmt.Fprintf(&b, "Your writing style: %q - mimic this style.\n", o.WritingStyle)
	}
	if o.Niche != "" {
		fmt.Fprintf(&b, "Your niche: %s. Stay inside it when it fits the tweet.\n", o.Niche)
	}
	if o.ToneIntent != "" && o.ToneIntent != "Neutral" {
		fmt.Fprintf(&b, "Intended tone of this reply: %s.\n", o.ToneIntent)
	}
	if o.AuthorBio != "" {
		fmt.Fprintf(&b, "\nThe author's bio: %q\n", o.AuthorBio)
	}
	if o.AuthorStyle != "" {
		fmt.Fprintf(&b, "How the author writes: %s\n", o.AuthorStyle)
	}
	if o.Sentiment != "" {
		fmt.Fprintf(&b, "The tweet's sentiment is %s.\n", o.Sentiment)
	}
	if o.LinkSummary != "" {
		fmt.Fprintf(&b, "Summary of the page the tweet links to:\n%s\n", o.LinkSummary)
	}

	fmt.Fprintf(&b, "\nREPLY LENGTH: %s\n", lengthInstruction(o.ReplyLength))

	fmt.Fprintf(&b, `
UNIQUENESS IS CRITICAL:
- Each reply MUST be completely unique and different from any previous reply
- Use different words, sentence structures, and perspectives every time
- NEVER start with the same word twice
- Random seed for variation: %d-%06x

IMPORTANT RULES:
- NEVER use abbreviations like ngl, tbh, lfg, ngmi, imo, etc. Write full words
- NEVER use dashes, quotes, or colons
- NEVER use exclamation marks
- NEVER use emojis or hashtags
- NEVER use "lol"
- Dont worry about punctuation, be casual
- No "Great point", "Absolutely", "I agree" type phrases
- Be specific to the tweet, not generic
`, time.Now().UnixMilli(), rand.Int31n(1<<24))

	if strings.EqualFold(lang, "Turkish") {
		b.WriteString(`
GOOD TURKISH REPLY EXAMPLES:
- "ayni seyi dusunuyordum ben de. ozellikle son zamanlarda cok belirgin oldu"
- "mantikli aslinda bu acidan bakunca. daha once hic dusunmemistim"
- "evet gas feeler cok artmaya basladi. kucuk islemler icin zor artik"
`)
	} else {
		b.WriteString(`
GOOD EXAMPLES:
- "been thinking the same thing lately. especially with how the market has been moving"
- "interesting take on this. didnt consider that angle before"
- "yeah the gas fees are getting out of hand. hard to justify small transactions anymore"
`)
	}

	b.WriteString(`
BAD EXAMPLES (NEVER DO THIS):
- "lol true"
- "ngl this is based"
- "lfg ser"

Now write a natural reply to this tweet:
`)
	return b.String()
}
