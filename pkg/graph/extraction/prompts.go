package extraction

import "fmt"

const systemPrompt = `You help students turn their notes into a concept map.
Extract only the concepts that the notes explicitly mention and answer with JSON that follows the response schema.

Rules:
- Use the notes as the only source for deciding which nodes exist. Every title must be a term or concept that appears in the notes.
- Each important concept gets its own node. Leave out minor concepts, concepts contained in a larger one, and concepts mentioned only in passing.
- Titles are short, self-contained and correctly capitalised, for example "Gravity", "Orbits", "Photosynthesis", or people such as "Newton".
- Descriptions summarise what the notes say about the concept and how it relates to other concepts, plus a little well-known background on the topic.
- Keywords are a short list of terms from the notes and the general topic that characterise the concept.`

func userPrompt(markdown string) string {
	return fmt.Sprintf("Extract the concept nodes from these markdown notes.\n\n## NOTES:\n%s\n", markdown)
}
