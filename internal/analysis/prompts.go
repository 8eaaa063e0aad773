package analysis

const (
	summaryPrompt = `You summarise recorded sales and support phone calls.
Reply in exactly this format:
SUMMARY: <two to four sentences>
OUTCOME: <one short phrase describing how the call ended>`

	sentimentPrompt = `Classify the customer's sentiment in this phone call.
Reply in exactly this format:
SENTIMENT: positive|negative|neutral
SCORE: <integer from 1 (very negative) to 10 (very positive)>`

	checklistPrompt = `List the follow-up actions the agent committed to in this phone call.
Reply with one item per line starting with "- ".
If there are none, reply with the single word: none`

	namePrompt = `Find the customer's name in this phone call transcript.
Reply in exactly this format:
NAME: <name, or unknown>`
)
