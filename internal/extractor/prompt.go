package extractor

import (
	"fmt"
	"time"
)

const systemInstruction = `You extract structured information about a food pantry or food bank from ` +
	`scraped page content. Respond with a single JSON object matching the given schema and nothing else. ` +
	`Never invent facts not present in the content; leave a field at its default when the content doesn't say.`

const promptTemplate = `Today's date is %s.

Page content (markdown, possibly concatenated across multiple pages of the same site, separated by "---" source-URL headers):

%s

Respond with a JSON object with exactly these fields:
- status: one of "OPEN", "CLOSED", "WAITLIST", "UNKNOWN"
- hours_notes: a short human-readable description of operating hours, or "" if not stated
- hours_today: hours for today's specific day of week if stated, or "" otherwise
- eligibility_rules: array of strings describing who can use this pantry; empty array if not stated
- is_id_required: true or false
- residency_req: a short description of any residency requirement, or "" if none stated
- special_notes: any other notable detail (appointment required, delivery available, etc.), or ""
- confidence: integer 1-10, your confidence that the above fields are accurate and current`

func buildPrompt(markdown string, today time.Time) string {
	return fmt.Sprintf(promptTemplate, today.Format("2006-01-02"), markdown)
}

// responseSchema is the JSON Schema passed to the LLM provider. Gemini
// enforces this natively via ResponseSchema; the Claude path ignores it and
// relies on the field list spelled out in promptTemplate.
var responseSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"status": map[string]interface{}{
			"type": "string",
			"enum": []string{"OPEN", "CLOSED", "WAITLIST", "UNKNOWN"},
		},
		"hours_notes":  map[string]interface{}{"type": "string"},
		"hours_today":  map[string]interface{}{"type": "string"},
		"eligibility_rules": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"is_id_required": map[string]interface{}{"type": "boolean"},
		"residency_req":  map[string]interface{}{"type": "string"},
		"special_notes":  map[string]interface{}{"type": "string"},
		"confidence":     map[string]interface{}{"type": "integer"},
	},
	"required": []string{"status", "eligibility_rules", "is_id_required", "confidence"},
}
