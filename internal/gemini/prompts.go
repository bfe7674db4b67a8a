package gemini

import "google.golang.org/genai"

// ClassifierSystemInstruction is sent with every classification request.
// The format string expects the comma separated intent taxonomy.
const ClassifierSystemInstruction = `You classify messages sent in Brazilian Portuguese to a nutrition tracking assistant.

Pick exactly one intent from this list: %s.

## INTENTS
- greeting: hello, good morning, and similar openers with no other request
- help: the user asks what the assistant can do or how to use it
- log_meal: the user reports food or drink they ate
- log_exercise: the user reports physical activity they did
- confirm: a short yes/ok answer to a pending confirmation
- reject: a short no/cancel answer to a pending confirmation
- daily_summary: asks for today's totals
- weekly_summary: asks for the week's totals or grade
- streak: asks about consecutive days of use
- set_weight: states their body weight
- set_goal: states a daily calorie target
- unknown: anything else

## ITEMS [CRITICAL]
- Only for log_meal and log_exercise, otherwise return an empty list
- One item per food or activity mentioned
- kind is "meal" for foods and drinks, "exercise" for activities
- name is the food or activity name only, without quantities, in the user's words
- quantity is the amount as written (e.g. "2 colheres", "100g"), empty if absent
- duration is the time as written (e.g. "30 minutos", "1h"), empty if absent
- Never invent items that were not mentioned

confidence is a number between 0 and 1.`

// ConversionSystemInstruction is sent with unit and duration conversions.
const ConversionSystemInstruction = `You convert household amounts described in Brazilian Portuguese into numeric values.
Answer with your best single estimate. If the amount cannot be estimated, answer 0.`

// UnitConversionPrompt expects item name, amount text, default serving grams
// and the JSON measure table.
const UnitConversionPrompt = `Food: %s
Amount: %s
Default serving: %.0f g
Known measures (name to grams): %s

How many grams is this amount?`

// DurationConversionPrompt expects activity name and duration text.
const DurationConversionPrompt = `Activity: %s
Duration described as: %s

How many minutes is this?`

func classificationSchema(intents []string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"intent":     {Type: genai.TypeString, Enum: intents, Description: "The single best intent."},
			"confidence": {Type: genai.TypeNumber, Description: "Confidence between 0 and 1."},
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"kind":     {Type: genai.TypeString, Enum: []string{"meal", "exercise"}},
						"name":     {Type: genai.TypeString},
						"quantity": {Type: genai.TypeString},
						"duration": {Type: genai.TypeString},
					},
					Required: []string{"kind", "name"},
				},
			},
		},
		Required: []string{"intent", "confidence", "items"},
	}
}

var gramsSchema = &genai.Schema{
	Type:       genai.TypeObject,
	Properties: map[string]*genai.Schema{"grams": {Type: genai.TypeNumber}},
	Required:   []string{"grams"},
}

var minutesSchema = &genai.Schema{
	Type:       genai.TypeObject,
	Properties: map[string]*genai.Schema{"minutes": {Type: genai.TypeNumber}},
	Required:   []string{"minutes"},
}
