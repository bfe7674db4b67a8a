package intent

import (
	"regexp"

	"github.com/edgard/nutribot/internal/normalize"
)

type rule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// defaultRules is evaluated in order against normalized text; the first
// matching rule wins. Conversational rules come before domain rules so a
// bare "sim" is never read as anything else.
func defaultRules() []rule {
	return []rule{
		{Greeting, compile(
			`^(?:oi+|ola|opa|eai|e ai|hey|hello|salve|bom dia|boa tarde|boa noite)(?:[\s,!.]+(?:tudo bem|tudo bom|td bem|como vai))?[\s!.,?]*$`,
		)},
		{Help, compile(
			`^/?(?:ajuda|help|start|comandos|menu)[\s!?.]*$`,
			`\b(?:como (?:funciona|usar|uso)|o que (?:voce|vc) (?:faz|sabe fazer)|me ajuda|preciso de ajuda)\b`,
		)},
		{Confirm, compile(
			`^(?:sim|s|ss|ok|okay|confirmo|confirma|confirmar|isso|isso mesmo|pode|pode sim|pode salvar|salva|salvar|certo|correto|beleza|blz|yes|claro)[\s!.]*$`,
		)},
		{Reject, compile(
			`^(?:nao|n|nao salva|cancela|cancelar|descarta|descartar|errado|esta errado|ta errado|no|nope)[\s!.]*$`,
		)},
		{WeeklySummary, compile(
			`\b(?:resumo|relatorio|balanco|nota|desempenho)\b.*\bsemana\b`,
			`\bsemanal\b`,
			`\bcomo (?:foi|esta) (?:a |minha )?semana\b`,
		)},
		{DailySummary, compile(
			`\b(?:resumo|relatorio|balanco|total)\b`,
			`\bquantas calorias\b`,
			`\bcomo (?:estou|to|foi) hoje\b`,
		)},
		{Streak, compile(
			`\b(?:sequencia|streak|ofensiva|dias seguidos)\b`,
		)},
		{SetWeight, compile(
			`\b(?:meu peso|peso|pesando|pesei|peso atual)\b\D*\d+(?:[.,]\d+)?\s*(?:kg|quilos?)?\b`,
		)},
		{SetGoal, compile(
			`\b(?:meta|objetivo|limite)\b\D*\d+\s*(?:kcal|calorias)?\b`,
		)},
		{LogExercise, compile(
			`\b(?:corri|caminhei|nadei|pedalei|treinei|malhei|joguei|dancei|remei)\b`,
			`\b(?:corrida|caminhada|musculacao|natacao|ciclismo|bike|yoga|ioga|crossfit|futebol|academia|treino|exercicio|pilates)\b`,
		)},
		{LogMeal, compile(
			`\b(?:comi|almocei|jantei|tomei|bebi|lanchei|belisquei)\b`,
			`\b(?:cafe da manha|almoco|jantar|lanche)\b`,
			`\b\d+(?:[.,]\d+)?\s*(?:g|gramas?|kg|ml|colher(?:es)?|xicaras?|fatias?|unidades?|copos?)\b`,
		)},
	}
}

// classifyRules applies the ordered rules to the latest message.
func (c *Classifier) classifyRules(text string) (Result, bool) {
	norm := normalize.Text(text)
	if norm == "" {
		return Result{}, false
	}
	for _, r := range c.rules {
		for _, p := range r.patterns {
			if p.MatchString(norm) {
				return Result{Intent: r.intent, Confidence: ruleConfidence, Source: SourceRules}, true
			}
		}
	}
	return Result{}, false
}
