package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultIdleWindow      = 30 * time.Minute
	DefaultHistoryLimit    = 10
	DefaultPendingTTL      = 5 * time.Minute
	DefaultClassifyTimeout = 3000 * time.Millisecond
)

const defaultHelp = `Posso registrar suas refeições e exercícios.

Exemplos:
• "comi 100g de arroz e 2 ovos"
• "corri 30 minutos"
• "resumo de hoje" ou "resumo da semana"
• "meu peso é 72kg" ou "minha meta é 1800 kcal"
• "sequência" para ver seus dias seguidos

Depois de cada registro eu peço confirmação: responda "sim" ou "não".`

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", "nutribot.db")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.max_retries", 1)
	v.SetDefault("gemini.retry_delay_seconds", 1)
	v.SetDefault("gemini.breaker_max_failures", 5)
	v.SetDefault("gemini.breaker_open_timeout", time.Minute)
	v.SetDefault("gemini.conversion_timeout", 4*time.Second)

	v.SetDefault("session.idle_window", DefaultIdleWindow)
	v.SetDefault("session.history_limit", DefaultHistoryLimit)
	v.SetDefault("session.pending_ttl", DefaultPendingTTL)
	v.SetDefault("session.carry_over_window", 5*time.Minute)

	v.SetDefault("classifier.timeout", DefaultClassifyTimeout)
	v.SetDefault("classifier.history_window", 4)

	v.SetDefault("resolver.food_threshold", 0.75)
	v.SetDefault("resolver.exercise_threshold", 0.70)
	v.SetDefault("resolver.short_query_length", 5)
	v.SetDefault("resolver.candidate_limit", 200)
	v.SetDefault("resolver.cache_ttl", 10*time.Minute)
	v.SetDefault("resolver.max_query_runes", 64)

	v.SetDefault("tracking.timezone", "America/Sao_Paulo")
	v.SetDefault("tracking.default_weight_kg", 70.0)
	v.SetDefault("tracking.default_calorie_target", 2000.0)
	v.SetDefault("tracking.week_days", 7)

	v.SetDefault("scheduler.tasks", map[string]any{
		"sql_maintenance":    map[string]any{"enabled": true, "schedule": "0 0 4 * * 0"},
		"summary_repair":     map[string]any{"enabled": true, "schedule": "0 30 3 * * *"},
		"conversation_sweep": map[string]any{"enabled": true, "schedule": "0 */10 * * * *"},
		"catalog_refresh":    map[string]any{"enabled": true, "schedule": "0 0 * * * *"},
	})

	v.SetDefault("messages.welcome", "Olá! Eu sou seu assistente de nutrição. Me conte o que você comeu ou qual exercício fez.")
	v.SetDefault("messages.help", defaultHelp)
	v.SetDefault("messages.fallback", "Desculpe, tive um problema agora. Pode tentar de novo em instantes?")
	v.SetDefault("messages.unknown", "Não entendi. Você pode me dizer o que comeu, um exercício que fez, ou pedir um resumo. Digite \"ajuda\" para exemplos.")
	v.SetDefault("messages.nothing_pending", "Não há nada aguardando confirmação.")
	v.SetDefault("messages.rejected", "Tudo bem, descartei o registro.")
	v.SetDefault("messages.error_unauthorized", "Você não tem permissão para este comando.")
	v.SetDefault("messages.reset_confirm", "Conversa reiniciada.")
	v.SetDefault("messages.reset_error", "Não consegui reiniciar a conversa. Tente novamente.")
}
