package ai

import "math/rand/v2"

// Persona AI 性格标签，在座位创建时确定
type Persona string

const (
	PersonaAggressive Persona = "aggressive"
	PersonaAnalytical Persona = "analytical"
	PersonaDeceptive  Persona = "deceptive"
	PersonaSteady     Persona = "steady"
)

// Personas 全部性格
var Personas = []Persona{PersonaAggressive, PersonaAnalytical, PersonaDeceptive, PersonaSteady}

// Strategy 性格对应的决策风格
type Strategy struct {
	Persona Persona
	// Tone 写入提示词的说话风格
	Tone string
	// Aggression 投票时选择指认而不是弃权的概率
	Aggression float64
	// Openers 本地发言模板的开场白
	Openers []string
}

var strategies = map[Persona]Strategy{
	PersonaAggressive: {
		Persona:    PersonaAggressive,
		Tone:       "blunt and accusatory, pushes the table toward a quick decision",
		Aggression: 0.95,
		Openers:    []string{"Enough talk.", "I'm calling it now.", "Listen carefully."},
	},
	PersonaAnalytical: {
		Persona:    PersonaAnalytical,
		Tone:       "calm and methodical, cites who said what and when",
		Aggression: 0.7,
		Openers:    []string{"Let's look at the facts.", "Going back over today,", "Here is what I noticed."},
	},
	PersonaDeceptive: {
		Persona:    PersonaDeceptive,
		Tone:       "friendly on the surface, quietly steers suspicion elsewhere",
		Aggression: 0.6,
		Openers:    []string{"I trust most of you, but", "Honestly, I'm just a villager here.", "Something feels off."},
	},
	PersonaSteady: {
		Persona:    PersonaSteady,
		Tone:       "measured and cooperative, prefers consensus",
		Aggression: 0.5,
		Openers:    []string{"I'll keep this short.", "My view hasn't changed much.", "Let's stay calm."},
	},
}

// StrategyFor 按性格取策略，未知性格按 steady 处理
func StrategyFor(p Persona) Strategy {
	if s, ok := strategies[p]; ok {
		return s
	}
	return strategies[PersonaSteady]
}

// ParsePersona 解析性格，空串或未知取值返回 steady
func ParsePersona(s string) Persona {
	if _, ok := strategies[Persona(s)]; ok {
		return Persona(s)
	}
	return PersonaSteady
}

// RandomPersona 随机性格
func RandomPersona(rng *rand.Rand) Persona {
	return Personas[rng.IntN(len(Personas))]
}
