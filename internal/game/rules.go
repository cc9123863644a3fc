package game

import (
	"sort"
	"sync"

	"sudooom.im.werewolf/internal/game/classic"
	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

// RulesetFactory 创建规则集实例
type RulesetFactory func() core.Ruleset

var (
	rulesetsMu sync.RWMutex
	rulesets   = map[string]RulesetFactory{
		classic.Name: func() core.Ruleset { return classic.New() },
	}
)

// RegisterRuleset 注册规则集，同名覆盖
func RegisterRuleset(name string, factory RulesetFactory) {
	rulesetsMu.Lock()
	defer rulesetsMu.Unlock()
	rulesets[name] = factory
}

// NewRuleset 按名称创建规则集，空名称使用 classic
func NewRuleset(name string) (core.Ruleset, error) {
	if name == "" {
		name = classic.Name
	}
	rulesetsMu.RLock()
	factory, ok := rulesets[name]
	rulesetsMu.RUnlock()
	if !ok {
		return nil, apperrors.ErrInvalidParams.WithDetail("unsupported ruleset: %s", name)
	}
	return factory(), nil
}

// Rulesets 已注册的规则集名称
func Rulesets() []string {
	rulesetsMu.RLock()
	defer rulesetsMu.RUnlock()
	names := make([]string, 0, len(rulesets))
	for name := range rulesets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
