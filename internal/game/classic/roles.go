package classic

import (
	"math/rand/v2"
	"slices"

	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

// 身份
const (
	RoleWerewolf core.Role = "werewolf"
	RoleSeer     core.Role = "seer"
	RoleGuard    core.Role = "guard"
	RoleVillager core.Role = "villager"
)

// 阵营
const (
	TeamVillage  = "village"
	TeamWerewolf = "werewolf"
)

// MinPlayers 最少人数
const MinPlayers = 3

// Deck 按人数生成身份牌：每四人一狼，一名预言家，六人及以上加守卫，其余为村民
func Deck(count int) []core.Role {
	wolves := max(1, count/4)
	deck := make([]core.Role, 0, count)
	for i := 0; i < wolves; i++ {
		deck = append(deck, RoleWerewolf)
	}
	deck = append(deck, RoleSeer)
	if count >= 6 {
		deck = append(deck, RoleGuard)
	}
	for len(deck) < count {
		deck = append(deck, RoleVillager)
	}
	return deck
}

// AssignRoles 洗牌后分配
func (r *Rules) AssignRoles(count int, rng *rand.Rand) ([]core.Role, error) {
	if count < MinPlayers {
		return nil, apperrors.ErrInvalidParams.WithDetail("need at least %d players, got %d", MinPlayers, count)
	}
	if len(r.roles) > 0 {
		if len(r.roles) != count {
			return nil, apperrors.ErrInvalidParams.WithDetail("fixed deck has %d roles for %d seats", len(r.roles), count)
		}
		return slices.Clone(r.roles), nil
	}
	deck := Deck(count)
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck, nil
}

// Teammates 狼人互相知晓
func (r *Rules) Teammates(state *core.GameState, seat int) []int {
	p := state.Participant(seat)
	if p == nil || p.Role != RoleWerewolf {
		return nil
	}
	var mates []int
	for _, other := range state.Participants {
		if other.Role == RoleWerewolf && other.Seat != seat {
			mates = append(mates, other.Seat)
		}
	}
	return mates
}

// TeamOf 身份所属阵营
func TeamOf(role core.Role) string {
	if role == RoleWerewolf {
		return TeamWerewolf
	}
	return TeamVillage
}
