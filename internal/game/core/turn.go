package core

import "slices"

// TurnCursor 回合游标
// 顺序步骤中 Current 为当前行动座位，Pending 为包含 Current 在内尚未行动的座位；
// 并发步骤中 Current 为 0，Pending 为尚未提交的座位集合。
// Version 在待行动集合变化时递增，过期的计时与 AI 回调据此丢弃
type TurnCursor struct {
	Mode    StepMode `json:"mode"`
	Kind    TurnKind `json:"kind"`
	Current int      `json:"current"`
	Pending []int    `json:"pending"`
	Acted   []int    `json:"acted"`
	Version int64    `json:"version"`
}

// Begin 开始一个步骤
func (c *TurnCursor) Begin(plan StepPlan, alive []int) {
	actors := plan.Actors
	if actors == nil {
		actors = alive
	}
	pending := make([]int, 0, len(actors))
	for _, seat := range actors {
		if slices.Contains(alive, seat) && !slices.Contains(pending, seat) {
			pending = append(pending, seat)
		}
	}
	slices.Sort(pending)

	c.Mode = plan.Mode
	c.Kind = plan.Kind
	c.Pending = pending
	c.Acted = nil
	c.Current = 0
	if plan.Mode == StepSequential && len(pending) > 0 {
		start := plan.Start
		if start > 0 && slices.Contains(pending, start) {
			c.Current = start
		} else {
			c.Current = NextAliveSeat(max(start-1, 0), pending)
		}
	}
	c.Version++
}

// Advance 座位行动完毕，推进到下一个座位
func (c *TurnCursor) Advance(seat int, alive func(int) bool) {
	c.Pending = slices.DeleteFunc(c.Pending, func(s int) bool {
		return s == seat || !alive(s)
	})
	c.Acted = append(c.Acted, seat)
	if c.Mode == StepSequential {
		c.Current = NextAliveSeat(seat, c.Pending)
	}
	c.Version++
}

// Drop 座位在步骤中途出局
func (c *TurnCursor) Drop(seat int) bool {
	if !slices.Contains(c.Pending, seat) {
		return false
	}
	c.Pending = slices.DeleteFunc(c.Pending, func(s int) bool { return s == seat })
	if c.Current == seat {
		c.Current = NextAliveSeat(seat, c.Pending)
	}
	c.Version++
	return true
}

// IsDue 是否轮到该座位
func (c *TurnCursor) IsDue(seat int) bool {
	if seat == 0 {
		return false
	}
	if c.Mode == StepSequential {
		return c.Current == seat
	}
	return slices.Contains(c.Pending, seat)
}

// Due 当前需要行动的座位
func (c *TurnCursor) Due() []int {
	if c.Mode == StepSequential {
		if c.Current == 0 {
			return nil
		}
		return []int{c.Current}
	}
	return slices.Clone(c.Pending)
}

// Complete 步骤是否结束
func (c *TurnCursor) Complete() bool {
	if c.Mode == StepSequential {
		return c.Current == 0
	}
	return len(c.Pending) == 0
}

// Clear 清空游标
func (c *TurnCursor) Clear() {
	c.Current = 0
	c.Pending = nil
	c.Acted = nil
	c.Version++
}

// Clone 深拷贝
func (c TurnCursor) Clone() TurnCursor {
	c.Pending = slices.Clone(c.Pending)
	c.Acted = slices.Clone(c.Acted)
	return c
}
