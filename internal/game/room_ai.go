package game

import (
	"context"
	"slices"
	"strconv"

	"sudooom.im.werewolf/internal/game/ai"
	"sudooom.im.werewolf/internal/game/core"
	apperrors "sudooom.im.werewolf/pkg/errors"
)

// aiJob 进行中的 AI 请求，同一房间同时最多一个
type aiJob struct {
	id      int64
	seat    int
	speech  bool
	entryID int64
	acc     string
	cancel  context.CancelFunc
	stream  *ai.Stream
}

// heldCommit 暂停期间完成的 AI 结果，恢复后再提交
type heldCommit struct {
	seat   int
	action core.Action
}

// dispatchAI 为第一个待行动的 AI 座位发起请求
func (r *Room) dispatchAI() {
	if r.job != nil || len(r.held) > 0 {
		return
	}
	for _, seat := range r.engine.Due() {
		p := r.engine.Participant(seat)
		if p == nil || !p.IsAI() {
			continue
		}
		r.startJob(seat)
		return
	}
}

func (r *Room) startJob(seat int) {
	orch := r.deps.Orchestrator
	dc := ai.BuildContext(r.engine.State(), r.engine.Rules(), seat)
	ctx, cancel := context.WithCancel(r.ctx)

	r.jobSeq++
	job := &aiJob{id: r.jobSeq, seat: seat, cancel: cancel}

	if r.engine.TurnKind() != core.TurnSpeech {
		r.job = job
		go func() {
			res := orch.RequestAction(ctx, dc)
			r.post(func() { r.onAIDecision(job, res) })
		}()
		return
	}

	entryID, events, err := r.engine.OpenSpeech(seat)
	if err != nil {
		cancel()
		r.logger.Error("Failed to open ai speech", "seat", seat, "error", err)
		action := orch.Fallback(dc, err)
		r.deferStep(func() { r.commit(seat, action) })
		return
	}
	r.emit(events)

	job.speech = true
	job.entryID = entryID
	job.stream = orch.RequestSpeech(ctx, dc)
	r.job = job
	go r.forwardSpeech(job)
}

// forwardSpeech 把发言流转发到顺序执行协程
func (r *Room) forwardSpeech(job *aiJob) {
	for c := range job.stream.Chunks() {
		if !r.post(func() { r.onSpeechChunk(job, c) }) {
			job.stream.Cancel()
			return
		}
	}
}

func (r *Room) onSpeechChunk(job *aiJob, c ai.StreamChunk) {
	if r.job != job {
		return
	}
	if c.Accumulated != job.acc {
		job.acc = c.Accumulated
		events, err := r.engine.AppendSpeech(job.entryID, c.Accumulated)
		if err != nil {
			r.logger.Error("Failed to append ai speech", "seat", job.seat, "error", err)
		} else {
			r.emit(events)
		}
	}
	if c.Done {
		r.finishSpeech(job, c.Err, false)
	}
}

// finishSpeech 关闭流式条目并提交发言；出错时保留已收到的内容
func (r *Room) finishSpeech(job *aiJob, cause error, timedOut bool) {
	r.job = nil
	job.cancel()

	markers := map[string]string{core.MarkerAI: "true"}
	if cause != nil {
		markers[core.MarkerError] = apperrors.GetMessage(cause)
		r.noteAIError(job.seat, cause)
	}
	if timedOut {
		markers[core.MarkerTimeout] = "true"
	}
	entry, events, err := r.engine.CloseSpeech(job.entryID, markers)
	if err != nil {
		r.logger.Error("Failed to close ai speech", "seat", job.seat, "error", err)
	}
	r.emit(events)

	action := core.Action{Type: core.ActionSpeech, EntryID: job.entryID, Content: entry.Content, Timeout: timedOut}
	if cause != nil {
		action.Fallback = true
		action.FallbackCause = apperrors.GetMessage(cause)
	}
	r.commitOrHold(job.seat, action)
}

func (r *Room) onAIDecision(job *aiJob, res ai.Result) {
	if r.job != job {
		return
	}
	r.job = nil
	job.cancel()
	if res.Err != nil {
		r.noteAIError(job.seat, res.Err)
	}
	r.commitOrHold(job.seat, res.Action)
}

// abortJob 取消进行中的 AI 请求；游戏仍在进行时提交兜底动作
func (r *Room) abortJob() {
	job := r.job
	if job == nil {
		return
	}
	active := !r.finished && r.engine.Phase() != core.PhaseEnded && r.ctx.Err() == nil

	if job.speech {
		job.stream.Cancel()
		if active {
			r.finishSpeech(job, apperrors.ErrAITimeout, true)
			return
		}
		r.job = nil
		if _, _, err := r.engine.CloseSpeech(job.entryID, map[string]string{core.MarkerAI: "true", core.MarkerError: "cancelled"}); err != nil {
			r.logger.Warn("Failed to close cancelled speech", "seat", job.seat, "error", err)
		}
		return
	}

	r.job = nil
	job.cancel()
	if !active {
		return
	}
	dc := ai.BuildContext(r.engine.State(), r.engine.Rules(), job.seat)
	action := r.deps.Orchestrator.Fallback(dc, apperrors.ErrAITimeout)
	action.Timeout = true
	r.noteAIError(job.seat, apperrors.ErrAITimeout)
	r.commitOrHold(job.seat, action)
}

func (r *Room) commitOrHold(seat int, action core.Action) {
	if r.engine.Phase() == core.PhasePaused {
		r.held = append(r.held, heldCommit{seat: seat, action: action})
		return
	}
	r.commit(seat, action)
}

// commit 提交动作并广播；非弃权动作被拒绝时改为弃权，保证回合推进
func (r *Room) commit(seat int, action core.Action) {
	events, err := r.engine.ApplyAction(seat, action)
	if err != nil && action.Type != core.ActionPass && !apperrors.Is(err, apperrors.ErrNotYourTurn) {
		r.logger.Warn("Action rejected, committing pass", "seat", seat, "action", action.Type, "error", err)
		pass := core.Action{Type: core.ActionPass, Timeout: action.Timeout, Fallback: true, FallbackCause: apperrors.GetMessage(err)}
		events, err = r.engine.ApplyAction(seat, pass)
	}
	if err != nil {
		r.logger.Warn("Action dropped", "seat", seat, "action", action.Type, "error", err)
		return
	}
	r.emit(events)
}

// releaseHeld 恢复后按顺序提交暂停期间完成的 AI 结果，已不再轮到的座位丢弃
func (r *Room) releaseHeld() {
	held := r.held
	r.held = nil
	for _, h := range held {
		if !slices.Contains(r.engine.Due(), h.seat) {
			r.logger.Info("Discarding stale ai result", "seat", h.seat)
			continue
		}
		r.commit(h.seat, h.action)
	}
}

func (r *Room) noteAIError(seat int, cause error) {
	r.engine.Note(core.LogEntry{
		Type:       core.EntryAIError,
		Seat:       seat,
		Content:    apperrors.GetMessage(cause),
		Visibility: core.VisibilityInternal,
		Markers:    map[string]string{core.MarkerError: strconv.Itoa(apperrors.GetCode(cause))},
	})
}
