package core

import (
	"context"
)

// TaskWithResult is a task that produces a value for its reply.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult consumes the value produced by a TaskWithResult.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// PostTaskAndReply
// =============================================================================

// PostTaskAndReply runs task on target and then reply on replyRunner, the
// usual way to move blocking work off the UI thread and come back with the
// result. reply does not run if task panics. A nil replyRunner only posts
// task.
func PostTaskAndReply(target TaskRunner, task Task, reply Task, replyRunner TaskRunner) {
	PostTaskAndReplyWithTraits(target, task, DefaultTaskTraits(), reply, DefaultTaskTraits(), replyRunner)
}

// PostTaskAndReplyWithTraits is PostTaskAndReply with separate traits for
// the task and the reply, e.g. a best-effort disk read replying at
// user-blocking priority.
func PostTaskAndReplyWithTraits(
	target TaskRunner,
	task Task,
	taskTraits TaskTraits,
	reply Task,
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	if replyRunner == nil {
		target.PostTaskWithTraits(task, taskTraits)
		return
	}

	target.PostTaskWithTraits(func(ctx context.Context) {
		// A panic unwinds past the post below; the runner recovers it.
		task(ctx)
		replyRunner.PostTaskWithTraits(reply, replyTraits)
	}, taskTraits)
}

// PostTaskAndReplyWithResult passes task's result to reply.
//
// The task always completes before the reply starts, and the reply is
// posted from the task's goroutine, so reply sees every write made by task.
func PostTaskAndReplyWithResult[T any](
	target TaskRunner,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
	replyRunner TaskRunner,
) {
	PostTaskAndReplyWithResultAndTraits(target, task, DefaultTaskTraits(), reply, DefaultTaskTraits(), replyRunner)
}

// PostTaskAndReplyWithResultAndTraits is PostTaskAndReplyWithResult with
// separate traits for the task and the reply.
func PostTaskAndReplyWithResultAndTraits[T any](
	target TaskRunner,
	task TaskWithResult[T],
	taskTraits TaskTraits,
	reply ReplyWithResult[T],
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	var result T
	var err error

	PostTaskAndReplyWithTraits(
		target,
		func(ctx context.Context) { result, err = task(ctx) },
		taskTraits,
		func(ctx context.Context) { reply(ctx, result, err) },
		replyTraits,
		replyRunner,
	)
}
