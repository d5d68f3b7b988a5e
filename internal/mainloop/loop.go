// Package mainloop はタスクを一つのゴルーチンで順番に実行するプライマリ実行コンテキストを提供する
package mainloop

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Loop は投入されたタスクを投入順に一つずつ実行する
//
// 遅延タスクは時間が来たらキューに入る。Run が終了する時点で待機中の遅延タスクは
// 即座に実行されるので、一度スケジュールされたタスクは必ず一度だけ実行される。
type Loop struct {
	logger zerolog.Logger

	mu      sync.Mutex
	queue   []func()
	pending map[*deferredTask]struct{}
	running bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

type deferredTask struct {
	timer *time.Timer
	fn    func()
}

// New は新しいLoopを作成する
func New(logger zerolog.Logger) *Loop {
	return &Loop{
		logger:  logger,
		pending: make(map[*deferredTask]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Run はコンテキストがキャンセルされるまでタスクを実行する
// 終了時はキュー内のタスクと待機中の遅延タスクをすべて実行してから戻る
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.running || l.closed {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	defer close(l.done)

	for {
		l.drain()

		select {
		case <-ctx.Done():
			l.shutdown()
			return
		case <-l.wake:
		}
	}
}

// Done はRunが終了すると閉じるチャンネルを返す
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post はタスクをキューに追加する
// ループが終了済みの場合は呼び出し元のゴルーチンで即座に実行する
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.invoke(fn)
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// AfterFunc は d 経過後に fn をループ上で実行する
func (l *Loop) AfterFunc(d time.Duration, fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.invoke(fn)
		return
	}

	task := &deferredTask{fn: fn}
	l.pending[task] = struct{}{}
	task.timer = time.AfterFunc(d, func() {
		l.mu.Lock()
		if _, ok := l.pending[task]; !ok {
			// shutdown が先に実行済み
			l.mu.Unlock()
			return
		}
		delete(l.pending, task)
		l.mu.Unlock()
		l.Post(fn)
	})
	l.mu.Unlock()
}

// Pending は待機中の遅延タスク数を返す
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.closed = true
	// pending から先に取り除いた側がタスクを実行する
	for task := range l.pending {
		task.timer.Stop()
		l.queue = append(l.queue, task.fn)
		delete(l.pending, task)
	}
	l.mu.Unlock()

	l.drain()
	l.logger.Debug().Msg("メインループを終了しました")
}

// invoke はタスクのpanicでループが止まらないように実行する
func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("メインループのタスクでpanicが発生")
		}
	}()
	fn()
}
