package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var ErrDispatcherClosed = errors.New("change dispatcher is closed")

type KafkaDispatcherOptions struct {
	// 本地队列长度
	QueueSize int
	Workers   int
	// 第一次失败之后最多再试几次
	MaxRetry    int
	BaseBackoff time.Duration
	// 0 表示不封顶
	MaxBackoff time.Duration
}

// KafkaDispatcher 把变更事件异步写到 kafka。
// Submit 只往本地队列放事件，发送和重试都在后台 worker 里完成；
// 事件流允许丢失，队列满或重试用尽时只计数和打日志。
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	opt      KafkaDispatcherOptions
	// 限制同时在途的 SendMessage，可以为 nil
	sem *SemaphoreControl

	events chan ChangeEvent
	// closed 与 close(events) 都在 mu 写锁下完成，Enqueue 持读锁发送
	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sem *SemaphoreControl, opt KafkaDispatcherOptions) *KafkaDispatcher {
	opt.Workers = max(opt.Workers, 1)
	d := &KafkaDispatcher{
		producer: producer,
		topic:    topic,
		opt:      opt,
		sem:      sem,
		events:   make(chan ChangeEvent, opt.QueueSize),
	}
	d.workers.Add(opt.Workers)
	for w := range opt.Workers {
		go func() {
			defer d.workers.Done()
			for evt := range d.events {
				d.deliver(w, evt)
			}
		}()
	}
	return d
}

// Enqueue 队列满时最多等到 ctx 结束，超时的事件丢弃并计数
func (d *KafkaDispatcher) Enqueue(ctx context.Context, evt ChangeEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		dispatchDropped.Inc()
		return ErrDispatcherClosed
	}
	select {
	case d.events <- evt:
		return nil
	case <-ctx.Done():
		dispatchDropped.Inc()
		return ctx.Err()
	}
}

// Close 之后 Enqueue 返回 ErrDispatcherClosed；已经入队的事件会发完再返回
func (d *KafkaDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *KafkaDispatcher) deliver(worker int, evt ChangeEvent) {
	if d.producer == nil || d.topic == "" {
		return
	}
	value, err := json.Marshal(evt)
	if err != nil {
		dispatchDropped.Inc()
		log.Printf("encode change event failed notebook=%s op=%s: %v", evt.NotebookID, evt.OperationID, err)
		return
	}
	// 同一笔记本的事件落在同一分区
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.NotebookID),
		Value: sarama.ByteEncoder(value),
	}

	for attempt := 0; ; attempt++ {
		err = d.send(msg)
		if err == nil {
			return
		}
		if attempt >= d.opt.MaxRetry {
			break
		}
		time.Sleep(d.backoff(attempt))
	}
	dispatchDropped.Inc()
	log.Printf("kafka send failed, drop event notebook=%s op=%s rev=%d worker=%d err=%v",
		evt.NotebookID, evt.OperationID, evt.Revision, worker, err)
}

func (d *KafkaDispatcher) send(msg *sarama.ProducerMessage) error {
	if d.sem != nil {
		// worker 可以一直等，不影响提交链路
		_ = d.sem.Acquire(context.Background())
		defer d.sem.Release()
	}
	_, _, err := d.producer.SendMessage(msg)
	return err
}

// backoff 每次翻倍，MaxBackoff 封顶
func (d *KafkaDispatcher) backoff(attempt int) time.Duration {
	b := d.opt.BaseBackoff << attempt
	if d.opt.MaxBackoff > 0 && b > d.opt.MaxBackoff {
		return d.opt.MaxBackoff
	}
	return b
}
