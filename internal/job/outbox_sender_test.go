package job

import (
	"context"
	"errors"
	"testing"

	"investsystem/internal/model"
	"investsystem/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 发件箱投递 Tests
// =============================================================================

func TestOutboxSender_DeliversPendingMessages(t *testing.T) {
	db := newTestDB(t)
	sender := NewOutboxSender(db, newTestConfig())
	ctx := context.Background()

	var sent []string
	sender.send = func(topic, key, value string) error {
		sent = append(sent, topic+"/"+key)
		return nil
	}

	outboxRepo := repository.NewOutboxRepository(db)
	for _, key := range []string{"k1", "k2"} {
		require.NoError(t, outboxRepo.Create(ctx, nil, &model.OutboxMessage{
			MessageKey: key,
			Topic:      "invest.profit.settled",
			Payload:    `{"ok":true}`,
			Status:     model.OutboxStatusPending,
		}))
	}

	sender.processPendingMessages(ctx)

	assert.ElementsMatch(t, []string{"invest.profit.settled/k1", "invest.profit.settled/k2"}, sent)

	var count int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).
		Where("status = ?", model.OutboxStatusSent).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestOutboxSender_RetriesThenMarksFailed(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	cfg.Business.MaxRetryCount = 2
	sender := NewOutboxSender(db, cfg)
	ctx := context.Background()

	sender.send = func(topic, key, value string) error {
		return errors.New("broker unavailable")
	}

	outboxRepo := repository.NewOutboxRepository(db)
	require.NoError(t, outboxRepo.Create(ctx, nil, &model.OutboxMessage{
		MessageKey: "k1",
		Topic:      "invest.rank.reward.claimed",
		Payload:    `{}`,
		Status:     model.OutboxStatusPending,
	}))

	// 第一次失败：重试计数 +1，仍是待发送
	sender.processPendingMessages(ctx)
	var msg model.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)

	// 第二次失败：达到上限，标记为失败不再投递
	sender.processPendingMessages(ctx)
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, model.OutboxStatusFailed, msg.Status)
	assert.Equal(t, 2, msg.RetryCount)

	// 终态消息不再被扫描
	sender.processPendingMessages(ctx)
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, model.OutboxStatusFailed, msg.Status)
	assert.Equal(t, 2, msg.RetryCount)
}

func TestOutboxSender_DeliversRequeuedMessage(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	cfg.Business.MaxRetryCount = 1
	sender := NewOutboxSender(db, cfg)
	ctx := context.Background()

	sendErr := errors.New("broker unavailable")
	sender.send = func(topic, key, value string) error {
		return sendErr
	}

	outboxRepo := repository.NewOutboxRepository(db)
	require.NoError(t, outboxRepo.Create(ctx, nil, &model.OutboxMessage{
		MessageKey: "k1",
		Topic:      "invest.profit.settled",
		Payload:    `{}`,
		Status:     model.OutboxStatusPending,
	}))

	// 上限 1：第一次失败就进终态
	sender.processPendingMessages(ctx)
	var msg model.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	require.Equal(t, model.OutboxStatusFailed, msg.Status)

	failedList, err := outboxRepo.GetFailedMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failedList, 1)

	// 下游恢复后重新入队，下一轮扫描即投递成功
	require.NoError(t, outboxRepo.Requeue(ctx, msg.ID))
	sendErr = nil
	sender.processPendingMessages(ctx)

	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, model.OutboxStatusSent, msg.Status)
	assert.Equal(t, 0, msg.RetryCount)
}

func TestOutboxSender_RecoversAfterTransientFailure(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	cfg.Business.MaxRetryCount = 3
	sender := NewOutboxSender(db, cfg)
	ctx := context.Background()

	failures := 1
	sender.send = func(topic, key, value string) error {
		if failures > 0 {
			failures--
			return errors.New("timeout")
		}
		return nil
	}

	outboxRepo := repository.NewOutboxRepository(db)
	require.NoError(t, outboxRepo.Create(ctx, nil, &model.OutboxMessage{
		MessageKey: "k1",
		Topic:      "invest.profit.settled",
		Payload:    `{}`,
		Status:     model.OutboxStatusPending,
	}))

	sender.processPendingMessages(ctx)
	sender.processPendingMessages(ctx)

	var msg model.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, model.OutboxStatusSent, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)
}
