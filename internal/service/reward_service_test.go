package service

import (
	"context"
	"sync"
	"testing"

	"investsystem/internal/infrastructure/cache"
	"investsystem/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newRewardFixture 构造一个业绩 12000（达到 L1 门槛 10000）的用户
func newRewardFixture(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()
	pkg := createTestPackage(t, db, "稳健型", 100, 1000000, 30, 365)
	root := createTestUser(t, db, "root", nil, 0)
	child := createTestUser(t, db, "child", &root.ReferralCode, 0)
	createTestInvestment(t, db, child.ID, pkg.ID, 12000, true)
	return root
}

// =============================================================================
// 领奖 Tests
// =============================================================================

func TestClaim_CashReward(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()
	svc := NewRewardService(db, rdb, cfg)
	ctx := context.Background()

	root := newRewardFixture(t, db)

	resp, err := svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: model.RewardKindCash})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Level)
	assert.InDelta(t, 300, resp.Amount, 1e-6)

	// 现金落账为 RANK_REWARD 流水
	var fresh model.User
	require.NoError(t, db.First(&fresh, root.ID).Error)
	assert.InDelta(t, 300, fresh.Balance, 1e-6)

	var trans model.Transaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", root.ID, model.TxnTypeRankReward).First(&trans).Error)
	level, kind, ok := model.ParseRankRewardDesc(trans.Description)
	require.True(t, ok)
	assert.Equal(t, 1, level)
	assert.Equal(t, model.RewardKindCash, kind)

	// 领奖事件随事务写进发件箱
	var msg model.OutboxMessage
	require.NoError(t, db.Where("topic = ?", cfg.Kafka.Topic.RankRewardClaimed).First(&msg).Error)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
	assert.Contains(t, msg.Payload, `"level":1`)

	assertLedgerConsistent(t, db, root.ID, 0)
}

func TestClaim_PrizeRewardZeroAmount(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	svc := NewRewardService(db, rdb, newTestConfig())
	ctx := context.Background()

	root := newRewardFixture(t, db)

	resp, err := svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: model.RewardKindPrize})
	require.NoError(t, err)
	assert.InDelta(t, 0, resp.Amount, 1e-6)

	// 实物奖励只留痕，不入金
	var fresh model.User
	require.NoError(t, db.First(&fresh, root.ID).Error)
	assert.InDelta(t, 0, fresh.Balance, 1e-6)

	var count int64
	require.NoError(t, db.Model(&model.Transaction{}).
		Where("user_id = ? AND type = ?", root.ID, model.TxnTypeRankReward).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestClaim_CashAndPrizeIndependent(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	svc := NewRewardService(db, rdb, newTestConfig())
	ctx := context.Background()

	root := newRewardFixture(t, db)

	// 同一等级的现金和实物是两个独立的领取状态
	_, err := svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: model.RewardKindCash})
	require.NoError(t, err)
	_, err = svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: model.RewardKindPrize})
	require.NoError(t, err)

	claimed, err := svc.ListClaimed(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestClaim_SecondClaimRejected(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	svc := NewRewardService(db, rdb, newTestConfig())
	ctx := context.Background()

	root := newRewardFixture(t, db)

	_, err := svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: model.RewardKindCash})
	require.NoError(t, err)

	_, err = svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: model.RewardKindCash})
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	// 只入账一次
	var fresh model.User
	require.NoError(t, db.First(&fresh, root.ID).Error)
	assert.InDelta(t, 300, fresh.Balance, 1e-6)
}

func TestClaim_Validation(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	svc := NewRewardService(db, rdb, newTestConfig())
	ctx := context.Background()

	root := newRewardFixture(t, db)

	_, err := svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 99, Kind: model.RewardKindCash})
	assert.ErrorIs(t, err, ErrInvalidRank)

	_, err = svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: "GOLD"})
	assert.ErrorIs(t, err, ErrInvalidRewardKind)
}

func TestClaim_InsufficientTurnover(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	svc := NewRewardService(db, rdb, newTestConfig())
	ctx := context.Background()

	// 业绩 12000 够 L1 不够 L2（门槛 50000）
	root := newRewardFixture(t, db)

	_, err := svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 2, Kind: model.RewardKindCash})
	require.ErrorIs(t, err, ErrInsufficientTurnover)

	// 校验失败不留任何痕迹
	var count int64
	require.NoError(t, db.Model(&model.Transaction{}).Where("user_id = ?", root.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestClaim_ConcurrentOnlyOneSucceeds(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	svc := NewRewardService(db, rdb, newTestConfig())
	ctx := context.Background()

	root := newRewardFixture(t, db)

	const workers = 4
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: model.RewardKindCash})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyClaimed)
		}
	}
	assert.Equal(t, 1, succeeded)

	// 锁 + 锁后查重保证只发一次奖
	var fresh model.User
	require.NoError(t, db.First(&fresh, root.ID).Error)
	assert.InDelta(t, 300, fresh.Balance, 1e-6)
}

func TestClaim_InvalidatesTurnoverCache(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()
	svc := NewRewardService(db, rdb, cfg)
	turnoverSvc := NewTurnoverService(db, rdb, cfg)
	ctx := context.Background()

	root := newRewardFixture(t, db)

	// 先把业绩写进缓存
	_, err := turnoverSvc.TurnoverOf(ctx, root.ID)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: model.RewardKindCash})
	require.NoError(t, err)

	// 领奖后缓存被失效
	err = rdb.Get(ctx, cache.TurnoverKey(root.ID)).Err()
	assert.ErrorIs(t, err, redis.Nil)
}

// =============================================================================
// 已领列表 Tests
// =============================================================================

func TestListClaimed_Empty(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	svc := NewRewardService(db, rdb, newTestConfig())

	root := createTestUser(t, db, "root", nil, 0)

	claimed, err := svc.ListClaimed(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestListClaimed_ReturnsLevelKindAmount(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	svc := NewRewardService(db, rdb, newTestConfig())
	ctx := context.Background()

	root := newRewardFixture(t, db)

	_, err := svc.Claim(ctx, &ClaimRequest{UserID: root.ID, Level: 1, Kind: model.RewardKindCash})
	require.NoError(t, err)

	claimed, err := svc.ListClaimed(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Level)
	assert.Equal(t, model.RewardKindCash, claimed[0].Kind)
	assert.InDelta(t, 300, claimed[0].Amount, 1e-6)
}
