package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/infrastructure/lock"
	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrInvalidRank          = errors.New("等级不存在")
	ErrInvalidRewardKind    = errors.New("奖励类型不合法")
	ErrAlreadyClaimed       = errors.New("该奖励已领取，请勿重复领取")
	ErrInsufficientTurnover = errors.New("团队业绩未达到该等级门槛")
)

// RewardService 等级奖励领取
//
// 状态机（按 (用户, 等级, 奖励类型)）：未领取 -> 已领取，终态不可逆。
// 领取记录不单独建表，复用 RANK_REWARD 流水按描述前缀扫描判定
type RewardService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
	ledger          *LedgerService
	turnover        *TurnoverService
}

func NewRewardService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RewardService {
	return &RewardService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
		ledger:          NewLedgerService(db),
		turnover:        NewTurnoverService(db, redisClient, cfg),
	}
}

type ClaimRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Level  int    `json:"level" binding:"required"`
	Kind   string `json:"kind" binding:"required"`
}

type ClaimResponse struct {
	Level       int     `json:"level"`
	Kind        string  `json:"kind"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// Claim 领取等级奖励
//
// 【关键点】校验顺序固定：等级存在 -> 未领取 -> 业绩达标，全部通过才落账。
// "查重 + 落账"之间用 (用户, 等级, 奖励类型) 维度的分布式锁串行化，
// 拿到锁后再查重一次，防止两个并发请求都看到"未领取"而重复发奖
func (s *RewardService) Claim(ctx context.Context, req *ClaimRequest) (*ClaimResponse, error) {
	if !model.ValidRewardKind(req.Kind) {
		return nil, ErrInvalidRewardKind
	}

	tier := model.TierByLevel(req.Level)
	if tier == nil {
		return nil, ErrInvalidRank
	}

	// 锁前快速查重，挡掉大部分重复请求
	existing, err := s.transactionRepo.FindRankReward(ctx, nil, req.UserID, req.Level, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("查询领奖记录失败: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyClaimed
	}

	holder := strconv.FormatInt(idgen.NextID(), 10)
	claimLock := lock.NewClaimLock(s.redisClient, req.UserID, req.Level, req.Kind, holder)
	if err := claimLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer claimLock.Unlock(ctx)

	// 获取锁后再次查重
	existing, err = s.transactionRepo.FindRankReward(ctx, nil, req.UserID, req.Level, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("查询领奖记录失败: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyClaimed
	}

	// 以实时业绩为准校验资格，不信任缓存等级
	turnover, err := s.turnover.TurnoverOf(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("计算团队业绩失败: %w", err)
	}
	if turnover < tier.TurnoverThreshold {
		return nil, ErrInsufficientTurnover
	}

	// 现金奖励入账，实物奖励只记账不入金（线下发放）
	amount := 0.0
	if req.Kind == model.RewardKindCash {
		amount = tier.CashReward
	}
	desc := model.RankRewardDesc(tier, req.Kind)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.RecordInTx(ctx, tx, &RecordRequest{
			UserID:      req.UserID,
			Type:        model.TxnTypeRankReward,
			Amount:      amount,
			Status:      model.TxnStatusCompleted,
			Description: desc,
		}); err != nil {
			return err
		}

		msgPayload := map[string]interface{}{
			"user_id":    req.UserID,
			"level":      req.Level,
			"kind":       req.Kind,
			"amount":     amount,
			"turnover":   turnover,
			"claimed_at": time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: fmt.Sprintf("%d:%d:%s", req.UserID, req.Level, req.Kind),
			Topic:      s.cfg.Kafka.Topic.RankRewardClaimed,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})

	if err != nil {
		return nil, err
	}

	// 领奖后失效业绩缓存，保证随后读取拿到新鲜值
	s.turnover.Invalidate(ctx, req.UserID)

	log.Printf("领奖成功: userID=%d, level=%d, kind=%s, amount=%.2f", req.UserID, req.Level, req.Kind, amount)

	return &ClaimResponse{
		Level:       req.Level,
		Kind:        req.Kind,
		Amount:      amount,
		Description: desc,
	}, nil
}

type ClaimedReward struct {
	Level  int     `json:"level"`
	Kind   string  `json:"kind"`
	Amount float64 `json:"amount"`
}

// ListClaimed 扫描 RANK_REWARD 流水得到已领取的奖励列表
func (s *RewardService) ListClaimed(ctx context.Context, userID uint) ([]ClaimedReward, error) {
	transactions, err := s.transactionRepo.ListRankRewards(ctx, userID)
	if err != nil {
		return nil, err
	}

	claimed := make([]ClaimedReward, 0, len(transactions))
	for _, trans := range transactions {
		level, kind, ok := model.ParseRankRewardDesc(trans.Description)
		if !ok {
			log.Printf("[Reward] 流水描述无法解析，跳过: txnNo=%s, desc=%s", trans.TxnNo, trans.Description)
			continue
		}
		claimed = append(claimed, ClaimedReward{
			Level:  level,
			Kind:   kind,
			Amount: trans.Amount,
		})
	}
	return claimed, nil
}
