package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/infrastructure/cache"
	"investsystem/internal/model"
	"investsystem/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// TurnoverService 团队业绩聚合
//
// 业绩定义：推荐树里全部下级（不含本人）当前进行中投资单的本金之和。
// 首页每次加载都会查业绩，结果按用户缓存在 Redis（短 TTL），领奖后主动失效。
type TurnoverService struct {
	cfg            *config.Config
	rdb            *redis.Client
	userRepo       *repository.UserRepository
	investmentRepo *repository.InvestmentRepository
}

func NewTurnoverService(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *TurnoverService {
	return &TurnoverService{
		cfg:            cfg,
		rdb:            rdb,
		userRepo:       repository.NewUserRepository(db),
		investmentRepo: repository.NewInvestmentRepository(db),
	}
}

// TurnoverOf 计算用户的团队业绩
//
// 【关键点】按层推进的显式工作队列，不用语言递归：
// 每层一次批量子节点查询加一次批量本金汇总，层数由 TurnoverDepthCap 封顶，
// 病态深树不会打爆栈也不会无限展开。
//
// 存储出错时错误原样上抛，不降级为零——零业绩和"算不出来"是两回事，
// 资格判断绝不能把故障当成没有业绩
func (s *TurnoverService) TurnoverOf(ctx context.Context, userID uint) (float64, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.rdb != nil {
		val, err := s.rdb.Get(ctx, cache.TurnoverKey(userID)).Float64()
		if err == nil {
			return val, nil
		}
		if err != redis.Nil {
			// 缓存故障只回源数据库，不影响结果正确性
			log.Printf("[Turnover] 读缓存失败，回源计算: userID=%d, err=%v", userID, err)
		}
	}

	total := 0.0
	frontier := []string{user.ReferralCode}
	visited := map[string]bool{user.ReferralCode: true} // 防推荐环把本人算进去

	for depth := 0; depth < s.cfg.Business.TurnoverDepthCap && len(frontier) > 0; depth++ {
		children, err := s.userRepo.GetChildren(ctx, frontier)
		if err != nil {
			return 0, fmt.Errorf("查询下级失败: %w", err)
		}
		if len(children) == 0 {
			break
		}

		ids := make([]uint, 0, len(children))
		next := make([]string, 0, len(children))
		for _, child := range children {
			if visited[child.ReferralCode] {
				continue
			}
			visited[child.ReferralCode] = true
			ids = append(ids, child.ID)
			next = append(next, child.ReferralCode)
		}

		sum, err := s.investmentRepo.SumActiveByUsers(ctx, ids)
		if err != nil {
			return 0, fmt.Errorf("汇总下级本金失败: %w", err)
		}
		total += sum
		frontier = next
	}

	if s.rdb != nil {
		ttl := time.Duration(s.cfg.Business.TurnoverCacheTTLMin) * time.Minute
		if err := s.rdb.Set(ctx, cache.TurnoverKey(userID), total, ttl).Err(); err != nil {
			log.Printf("[Turnover] 写缓存失败: userID=%d, err=%v", userID, err)
		}
	}

	return total, nil
}

// Invalidate 主动失效业绩缓存（领奖后调用，保证领奖后的读取拿到新值）
func (s *TurnoverService) Invalidate(ctx context.Context, userID uint) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, cache.TurnoverKey(userID)).Err(); err != nil {
		log.Printf("[Turnover] 失效缓存失败: userID=%d, err=%v", userID, err)
	}
}

// GetRank 返回用户当前达到的等级档位，未达最低门槛返回 nil
// 顺带刷新用户表里的缓存等级（仅展示用）
func (s *TurnoverService) GetRank(ctx context.Context, userID uint) (*model.RankTier, error) {
	turnover, err := s.TurnoverOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier := model.RankOf(turnover)

	level := 0
	if tier != nil {
		level = tier.Level
	}
	if err := s.userRepo.UpdateRank(ctx, userID, level); err != nil {
		log.Printf("[Turnover] 刷新缓存等级失败: userID=%d, err=%v", userID, err)
	}

	return tier, nil
}

// GetNextRank 返回用户的下一个目标档位（业绩超过全部门槛时返回最高档）
func (s *TurnoverService) GetNextRank(ctx context.Context, userID uint) (model.RankTier, float64, error) {
	turnover, err := s.TurnoverOf(ctx, userID)
	if err != nil {
		return model.RankTier{}, 0, err
	}
	return model.NextRankOf(turnover), turnover, nil
}
