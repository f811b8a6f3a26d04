package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// 等级体系（静态配置）
// ============================================================================
//
// 【设计思考】等级表为什么不放数据库？
//
// 等级门槛和奖励是运营规则，不是用户数据：
//   - 改动需要走发版，天然有审计记录
//   - 所有计算方（进度条、资格校验、领奖校验）共享同一份内存表，
//     不存在读到半新半旧配置的问题
//
// 表按门槛严格递增排列，RankOf / NextRankOf 依赖这个顺序。

const (
	RewardKindCash  = "CASH"  // 现金奖励
	RewardKindPrize = "PRIZE" // 实物奖励（记账金额为 0，线下发放）
)

// ValidRewardKind 校验奖励类型是否合法
func ValidRewardKind(kind string) bool {
	return kind == RewardKindCash || kind == RewardKindPrize
}

// RankTier 等级档位
type RankTier struct {
	Level             int     `json:"level"`
	TurnoverThreshold float64 `json:"turnover_threshold"` // 团队业绩门槛
	CashReward        float64 `json:"cash_reward"`
	Prize             string  `json:"prize"`
}

// RankTiers 等级表，门槛严格递增
var RankTiers = []RankTier{
	{Level: 1, TurnoverThreshold: 10000, CashReward: 300, Prize: "定制纪念礼盒"},
	{Level: 2, TurnoverThreshold: 50000, CashReward: 1500, Prize: "智能手表"},
	{Level: 3, TurnoverThreshold: 150000, CashReward: 5000, Prize: "旗舰手机"},
	{Level: 4, TurnoverThreshold: 500000, CashReward: 20000, Prize: "双人海外游"},
	{Level: 5, TurnoverThreshold: 1500000, CashReward: 75000, Prize: "汽车购置基金"},
}

// TierByLevel 按等级查档位，不存在返回 nil
func TierByLevel(level int) *RankTier {
	for i := range RankTiers {
		if RankTiers[i].Level == level {
			return &RankTiers[i]
		}
	}
	return nil
}

// RankOf 返回业绩已达到的最高档位，低于最低门槛返回 nil（无等级）
func RankOf(turnover float64) *RankTier {
	var current *RankTier
	for i := range RankTiers {
		if RankTiers[i].TurnoverThreshold <= turnover {
			current = &RankTiers[i]
		}
	}
	return current
}

// NextRankOf 返回业绩尚未达到的最低档位；业绩超过全部门槛时返回最高档（终态，不再晋升）
func NextRankOf(turnover float64) RankTier {
	for i := range RankTiers {
		if RankTiers[i].TurnoverThreshold > turnover {
			return RankTiers[i]
		}
	}
	return RankTiers[len(RankTiers)-1]
}

// ============================================================================
// 领奖流水的描述编码
// ============================================================================
//
// 领奖记录不单独建表，复用 RANK_REWARD 类型的流水：
// 描述前缀编码 (等级, 奖励类型)，领奖校验和已领列表都按前缀扫描流水得到。

const rankRewardDescHead = "等级奖励-L"

// RankRewardPrefix 生成 (等级, 奖励类型) 对应的描述前缀，用于查重
func RankRewardPrefix(level int, kind string) string {
	return fmt.Sprintf("%s%d-%s", rankRewardDescHead, level, kind)
}

// RankRewardDesc 生成完整的领奖流水描述
func RankRewardDesc(tier *RankTier, kind string) string {
	prefix := RankRewardPrefix(tier.Level, kind)
	if kind == RewardKindPrize {
		return fmt.Sprintf("%s-%s", prefix, tier.Prize)
	}
	return fmt.Sprintf("%s-%.2f", prefix, tier.CashReward)
}

// ParseRankRewardDesc 从流水描述解析 (等级, 奖励类型)，非领奖描述返回 ok=false
func ParseRankRewardDesc(desc string) (level int, kind string, ok bool) {
	if !strings.HasPrefix(desc, rankRewardDescHead) {
		return 0, "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(desc, rankRewardDescHead), "-", 3)
	if len(parts) < 2 {
		return 0, "", false
	}
	level, err := strconv.Atoi(parts[0])
	if err != nil || !ValidRewardKind(parts[1]) {
		return 0, "", false
	}
	return level, parts[1], true
}
