package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/internal/service"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DailyProfitJob 每日收益发放任务
//
// 触发方式有两种：cron 定时（配置里早晚各一次，互为兜底）和管理端手动触发，
// 两者走的都是 RunDailyAccrual 这一条代码路径，不存在第二套发放逻辑。
//
// 【关键点】"每单每天最多发一次"不依赖调度纪律：
// profit_record 的 (investment_id, profit_date) 唯一键才是幂等屏障，
// 同一天内重复触发只会命中唯一键冲突被跳过
type DailyProfitJob struct {
	db               *gorm.DB
	cfg              *config.Config
	investmentRepo   *repository.InvestmentRepository
	profitRecordRepo *repository.ProfitRecordRepository
	outboxRepo       *repository.OutboxRepository
	ledger           *service.LedgerService
	stopCh           chan struct{}
	mu               sync.Mutex // 同进程内串行化整轮发放
}

func NewDailyProfitJob(db *gorm.DB, cfg *config.Config) *DailyProfitJob {
	return &DailyProfitJob{
		db:               db,
		cfg:              cfg,
		investmentRepo:   repository.NewInvestmentRepository(db),
		profitRecordRepo: repository.NewProfitRecordRepository(db),
		outboxRepo:       repository.NewOutboxRepository(db),
		ledger:           service.NewLedgerService(db),
		stopCh:           make(chan struct{}),
	}
}

// Start 按配置的 cron 表达式定时触发，阻塞到 ctx 取消或 Stop
func (j *DailyProfitJob) Start(ctx context.Context) {
	c := cron.New()

	for _, spec := range j.cfg.Business.AccrualCrons {
		spec := spec
		_, err := c.AddFunc(spec, func() {
			result, err := j.RunDailyAccrual(context.Background())
			if err != nil {
				log.Printf("[DailyProfitJob] 定时发放失败: spec=%s, err=%v", spec, err)
				return
			}
			log.Printf("[DailyProfitJob] 定时发放完成: spec=%s, 发放 %d 单, 合计 %.2f, 跳过 %d, 失败 %d",
				spec, result.ProcessedCount, result.TotalPaid, result.SkippedCount, result.FailedCount)
		})
		if err != nil {
			log.Printf("[DailyProfitJob] cron 表达式无效，已忽略: spec=%s, err=%v", spec, err)
		}
	}

	c.Start()
	log.Printf("[DailyProfitJob] 收益发放任务启动: crons=%v", j.cfg.Business.AccrualCrons)

	select {
	case <-ctx.Done():
		log.Println("[DailyProfitJob] 收到停止信号，任务退出")
	case <-j.stopCh:
		log.Println("[DailyProfitJob] 任务停止")
	}

	<-c.Stop().Done()
}

func (j *DailyProfitJob) Stop() {
	close(j.stopCh)
}

// AccrualResult 一轮发放的汇总
type AccrualResult struct {
	ProcessedCount int     `json:"processed_count"`
	TotalPaid      float64 `json:"total_paid"`
	SkippedCount   int     `json:"skipped_count"` // 当日已发放（幂等屏障命中）
	FailedCount    int     `json:"failed_count"`
}

// RunDailyAccrual 发放一轮每日收益，定时触发和手动触发共用
//
// 逐单独立处理：某一单失败只记日志并跳过，不中断整轮，
// 也不存在横跨全部投资单的大事务
func (j *DailyProfitJob) RunDailyAccrual(ctx context.Context) (*AccrualResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	today := now.Format("2006-01-02")

	// 先关停到期单，保证到期投资绝不会再进入发放名单
	expired, err := j.investmentRepo.ExpireDue(ctx, now)
	if err != nil {
		log.Printf("[DailyProfitJob] 关停到期投资单失败: %v", err)
	} else if expired > 0 {
		log.Printf("[DailyProfitJob] 关停 %d 个到期投资单", expired)
	}

	result := &AccrualResult{}
	batchSize := j.cfg.Business.AccrualBatchSize
	var afterID uint

	for {
		batch, err := j.investmentRepo.GetPayable(ctx, now, afterID, batchSize)
		if err != nil {
			return result, fmt.Errorf("查询待发收益投资单失败: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, inv := range batch {
			afterID = inv.ID
			err := j.payInvestment(ctx, inv, now, today)
			switch {
			case err == nil:
				result.ProcessedCount++
				result.TotalPaid += inv.DailyProfit()
			case errors.Is(err, repository.ErrProfitAlreadyPaid):
				result.SkippedCount++
			default:
				result.FailedCount++
				log.Printf("[DailyProfitJob] 发放失败，跳过: investmentNo=%s, err=%v", inv.InvestmentNo, err)
			}
		}

		if len(batch) < batchSize {
			break
		}
	}

	j.writeSettledEvent(ctx, today, now, result)

	log.Printf("[DailyProfitJob] 本轮发放 %d 单, 合计 %.2f, 跳过 %d, 失败 %d",
		result.ProcessedCount, result.TotalPaid, result.SkippedCount, result.FailedCount)

	return result, nil
}

// payInvestment 给一张投资单发当日收益
// 幂等记录、收益流水、余额入账、投资单簿记在同一个事务内
func (j *DailyProfitJob) payInvestment(ctx context.Context, inv *model.Investment, now time.Time, today string) error {
	profit := inv.DailyProfit()

	return j.db.Transaction(func(tx *gorm.DB) error {
		record := &model.ProfitRecord{
			InvestmentID: inv.ID,
			ProfitDate:   today,
			Amount:       profit,
		}
		if err := j.profitRecordRepo.Create(ctx, tx, record); err != nil {
			return err
		}

		if _, err := j.ledger.RecordInTx(ctx, tx, &service.RecordRequest{
			UserID:       inv.UserID,
			Type:         model.TxnTypeDailyProfit,
			Amount:       profit,
			Status:       model.TxnStatusCompleted,
			Description:  fmt.Sprintf("每日收益-%s-%s", today, inv.InvestmentNo),
			InvestmentID: &inv.ID,
		}); err != nil {
			return err
		}

		return j.investmentRepo.ApplyProfit(ctx, tx, inv.ID, profit, now)
	})
}

// writeSettledEvent 把本轮结算汇总写进发件箱，由 OutboxSender 投递
func (j *DailyProfitJob) writeSettledEvent(ctx context.Context, today string, now time.Time, result *AccrualResult) {
	payload, _ := json.Marshal(map[string]interface{}{
		"profit_date":     today,
		"processed_count": result.ProcessedCount,
		"total_paid":      result.TotalPaid,
		"skipped_count":   result.SkippedCount,
		"failed_count":    result.FailedCount,
		"settled_at":      now.Format(time.RFC3339),
	})

	msg := &model.OutboxMessage{
		MessageKey: today,
		Topic:      j.cfg.Kafka.Topic.ProfitSettled,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := j.outboxRepo.Create(ctx, nil, msg); err != nil {
		log.Printf("[DailyProfitJob] 写入结算事件失败: %v", err)
	}
}
