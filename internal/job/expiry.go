package job

import (
	"context"
	"log"
	"time"

	"investsystem/internal/repository"

	"gorm.io/gorm"
)

// InvestmentExpiryJob 投资单到期关停任务
// 发放任务跑前也会关停一次，这里的周期扫描保证到期单在两次发放之间也能及时下线
type InvestmentExpiryJob struct {
	db             *gorm.DB
	investmentRepo *repository.InvestmentRepository
	stopCh         chan struct{}
	interval       time.Duration
}

func NewInvestmentExpiryJob(db *gorm.DB) *InvestmentExpiryJob {
	return &InvestmentExpiryJob{
		db:             db,
		investmentRepo: repository.NewInvestmentRepository(db),
		stopCh:         make(chan struct{}),
		interval:       10 * time.Minute,
	}
}

func (j *InvestmentExpiryJob) Start(ctx context.Context) {
	log.Println("[InvestmentExpiryJob] 投资单到期任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[InvestmentExpiryJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[InvestmentExpiryJob] 任务停止")
			return
		case <-ticker.C:
			j.expireDueInvestments(ctx)
		}
	}
}

func (j *InvestmentExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *InvestmentExpiryJob) expireDueInvestments(ctx context.Context) {
	expired, err := j.investmentRepo.ExpireDue(ctx, time.Now())
	if err != nil {
		log.Printf("[InvestmentExpiryJob] 关停到期投资单失败: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[InvestmentExpiryJob] 本次关停 %d 个到期投资单", expired)
	}
}
