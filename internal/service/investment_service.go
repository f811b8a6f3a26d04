package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"investsystem/internal/config"
	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrPackageUnavailable = errors.New("投资套餐不存在或已下架")
	ErrAmountOutOfRange   = errors.New("投资金额超出套餐限额")
)

type InvestmentService struct {
	db             *gorm.DB
	cfg            *config.Config
	userRepo       *repository.UserRepository
	packageRepo    *repository.PackageRepository
	investmentRepo *repository.InvestmentRepository
	ledger         *LedgerService
}

func NewInvestmentService(db *gorm.DB, cfg *config.Config) *InvestmentService {
	return &InvestmentService{
		db:             db,
		cfg:            cfg,
		userRepo:       repository.NewUserRepository(db),
		packageRepo:    repository.NewPackageRepository(db),
		investmentRepo: repository.NewInvestmentRepository(db),
		ledger:         NewLedgerService(db),
	}
}

type OpenRequest struct {
	UserID    uint    `json:"user_id" binding:"required"`
	PackageID uint    `json:"package_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
}

type OpenResponse struct {
	Investment *model.Investment `json:"investment"`
	Balance    float64           `json:"balance"`
}

// Open 购买或追加投资
//
// 【关键点】同一用户在同一套餐下已有进行中且未到期的投资单时，
// 本金合并进已有单据（endDate 不顺延），不另开新单。
// 投资单写入、INVESTMENT 流水、余额扣减、逐级推荐奖励在同一个事务内，
// 任何一步失败全部回滚
func (s *InvestmentService) Open(ctx context.Context, req *OpenRequest) (*OpenResponse, error) {
	pkg, err := s.packageRepo.GetByID(ctx, req.PackageID)
	if err != nil {
		if errors.Is(err, repository.ErrPackageNotFound) {
			return nil, ErrPackageUnavailable
		}
		return nil, fmt.Errorf("查询套餐失败: %w", err)
	}
	if !pkg.IsActive {
		return nil, ErrPackageUnavailable
	}
	if req.Amount < pkg.MinAmount || req.Amount > pkg.MaxAmount {
		return nil, ErrAmountOutOfRange
	}

	buyer, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var inv *model.Investment

	err = s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.investmentRepo.GetActiveByUserAndPackage(ctx, tx, req.UserID, req.PackageID, now)
		if err != nil {
			return fmt.Errorf("查询进行中投资单失败: %w", err)
		}

		if existing != nil {
			// 追加投资：合并本金，endDate 不变
			if err := s.investmentRepo.AddAmount(ctx, tx, existing.ID, req.Amount); err != nil {
				return fmt.Errorf("追加本金失败: %w", err)
			}
			existing.Amount += req.Amount
			inv = existing
		} else {
			inv = &model.Investment{
				InvestmentNo: idgen.GenerateInvestmentNo(),
				UserID:       req.UserID,
				PackageID:    req.PackageID,
				Amount:       req.Amount,
				MonthlyYield: pkg.MonthlyYield, // 快照收益率，后续改套餐不影响已开单
				StartDate:    now,
				EndDate:      now.AddDate(0, 0, pkg.DurationDays),
				IsActive:     true,
			}
			if err := s.investmentRepo.Create(ctx, tx, inv); err != nil {
				return fmt.Errorf("创建投资单失败: %w", err)
			}
		}

		_, err = s.ledger.RecordInTx(ctx, tx, &RecordRequest{
			UserID:       req.UserID,
			Type:         model.TxnTypeInvestment,
			Amount:       req.Amount,
			Status:       model.TxnStatusCompleted,
			Description:  fmt.Sprintf("购买套餐-%s-%s", pkg.Name, inv.InvestmentNo),
			InvestmentID: &inv.ID,
		})
		if err != nil {
			return err
		}

		return s.payReferralBonuses(ctx, tx, buyer, req.Amount, inv)
	})

	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	return &OpenResponse{Investment: inv, Balance: balance}, nil
}

// payReferralBonuses 逐级发放推荐奖励，自直接上级起按配置的百分比递减
func (s *InvestmentService) payReferralBonuses(ctx context.Context, tx *gorm.DB, buyer *model.User, amount float64, inv *model.Investment) error {
	current := buyer
	for i, pct := range s.cfg.Business.ReferralBonusPercents {
		if current.ReferredBy == nil {
			break
		}
		parent, err := s.userRepo.GetByReferralCode(ctx, *current.ReferredBy)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				break
			}
			return fmt.Errorf("查询上级失败: %w", err)
		}

		bonus := amount * pct / 100
		if bonus > 0 && parent.IsActive {
			_, err = s.ledger.RecordInTx(ctx, tx, &RecordRequest{
				UserID:       parent.ID,
				Type:         model.TxnTypeReferralBonus,
				Amount:       bonus,
				Status:       model.TxnStatusCompleted,
				Description:  fmt.Sprintf("推荐奖励-第%d级-%s", i+1, inv.InvestmentNo),
				InvestmentID: &inv.ID,
			})
			if err != nil {
				return err
			}
		}
		current = parent
	}
	return nil
}

// GetInvestment 查询单张投资单
func (s *InvestmentService) GetInvestment(ctx context.Context, investmentID uint) (*model.Investment, error) {
	return s.investmentRepo.GetByID(ctx, investmentID)
}

func (s *InvestmentService) ListUserInvestments(ctx context.Context, userID uint, page, pageSize int) ([]*model.Investment, int64, error) {
	return s.investmentRepo.ListByUser(ctx, userID, page, pageSize)
}

func (s *InvestmentService) ListPackages(ctx context.Context) ([]*model.InvestmentPackage, error) {
	return s.packageRepo.ListActive(ctx)
}
