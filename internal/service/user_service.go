package service

import (
	"context"
	"errors"
	"fmt"

	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/pkg/idgen"

	"gorm.io/gorm"
)

var ErrInviterNotFound = errors.New("邀请码不存在")

type UserService struct {
	db       *gorm.DB
	userRepo *repository.UserRepository
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{
		db:       db,
		userRepo: repository.NewUserRepository(db),
	}
}

type RegisterRequest struct {
	Name        string `json:"name" binding:"required"`
	InviterCode string `json:"inviter_code"`
}

// Register 注册用户并建立推荐关系
// 邀请码可为空（无上级）；新用户的邀请码由雪花ID派生，冲突时换码重试
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	var referredBy *string
	if req.InviterCode != "" {
		inviter, err := s.userRepo.GetByReferralCode(ctx, req.InviterCode)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, ErrInviterNotFound
			}
			return nil, fmt.Errorf("查询邀请人失败: %w", err)
		}
		referredBy = &inviter.ReferralCode
	}

	var user *model.User
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		user = &model.User{
			Name:         req.Name,
			ReferralCode: idgen.GenerateReferralCode(),
			ReferredBy:   referredBy,
			IsActive:     true,
		}
		err = s.userRepo.Create(ctx, user)
		if err == nil || !repository.IsDuplicateKeyErr(err) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, userID uint) (*model.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}
