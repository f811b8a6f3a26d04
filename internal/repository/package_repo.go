package repository

import (
	"context"
	"errors"

	"investsystem/internal/model"

	"gorm.io/gorm"
)

var ErrPackageNotFound = errors.New("投资套餐不存在")

type PackageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) Create(ctx context.Context, pkg *model.InvestmentPackage) error {
	return r.db.WithContext(ctx).Create(pkg).Error
}

func (r *PackageRepository) GetByID(ctx context.Context, packageID uint) (*model.InvestmentPackage, error) {
	var pkg model.InvestmentPackage
	err := r.db.WithContext(ctx).Where("id = ?", packageID).First(&pkg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

func (r *PackageRepository) ListActive(ctx context.Context) ([]*model.InvestmentPackage, error) {
	var pkgs []*model.InvestmentPackage
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("min_amount ASC").
		Find(&pkgs).Error
	return pkgs, err
}
