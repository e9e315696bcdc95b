package repository

import (
	"context"

	"breakfastledger/internal/model"

	"gorm.io/gorm"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ResolveEnabled 一次查询解析商品，只返回启用的商品
func (r *ProductRepository) ResolveEnabled(ctx context.Context, ids []int64) (map[int64]*model.Product, error) {
	result := make(map[int64]*model.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("id IN ? AND enabled = ?", ids, true).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}
