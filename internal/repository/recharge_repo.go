package repository

import (
	"context"
	"errors"
	"time"

	"breakfastledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRechargeRequestNotFound = errors.New("充值申请不存在")
	ErrRechargeNotPending      = errors.New("充值申请已处理")
)

type RechargeRepository struct {
	db *gorm.DB
}

func NewRechargeRepository(db *gorm.DB) *RechargeRepository {
	return &RechargeRepository{db: db}
}

func (r *RechargeRepository) Create(ctx context.Context, req *model.RechargeRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *RechargeRepository) GetByID(ctx context.Context, id int64) (*model.RechargeRequest, error) {
	var req model.RechargeRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRechargeRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *RechargeRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.RechargeRequest, error) {
	var req model.RechargeRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRechargeRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// MarkReviewed pending -> approved / rejected，只更新仍为 pending 的申请
func (r *RechargeRepository) MarkReviewed(ctx context.Context, tx *gorm.DB, id int64, status string, reviewerID int64, comment string, transactionID *int64) error {
	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.RechargeRequest{}).
		Where("id = ? AND status = ?", id, model.RechargeStatusPending).
		Updates(map[string]interface{}{
			"status":           status,
			"reviewer_user_id": reviewerID,
			"review_time":      &now,
			"review_comment":   comment,
			"transaction_id":   transactionID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRechargeNotPending
	}
	return nil
}

// List 按状态分页查询，status 为空时查询全部
func (r *RechargeRepository) List(ctx context.Context, status string, page, pageSize int) ([]*model.RechargeRequest, int64, error) {
	var list []*model.RechargeRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RechargeRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error

	return list, total, err
}
