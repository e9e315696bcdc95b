package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"breakfastledger/internal/infrastructure/logger"
	"breakfastledger/internal/model"
	"breakfastledger/internal/repository"

	"gorm.io/gorm"
)

func TestCrossedDown(t *testing.T) {
	tests := []struct {
		from, to, threshold string
		want                bool
	}{
		{"30", "20", "25", true},
		{"25", "24.99", "25", true},
		{"30", "25", "25", false},
		{"20", "19", "25", false},
		{"19", "30", "25", false},
		{"3", "2.99", "3", true},
		{"0", "-5", "0", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s@%s", tt.from, tt.to, tt.threshold), func(t *testing.T) {
			if got := CrossedDown(dec(tt.from), dec(tt.to), dec(tt.threshold)); got != tt.want {
				t.Errorf("CrossedDown = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckThresholdsWithoutOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	risk := NewRiskService(env.db, env.notification, logger.Discard())

	account := &model.Account{
		Type:              model.AccountTypeClass,
		OwnerUserID:       0,
		Name:              "班级账户",
		Balance:           dec("30"),
		ReminderThreshold: dec("25"),
		DangerThreshold:   dec("3"),
		Status:            model.AccountStatusActive,
	}
	if err := env.db.Create(account).Error; err != nil {
		t.Fatal(err)
	}

	var events []*model.RiskEvent
	err := env.db.Transaction(func(tx *gorm.DB) error {
		var err error
		events, err = risk.CheckThresholds(ctx, tx, account, dec("30"), dec("1"))
		return err
	})
	if err != nil {
		t.Fatalf("CheckThresholds: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events: got %d, want 2", len(events))
	}
	if events[0].Message != "余额低于提醒阈值 25.00，当前余额 1.00" {
		t.Errorf("message: %s", events[0].Message)
	}
	if events[1].Message != "余额低于危急阈值 3.00，当前余额 1.00" {
		t.Errorf("message: %s", events[1].Message)
	}

	var notifications int64
	env.db.Model(&model.Notification{}).Count(&notifications)
	if notifications != 0 {
		t.Errorf("notifications: got %d, want 0", notifications)
	}
}

func TestNotificationFailureKeepsBalanceChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, 5001, "30")

	// 通知表不可写，通知在保存点中失败
	if err := env.db.Migrator().DropTable(&model.Notification{}); err != nil {
		t.Fatal(err)
	}

	res := env.ledger.Consume(ctx, &BalanceChangeRequest{
		AccountID: account.ID, Amount: dec("10"), SourceType: model.SourceTypeOrder, SourceID: 1,
	})
	if !res.Success {
		t.Fatalf("consume: %s %s", res.ErrorCode, res.ErrorMessage)
	}
	assertBalance(t, res.NewBalance, "20")
	assertBalance(t, env.reloadAccount(t, account.ID).Balance, "20")
	env.assertLedgerConsistent(t, account.ID)

	if len(res.RiskEvents) != 1 || res.RiskEvents[0].Type != model.RiskEventLowBalance {
		t.Fatalf("result risk events: %+v", res.RiskEvents)
	}
	if stored := env.riskEvents(t, account.ID); len(stored) != 1 {
		t.Errorf("stored risk events: got %d, want 1", len(stored))
	}

	var outbox int64
	env.db.Model(&model.OutboxMessage{}).Count(&outbox)
	if outbox != 0 {
		t.Errorf("outbox messages: got %d, want 0", outbox)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNotFound, CodeNotFound},
		{ErrRechargeNotReviewable, CodeNotFound},
		{fmt.Errorf("%w: 非班级账户操作人", ErrForbidden), CodeForbidden},
		{ErrClassOrderLimit, CodeClassOrderLimitExceeded},
		{ErrInvalidAmount, CodeInvalidAmount},
		{ErrCreditLimitViolated, CodeInsufficientFunds},
		{ErrEmptyItems, CodeInvalidParam},
		{repository.ErrAccountNotFound, CodeInternalError},
		{errors.New("boom"), CodeInternalError},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf = %s, want %s", got, tt.want)
			}
		})
	}
}
