package service

import (
	"context"
	"sync"
	"testing"

	"breakfastledger/internal/model"
)

func consumeReq(accountID int64, amount string) *BalanceChangeRequest {
	return &BalanceChangeRequest{
		AccountID:  accountID,
		Amount:     dec(amount),
		SourceType: model.SourceTypeOrder,
		SourceID:   1,
	}
}

func TestLedgerConsumeAndRecharge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, 1001, "50")

	steps := []struct {
		name        string
		op          func() *BalanceChangeResult
		wantSuccess bool
		wantCode    string
		wantBalance string
	}{
		{"consume 12.50", func() *BalanceChangeResult { return env.ledger.Consume(ctx, consumeReq(account.ID, "12.50")) }, true, "", "37.50"},
		{"recharge 2.5", func() *BalanceChangeResult {
			return env.ledger.Recharge(ctx, &BalanceChangeRequest{AccountID: account.ID, Amount: dec("2.5"), SourceType: model.SourceTypeAdminManual})
		}, true, "", "40.00"},
		{"consume rounds to cents", func() *BalanceChangeResult { return env.ledger.Consume(ctx, consumeReq(account.ID, "0.005")) }, true, "", "39.99"},
		{"consume exactly to zero", func() *BalanceChangeResult { return env.ledger.Consume(ctx, consumeReq(account.ID, "39.99")) }, true, "", "0.00"},
		{"overdraw rejected", func() *BalanceChangeResult { return env.ledger.Consume(ctx, consumeReq(account.ID, "0.01")) }, false, CodeInsufficientFunds, "0.00"},
		{"zero amount", func() *BalanceChangeResult { return env.ledger.Consume(ctx, consumeReq(account.ID, "0")) }, false, CodeInvalidAmount, "0.00"},
		{"negative amount", func() *BalanceChangeResult { return env.ledger.Consume(ctx, consumeReq(account.ID, "-3")) }, false, CodeInvalidAmount, "0.00"},
		{"rounds to zero", func() *BalanceChangeResult { return env.ledger.Consume(ctx, consumeReq(account.ID, "0.004")) }, false, CodeInvalidAmount, "0.00"},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			res := step.op()
			if res.Success != step.wantSuccess {
				t.Fatalf("success: got %v (%s %s), want %v", res.Success, res.ErrorCode, res.ErrorMessage, step.wantSuccess)
			}
			if res.ErrorCode != step.wantCode {
				t.Errorf("error code: got %q, want %q", res.ErrorCode, step.wantCode)
			}
			if res.Success {
				assertBalance(t, res.NewBalance, step.wantBalance)
				if res.TransactionID == 0 {
					t.Error("expected transaction id")
				}
			}
			assertBalance(t, env.reloadAccount(t, account.ID).Balance, step.wantBalance)
		})
	}

	env.assertLedgerConsistent(t, account.ID)

	list := env.transactions(t, account.ID)
	if len(list) != 5 {
		t.Fatalf("transactions: got %d, want 5", len(list))
	}
	last := list[len(list)-1]
	if last.Type != model.TransactionTypeConsume || last.Direction != model.DirectionOut {
		t.Errorf("last transaction: type=%s direction=%d", last.Type, last.Direction)
	}
	if !last.Amount.Equal(dec("39.99")) {
		t.Errorf("last amount: got %s", last.Amount)
	}
}

func TestLedgerCreditLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, 1002, "5")
	if err := env.db.Model(&model.Account{}).Where("id = ?", account.ID).Update("credit_limit", dec("20")).Error; err != nil {
		t.Fatal(err)
	}

	res := env.ledger.Consume(ctx, consumeReq(account.ID, "25"))
	if !res.Success {
		t.Fatalf("consume within credit limit failed: %s", res.ErrorCode)
	}
	assertBalance(t, res.NewBalance, "-20")

	res = env.ledger.Consume(ctx, consumeReq(account.ID, "0.01"))
	if res.Success || res.ErrorCode != CodeInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got success=%v code=%s", res.Success, res.ErrorCode)
	}
	env.assertLedgerConsistent(t, account.ID)
}

func TestLedgerAccountNotAvailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, 1003, "30")
	if err := env.accounts.accountRepo.UpdateStatus(ctx, account.ID, model.AccountStatusInactive); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		op       func() *BalanceChangeResult
		wantCode string
	}{
		{"consume missing account", func() *BalanceChangeResult { return env.ledger.Consume(ctx, consumeReq(99999, "1")) }, CodeAccountNotAvailable},
		{"consume inactive account", func() *BalanceChangeResult { return env.ledger.Consume(ctx, consumeReq(account.ID, "1")) }, CodeAccountNotAvailable},
		{"recharge inactive account", func() *BalanceChangeResult {
			return env.ledger.Recharge(ctx, &BalanceChangeRequest{AccountID: account.ID, Amount: dec("1"), SourceType: model.SourceTypeAdminManual})
		}, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.op()
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.ErrorCode != tt.wantCode {
				t.Errorf("error code: got %s, want %s", res.ErrorCode, tt.wantCode)
			}
		})
	}

	assertBalance(t, env.reloadAccount(t, account.ID).Balance, "30")
	if n := len(env.transactions(t, account.ID)); n != 1 {
		t.Errorf("transactions: got %d, want 1", n)
	}
}

func TestLedgerConcurrentConsume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, 1004, "15")

	results := make([]*BalanceChangeResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.ledger.Consume(ctx, consumeReq(account.ID, "10"))
		}(i)
	}
	wg.Wait()

	success, insufficient := 0, 0
	for _, res := range results {
		switch {
		case res.Success:
			success++
		case res.ErrorCode == CodeInsufficientFunds:
			insufficient++
		default:
			t.Errorf("unexpected result: %s %s", res.ErrorCode, res.ErrorMessage)
		}
	}
	if success != 1 || insufficient != 1 {
		t.Fatalf("got %d success / %d insufficient, want 1 / 1", success, insufficient)
	}
	assertBalance(t, env.reloadAccount(t, account.ID).Balance, "5")
	env.assertLedgerConsistent(t, account.ID)
}

func TestLedgerThresholdEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, 1005, "30")

	steps := []struct {
		name       string
		consume    string
		recharge   string
		wantEvents []string
	}{
		{"30 -> 25 stays on threshold", "5", "", nil},
		{"25 -> 20 crosses reminder", "5", "", []string{model.RiskEventLowBalance}},
		{"20 -> 19 already below", "1", "", nil},
		{"recharge never fires", "", "11", nil},
		{"30 -> 2 crosses both", "28", "", []string{model.RiskEventLowBalance, model.RiskEventDangerBalance}},
		{"2 -> 1 already below both", "1", "", nil},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			var res *BalanceChangeResult
			if step.consume != "" {
				res = env.ledger.Consume(ctx, consumeReq(account.ID, step.consume))
			} else {
				res = env.ledger.Recharge(ctx, &BalanceChangeRequest{AccountID: account.ID, Amount: dec(step.recharge), SourceType: model.SourceTypeAdminManual})
			}
			if !res.Success {
				t.Fatalf("operation failed: %s", res.ErrorCode)
			}
			if len(res.RiskEvents) != len(step.wantEvents) {
				t.Fatalf("risk events: got %d, want %d", len(res.RiskEvents), len(step.wantEvents))
			}
			for i, ev := range res.RiskEvents {
				if ev.Type != step.wantEvents[i] {
					t.Errorf("event %d: got %s, want %s", i, ev.Type, step.wantEvents[i])
				}
			}
		})
	}

	events := env.riskEvents(t, account.ID)
	if len(events) != 3 {
		t.Fatalf("stored risk events: got %d, want 3", len(events))
	}
	if events[0].Level != model.RiskLevelReminder || events[2].Level != model.RiskLevelDanger {
		t.Errorf("levels: got %d/%d", events[0].Level, events[2].Level)
	}

	notifications, err := env.notification.ListNotifications(ctx, account.OwnerUserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(notifications) != 3 {
		t.Fatalf("notifications: got %d, want 3", len(notifications))
	}

	var outbox []*model.OutboxMessage
	if err := env.db.Order("id ASC").Find(&outbox).Error; err != nil {
		t.Fatal(err)
	}
	if len(outbox) != 3 {
		t.Fatalf("outbox messages: got %d, want 3", len(outbox))
	}
	for _, msg := range outbox {
		if msg.Topic != "breakfast-notification" || msg.MessageKey != "1005" || msg.Status != model.OutboxStatusPending {
			t.Errorf("outbox message: topic=%s key=%s status=%s", msg.Topic, msg.MessageKey, msg.Status)
		}
	}
}

func TestLedgerFailedConsumeLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, 1006, "26")

	// 余额不足时即便会穿越阈值也不能留下风险事件
	res := env.ledger.Consume(ctx, consumeReq(account.ID, "27"))
	if res.Success {
		t.Fatal("expected failure")
	}
	if n := len(env.riskEvents(t, account.ID)); n != 0 {
		t.Errorf("risk events: got %d, want 0", n)
	}
	if n := len(env.transactions(t, account.ID)); n != 1 {
		t.Errorf("transactions: got %d, want 1", n)
	}
}
