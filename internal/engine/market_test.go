package engine_test

import (
	"testing"

	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/repo"
)

func TestPurchaseInformation(t *testing.T) {
	env := newTestEnv(t)
	a := env.actor(t, "alice", domain.RoleAssassin, 250)
	b := env.actor(t, "bruno", domain.RoleAssassin, 0)
	poor := env.actor(t, "pablo", domain.RoleAssassin, 99)

	_, err := env.Engine.PurchaseInformation(env.Ctx, a, a.ActorID)
	expectCode(t, err, domain.CodeSelfPurchase)
	_, err = env.Engine.PurchaseInformation(env.Ctx, a, "nobody")
	expectCode(t, err, domain.CodeNotFound)

	listing, err := env.Engine.ListAssassins(env.Ctx, a, engine.AssassinQuery{Alias: "bruno"})
	if err != nil || len(listing) != 1 {
		t.Fatalf("listing = %+v, %v", listing, err)
	}
	if listing[0].Name != engine.MaskedName || *listing[0].IsPurchased || listing[0].Email != "" {
		t.Fatalf("unpurchased listing leaks identity: %+v", listing[0])
	}

	tx, err := env.Engine.PurchaseInformation(env.Ctx, a, b.ActorID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if tx.Amount != -100 || tx.Description != domain.TxInformationPurchase || tx.Type != domain.TransactionOutcome {
		t.Fatalf("transaction = %+v", tx)
	}
	_, err = env.Engine.PurchaseInformation(env.Ctx, a, b.ActorID)
	expectCode(t, err, domain.CodeAlreadyPurchased)
	if got := env.balance(t, a); got != 150 {
		t.Fatalf("balance = %d, want 150", got)
	}
	if got := len(env.transactions(t, a, domain.TxInformationPurchase)); got != 1 {
		t.Fatalf("purchase transactions = %d", got)
	}

	listing, _ = env.Engine.ListAssassins(env.Ctx, a, engine.AssassinQuery{Alias: "bruno"})
	if listing[0].Name != "bruno" || !*listing[0].IsPurchased {
		t.Fatalf("purchased listing = %+v", listing[0])
	}

	_, err = env.Engine.PurchaseInformation(env.Ctx, poor, b.ActorID)
	expectCode(t, err, domain.CodeInsufficientFund)
	if got := env.balance(t, poor); got != 99 {
		t.Fatalf("failed purchase moved coins: %d", got)
	}
	listing, _ = env.Engine.ListAssassins(env.Ctx, poor, engine.AssassinQuery{Alias: "bruno"})
	if listing[0].Name != engine.MaskedName {
		t.Fatalf("failed purchase revealed the name")
	}
}

func TestListAssassinsVisibility(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(t, "admin", domain.RoleAdmin, 0)
	a := env.actor(t, "alice", domain.RoleAssassin, 0)
	b := env.actor(t, "bruno", domain.RoleAssassin, 0)
	gone := env.actor(t, "gina", domain.RoleAssassin, 0)
	if _, err := env.Engine.SetActorStatus(env.Ctx, admin, gone.ActorID, domain.ActorInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	seen, err := env.Engine.ListAssassins(env.Ctx, a, engine.AssassinQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(seen) != 1 || seen[0].ID != b.ActorID {
		t.Fatalf("alice sees %+v", seen)
	}

	all, err := env.Engine.ListAssassins(env.Ctx, admin, engine.AssassinQuery{})
	if err != nil || len(all) != 3 {
		t.Fatalf("admin sees %+v, %v", all, err)
	}
	for _, l := range all {
		if l.Name == engine.MaskedName || l.Email == "" || l.IsPurchased != nil {
			t.Fatalf("admin listing is masked: %+v", l)
		}
	}
	inactive, _ := env.Engine.ListAssassins(env.Ctx, admin, engine.AssassinQuery{Status: domain.ActorInactive})
	if len(inactive) != 1 || inactive[0].ID != gone.ActorID {
		t.Fatalf("inactive filter = %+v", inactive)
	}
	byEmail, _ := env.Engine.ListAssassins(env.Ctx, admin, engine.AssassinQuery{Email: "bruno@"})
	if len(byEmail) != 1 || byEmail[0].ID != b.ActorID {
		t.Fatalf("email filter = %+v", byEmail)
	}
	page, _ := env.Engine.ListAssassins(env.Ctx, admin, engine.AssassinQuery{Page: repo.Page{Limit: 2}})
	if len(page) != 2 {
		t.Fatalf("limit ignored: %d", len(page))
	}
}

func TestBuyAndSellCoins(t *testing.T) {
	env := newTestEnv(t)
	a := env.actor(t, "alice", domain.RoleAssassin, 0)

	_, err := env.Engine.BuyCoins(env.Ctx, a, 0)
	expectCode(t, err, domain.CodeValidation)

	trade, err := env.Engine.BuyCoins(env.Ctx, a, 40)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if trade.Balance != 40 || trade.Money != 40*env.Engine.Config.Economy.MoneyPerCoin || trade.Transaction.Type != domain.TransactionIncome {
		t.Fatalf("buy trade = %+v", trade)
	}

	_, err = env.Engine.SellCoins(env.Ctx, a, 41)
	expectCode(t, err, domain.CodeInsufficientFund)

	trade, err = env.Engine.SellCoins(env.Ctx, a, 15)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if trade.Balance != 25 || trade.Transaction.Amount != -15 || trade.Transaction.Description != domain.TxCoinSell {
		t.Fatalf("sell trade = %+v", trade)
	}
	txs := env.transactions(t, a, "")
	if len(txs) != 2 || txs[0].Description != domain.TxCoinSell || txs[1].Description != domain.TxCoinPurchase {
		t.Fatalf("ledger = %+v", txs)
	}
	if got := env.balance(t, a); got != 25 {
		t.Fatalf("balance = %d", got)
	}
}

func TestListTransactionsAccess(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(t, "admin", domain.RoleAdmin, 0)
	a := env.actor(t, "alice", domain.RoleAssassin, 10)
	b := env.actor(t, "bruno", domain.RoleAssassin, 0)

	_, err := env.Engine.ListTransactions(env.Ctx, b, engine.TransactionQuery{UserID: a.ActorID})
	expectCode(t, err, domain.CodeForbidden)
	txs, err := env.Engine.ListTransactions(env.Ctx, admin, engine.TransactionQuery{UserID: a.ActorID})
	if err != nil || len(txs) != 1 || txs[0].UserID != a.ActorID {
		t.Fatalf("admin view = %+v, %v", txs, err)
	}
	_, err = env.Engine.ListEvents(env.Ctx, b, repo.EventFilters{})
	expectCode(t, err, domain.CodeForbidden)
}

func TestListDebtsBySide(t *testing.T) {
	env := newTestEnv(t)
	admin := env.actor(t, "admin", domain.RoleAdmin, 0)
	a := env.actor(t, "alice", domain.RoleAssassin, 0)
	b := env.actor(t, "bruno", domain.RoleAssassin, 0)

	m, _ := env.Engine.CreateMission(env.Ctx, a, debtInput())
	env.Engine.PublishMission(env.Ctx, admin, m.ID)
	if _, err := env.Engine.AssignMission(env.Ctx, b, m.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	owing, err := env.Engine.ListDebts(env.Ctx, a, engine.DebtQuery{Side: engine.DebtsOwing})
	if err != nil || len(owing) != 1 || owing[0].CreatedMission != m.ID {
		t.Fatalf("owing = %+v, %v", owing, err)
	}
	owed, _ := env.Engine.ListDebts(env.Ctx, b, engine.DebtQuery{Side: engine.DebtsOwedTo})
	if len(owed) != 1 || owed[0].ID != owing[0].ID {
		t.Fatalf("owed = %+v", owed)
	}
	none, _ := env.Engine.ListDebts(env.Ctx, b, engine.DebtQuery{Side: engine.DebtsOwing})
	if len(none) != 0 {
		t.Fatalf("bruno owes %+v", none)
	}
	_, err = env.Engine.ListDebts(env.Ctx, b, engine.DebtQuery{ActorID: a.ActorID})
	expectCode(t, err, domain.CodeForbidden)
	all, _ := env.Engine.ListDebts(env.Ctx, admin, engine.DebtQuery{Status: domain.DebtAssigned})
	if len(all) != 1 {
		t.Fatalf("admin debts = %+v", all)
	}
}
