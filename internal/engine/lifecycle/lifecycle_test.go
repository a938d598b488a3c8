package lifecycle

import (
	"errors"
	"strings"
	"testing"

	"guildline/internal/config"
	"guildline/internal/domain"
)

const now = "2026-01-02T03:04:05Z"

var (
	admin = Requester{ActorID: "admin", Role: domain.RoleAdmin}
	alice = Requester{ActorID: "alice", Role: domain.RoleAssassin}
	bob   = Requester{ActorID: "bob", Role: domain.RoleAssassin}
	carol = Requester{ActorID: "carol", Role: domain.RoleAssassin}
)

func rules() Rules { return RulesFrom(config.Default()) }

func coins(v int64) *int64 { return &v }
func str(v string) *string { return &v }

func expectCode(t *testing.T, err error, code domain.Code) {
	t.Helper()
	if domain.CodeOf(err) != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func coinsMission(status domain.MissionStatus) domain.Mission {
	m := domain.Mission{ID: "m1", Description: "desc", Details: "details", PaymentType: domain.PaymentCoins, CoinsAmount: coins(50), Status: status, CreatedBy: "alice", CreatedAt: now}
	if status == domain.MissionAssigned || status == domain.MissionCompleted || status == domain.MissionPaid {
		m.AssignedTo = str("bob")
	}
	if status == domain.MissionCompleted {
		m.EvidenceID = str("ev-1")
		m.CompletedAt = str(now)
	}
	return m
}

func bloodDebtSubject(status domain.MissionStatus, debt domain.DebtStatus) Subject {
	m := coinsMission(status)
	m.PaymentType = domain.PaymentBloodDebt
	m.CoinsAmount = nil
	d := &domain.BloodDebt{ID: "d1", Status: debt, CreatedBy: "alice", CreatedMission: "m1"}
	if m.AssignedTo != nil {
		d.PaidTo = str("bob")
	}
	return Subject{Mission: m, Debt: d}
}

// collectionSubject is bob collecting from alice.
func collectionSubject(status domain.MissionStatus, debt domain.DebtStatus) Subject {
	m := domain.Mission{ID: "m2", Description: "collect", Details: "details", PaymentType: domain.PaymentBloodDebtCollection,
		Status: status, CreatedBy: "bob", AssignedTo: str("alice"), CreatedAt: now}
	if status == domain.MissionCompleted {
		m.EvidenceID = str("ev-2")
	}
	d := &domain.BloodDebt{ID: "d1", Status: debt, CreatedBy: "alice", PaidTo: str("bob"), CreatedMission: "m1", PaidMission: str("m2")}
	return Subject{Mission: m, Debt: d}
}

func TestCheckCompanionInvariant(t *testing.T) {
	good := []Subject{
		{Mission: coinsMission(domain.MissionCreated)},
		{Mission: coinsMission(domain.MissionPaid)},
		bloodDebtSubject(domain.MissionCreated, domain.DebtPending),
		bloodDebtSubject(domain.MissionRejected, domain.DebtRejected),
		bloodDebtSubject(domain.MissionCompleted, domain.DebtAssigned),
		bloodDebtSubject(domain.MissionPaid, domain.DebtPendingCollectionApproval),
		collectionSubject(domain.MissionCreated, domain.DebtPendingCollectionApproval),
		collectionSubject(domain.MissionAssigned, domain.DebtCompleted),
		collectionSubject(domain.MissionPaid, domain.DebtPaid),
	}
	for _, s := range good {
		if _, err := s.Check(); err != nil {
			t.Fatalf("%s/%s: unexpected error %v", s.Mission.PaymentType, s.Mission.Status, err)
		}
	}

	withDebt := Subject{Mission: coinsMission(domain.MissionCreated), Debt: &domain.BloodDebt{ID: "d9"}}
	noAmount := Subject{Mission: coinsMission(domain.MissionCreated)}
	noAmount.Mission.CoinsAmount = nil
	missingDebt := bloodDebtSubject(domain.MissionPublished, domain.DebtPending)
	missingDebt.Debt = nil
	wrongDebt := bloodDebtSubject(domain.MissionAssigned, domain.DebtPending)
	wrongHolder := bloodDebtSubject(domain.MissionAssigned, domain.DebtAssigned)
	wrongHolder.Debt.PaidTo = str("carol")
	rejectedCollection := collectionSubject(domain.MissionRejected, domain.DebtPaidInitialMission)
	publishedCollection := collectionSubject(domain.MissionPublished, domain.DebtPendingCollectionApproval)
	unassigned := Subject{Mission: coinsMission(domain.MissionAssigned)}
	unassigned.Mission.AssignedTo = nil

	bad := map[string]Subject{
		"coins with debt":        withDebt,
		"coins without amount":   noAmount,
		"blood debt missing":     missingDebt,
		"blood debt wrong state": wrongDebt,
		"wrong holder":           wrongHolder,
		"rejected collection":    rejectedCollection,
		"published collection":   publishedCollection,
		"assigned without actor": unassigned,
	}
	for name, s := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := s.Check()
			expectCode(t, err, domain.CodeInvalidState)
		})
	}
}

func TestCreateValidation(t *testing.T) {
	base := Draft{ID: "m1", DebtID: "d1", Description: "Find the ring", Details: "Deep in the vault", PaymentType: domain.PaymentCoins, CoinsAmount: coins(10)}
	cases := map[string]func(d *Draft){
		"short description": func(d *Draft) { d.Description = "ab" },
		"long description":  func(d *Draft) { d.Description = strings.Repeat("x", 51) },
		"short details":     func(d *Draft) { d.Details = "no" },
		"long details":      func(d *Draft) { d.Details = strings.Repeat("y", 501) },
		"bad payment":       func(d *Draft) { d.PaymentType = "BARTER" },
		"zero coins":        func(d *Draft) { d.CoinsAmount = coins(0) },
		"missing coins":     func(d *Draft) { d.CoinsAmount = nil },
		"coins on debt":     func(d *Draft) { d.PaymentType = domain.PaymentBloodDebt },
		"collection target": func(d *Draft) { d.PaymentType, d.CoinsAmount = domain.PaymentBloodDebtCollection, nil },
		"assignee on coins": func(d *Draft) { d.AssignedTo = "bob" },
	}
	creator := domain.Actor{ID: "alice", Coins: 100}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := base
			mutate(&d)
			_, err := Create(alice, d, rules(), creator, nil, now)
			expectCode(t, err, domain.CodeValidation)
		})
	}
	// Multi-byte characters count once.
	d := base
	d.Description = "ñandú"
	if _, err := Create(alice, d, rules(), creator, nil, now); err != nil {
		t.Fatalf("unicode description rejected: %v", err)
	}
}

func TestCreateCoins(t *testing.T) {
	d := Draft{ID: "m1", Description: "Find the ring", Details: "Deep in the vault", PaymentType: domain.PaymentCoins, CoinsAmount: coins(40)}

	_, err := Create(alice, d, rules(), domain.Actor{ID: "alice", Coins: 39}, nil, now)
	expectCode(t, err, domain.CodeInsufficientFund)

	out, err := Create(alice, d, rules(), domain.Actor{ID: "alice", Coins: 40}, nil, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.Mission.Status != domain.MissionCreated || out.Mission.PublishedAt != nil {
		t.Fatalf("assassin mission should await review: %+v", out.Mission)
	}
	if len(out.Ledger) != 1 || out.Ledger[0] != (Entry{ActorID: "alice", Amount: -40, Description: domain.TxMissionCreation}) {
		t.Fatalf("ledger = %+v", out.Ledger)
	}

	out, err = Create(admin, d, rules(), domain.Actor{ID: "admin", Coins: 100}, nil, now)
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if out.Mission.Status != domain.MissionPublished || out.Mission.PublishedAt == nil || *out.Mission.PublishedAt != now {
		t.Fatalf("admin mission should be published: %+v", out.Mission)
	}
}

func TestCreateRoleGating(t *testing.T) {
	d := Draft{ID: "m1", DebtID: "d1", Description: "Owe me one", Details: "A favour for later", PaymentType: domain.PaymentBloodDebt}
	_, err := Create(admin, d, rules(), domain.Actor{ID: "admin"}, nil, now)
	expectCode(t, err, domain.CodeForbidden)

	out, err := Create(alice, d, rules(), domain.Actor{ID: "alice"}, nil, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.NewDebt == nil || out.NewDebt.Status != domain.DebtPending || out.NewDebt.CreatedMission != "m1" || out.NewDebt.CreatedBy != "alice" {
		t.Fatalf("new debt = %+v", out.NewDebt)
	}
	if len(out.Ledger) != 0 {
		t.Fatalf("blood debt missions move no coins")
	}
}

func TestCreateCollection(t *testing.T) {
	d := Draft{ID: "m2", Description: "Pay up", Details: "Time to settle", PaymentType: domain.PaymentBloodDebtCollection, AssignedTo: "alice"}
	owed := &domain.BloodDebt{ID: "d1", Status: domain.DebtPaidInitialMission, CreatedBy: "alice", PaidTo: str("bob"), CreatedMission: "m1"}

	_, err := Create(bob, d, rules(), domain.Actor{ID: "bob"}, nil, now)
	expectCode(t, err, domain.CodeNoPendingDebt)

	_, err = Create(carol, d, rules(), domain.Actor{ID: "carol"}, owed, now)
	expectCode(t, err, domain.CodeNoPendingDebt)

	stillAssigned := *owed
	stillAssigned.Status = domain.DebtAssigned
	_, err = Create(bob, d, rules(), domain.Actor{ID: "bob"}, &stillAssigned, now)
	expectCode(t, err, domain.CodeNoPendingDebt)

	self := d
	self.AssignedTo = "bob"
	_, err = Create(bob, self, rules(), domain.Actor{ID: "bob"}, owed, now)
	expectCode(t, err, domain.CodeValidation)

	out, err := Create(bob, d, rules(), domain.Actor{ID: "bob"}, owed, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !eq(out.Mission.AssignedTo, "alice") || out.Mission.Status != domain.MissionCreated {
		t.Fatalf("mission = %+v", out.Mission)
	}
	if out.Debt == nil || out.Debt.Expected != domain.DebtPaidInitialMission || out.Debt.Debt.Status != domain.DebtPendingCollectionApproval || !eq(out.Debt.Debt.PaidMission, "m2") {
		t.Fatalf("debt change = %+v", out.Debt)
	}
	if owed.PaidMission != nil {
		t.Fatalf("input debt must not be mutated")
	}
	if _, err := (Subject{Mission: out.Mission, Debt: &out.Debt.Debt}).Check(); err != nil {
		t.Fatalf("outcome breaks invariant: %v", err)
	}
}

func TestPublish(t *testing.T) {
	_, err := Publish(alice, Subject{Mission: coinsMission(domain.MissionCreated)}, now)
	expectCode(t, err, domain.CodeForbidden)

	out, err := Publish(admin, Subject{Mission: coinsMission(domain.MissionCreated)}, now)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if out.Mission.Status != domain.MissionPublished || out.Expected != domain.MissionCreated || out.Mission.PublishedAt == nil {
		t.Fatalf("outcome = %+v", out)
	}

	_, err = Publish(admin, Subject{Mission: out.Mission}, now)
	expectCode(t, err, domain.CodeInvalidState)

	out, err = Publish(admin, collectionSubject(domain.MissionCreated, domain.DebtPendingCollectionApproval), now)
	if err != nil {
		t.Fatalf("publish collection: %v", err)
	}
	if out.Mission.Status != domain.MissionAssigned || out.Mission.AssignedAt == nil || out.Mission.PublishedAt == nil {
		t.Fatalf("collection should jump to ASSIGNED: %+v", out.Mission)
	}
	if out.Debt == nil || out.Debt.Debt.Status != domain.DebtCompleted || out.Debt.Expected != domain.DebtPendingCollectionApproval {
		t.Fatalf("debt = %+v", out.Debt)
	}

	missing := collectionSubject(domain.MissionCreated, domain.DebtPendingCollectionApproval)
	missing.Debt = nil
	_, err = Publish(admin, missing, now)
	expectCode(t, err, domain.CodeInvalidState)
}

func TestRejectCompensates(t *testing.T) {
	out, err := Reject(admin, Subject{Mission: coinsMission(domain.MissionCreated)}, now)
	if err != nil {
		t.Fatalf("reject coins: %v", err)
	}
	if len(out.Ledger) != 1 || out.Ledger[0] != (Entry{ActorID: "alice", Amount: 50, Description: domain.TxMissionRejection}) {
		t.Fatalf("refund = %+v", out.Ledger)
	}
	if out.Mission.RejectedAt == nil || out.Mission.Status != domain.MissionRejected {
		t.Fatalf("mission = %+v", out.Mission)
	}

	out, err = Reject(admin, bloodDebtSubject(domain.MissionCreated, domain.DebtPending), now)
	if err != nil {
		t.Fatalf("reject blood debt: %v", err)
	}
	if out.Debt.Debt.Status != domain.DebtRejected || len(out.Ledger) != 0 {
		t.Fatalf("outcome = %+v", out)
	}

	out, err = Reject(admin, collectionSubject(domain.MissionCreated, domain.DebtPendingCollectionApproval), now)
	if err != nil {
		t.Fatalf("reject collection: %v", err)
	}
	d := out.Debt.Debt
	if d.Status != domain.DebtPaidInitialMission || d.PaidMission != nil || !eq(d.PaidTo, "bob") {
		t.Fatalf("collection rollback = %+v", d)
	}

	_, err = Reject(admin, Subject{Mission: coinsMission(domain.MissionAssigned)}, now)
	expectCode(t, err, domain.CodeInvalidState)
	_, err = Reject(bob, Subject{Mission: coinsMission(domain.MissionCreated)}, now)
	expectCode(t, err, domain.CodeForbidden)
}

func TestAssign(t *testing.T) {
	_, err := Assign(alice, Subject{Mission: coinsMission(domain.MissionPublished)}, now)
	expectCode(t, err, domain.CodeSelfAssignment)
	_, err = Assign(admin, Subject{Mission: coinsMission(domain.MissionPublished)}, now)
	expectCode(t, err, domain.CodeForbidden)
	_, err = Assign(bob, Subject{Mission: coinsMission(domain.MissionCreated)}, now)
	expectCode(t, err, domain.CodeInvalidState)

	out, err := Assign(bob, bloodDebtSubject(domain.MissionPublished, domain.DebtPending), now)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !eq(out.Mission.AssignedTo, "bob") || out.Mission.AssignedAt == nil {
		t.Fatalf("mission = %+v", out.Mission)
	}
	if out.Debt.Debt.Status != domain.DebtAssigned || !eq(out.Debt.Debt.PaidTo, "bob") || out.Debt.Expected != domain.DebtPending {
		t.Fatalf("debt = %+v", out.Debt)
	}
}

func TestCompleteAndRejectEvidence(t *testing.T) {
	s := Subject{Mission: coinsMission(domain.MissionAssigned)}
	_, err := Complete(carol, s, "ev-9", now)
	expectCode(t, err, domain.CodeNotAssignee)
	_, err = Complete(bob, s, "", now)
	expectCode(t, err, domain.CodeValidation)

	out, err := Complete(bob, s, "ev-9", now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Mission.Status != domain.MissionCompleted || !eq(out.Mission.EvidenceID, "ev-9") || out.Mission.CompletedAt == nil {
		t.Fatalf("mission = %+v", out.Mission)
	}

	done := Subject{Mission: out.Mission}
	_, err = RejectEvidence(bob, done, now)
	expectCode(t, err, domain.CodeNotOwner)

	out, err = RejectEvidence(alice, done, now)
	if err != nil {
		t.Fatalf("reject evidence: %v", err)
	}
	if out.Mission.Status != domain.MissionAssigned || out.Mission.EvidenceID != nil || out.Mission.CompletedAt != nil || out.RemoveEvidence != "ev-9" {
		t.Fatalf("outcome = %+v", out)
	}
	if done.Mission.EvidenceID == nil {
		t.Fatalf("input mission must not be mutated")
	}
}

func TestPay(t *testing.T) {
	_, err := Pay(bob, Subject{Mission: coinsMission(domain.MissionCompleted)}, now)
	expectCode(t, err, domain.CodeNotOwner)
	_, err = Pay(alice, Subject{Mission: coinsMission(domain.MissionAssigned)}, now)
	expectCode(t, err, domain.CodeInvalidState)

	out, err := Pay(alice, Subject{Mission: coinsMission(domain.MissionCompleted)}, now)
	if err != nil {
		t.Fatalf("pay coins: %v", err)
	}
	if len(out.Ledger) != 1 || out.Ledger[0] != (Entry{ActorID: "bob", Amount: 50, Description: domain.TxMissionReward}) {
		t.Fatalf("reward = %+v", out.Ledger)
	}
	if out.Mission.PaidAt == nil || out.Mission.Status != domain.MissionPaid {
		t.Fatalf("mission = %+v", out.Mission)
	}

	out, err = Pay(alice, bloodDebtSubject(domain.MissionCompleted, domain.DebtAssigned), now)
	if err != nil {
		t.Fatalf("pay blood debt: %v", err)
	}
	if out.Debt.Debt.Status != domain.DebtPaidInitialMission {
		t.Fatalf("debt = %+v", out.Debt)
	}

	out, err = Pay(bob, collectionSubject(domain.MissionCompleted, domain.DebtCompleted), now)
	if err != nil {
		t.Fatalf("pay collection: %v", err)
	}
	if out.Debt.Debt.Status != domain.DebtPaid || out.Debt.Expected != domain.DebtCompleted {
		t.Fatalf("debt = %+v", out.Debt)
	}
	if !errors.Is(mustErr(Pay(bob, collectionSubject(domain.MissionCompleted, domain.DebtAssigned), now)), domain.ErrInvalidState) {
		t.Fatalf("collection with wrong debt state should be rejected")
	}
}

func mustErr(_ Outcome, err error) error { return err }
