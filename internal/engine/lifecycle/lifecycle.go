// Package lifecycle decides mission transitions. Functions here never touch
// storage: they take the current mission, its paired blood debt and the
// requester, and return the new states plus the ledger effects to apply.
package lifecycle

import (
	"unicode/utf8"

	"guildline/internal/config"
	"guildline/internal/domain"
)

type Requester struct {
	ActorID string
	Role    domain.Role
}

func (r Requester) IsAdmin() bool { return r.Role == domain.RoleAdmin }

// Entry is one ledger movement; negative amounts are debits.
type Entry struct {
	ActorID     string
	Amount      int64
	Description domain.TransactionDescription
}

// DebtChange is an update to an existing debt guarded by its prior status.
type DebtChange struct {
	Debt     domain.BloodDebt
	Expected domain.DebtStatus
}

type Notice struct {
	ActorID string
	Subject string
	Body    string
}

type Event struct {
	Type    string
	Payload map[string]any
}

// Outcome is everything a transition writes. Expected is the mission status
// the update is conditional on; it is empty for a freshly created mission.
type Outcome struct {
	Mission        domain.Mission
	Expected       domain.MissionStatus
	Debt           *DebtChange
	NewDebt        *domain.BloodDebt
	Ledger         []Entry
	Event          Event
	Notices        []Notice
	RemoveEvidence string
}

// Rules are the guild settings that shape mission creation.
type Rules struct {
	Description config.Bounds
	Details     config.Bounds
}

func RulesFrom(cfg *config.Config) Rules {
	return Rules{Description: cfg.Missions.Description, Details: cfg.Missions.Details}
}

// Draft is a mission creation request. IDs are chosen by the caller.
type Draft struct {
	ID          string
	DebtID      string
	Description string
	Details     string
	PaymentType domain.PaymentType
	CoinsAmount *int64
	// AssignedTo names the debtor of a collection mission.
	AssignedTo string
}

func (d Draft) validate(rules Rules) error {
	if n := utf8.RuneCountInString(d.Description); !rules.Description.Contains(n) {
		return domain.Validation("description must be %d-%d characters", rules.Description.Min, rules.Description.Max).
			WithDetails(map[string]any{"field": "description", "length": n})
	}
	if n := utf8.RuneCountInString(d.Details); !rules.Details.Contains(n) {
		return domain.Validation("details must be %d-%d characters", rules.Details.Min, rules.Details.Max).
			WithDetails(map[string]any{"field": "details", "length": n})
	}
	if !d.PaymentType.Valid() {
		return domain.Validation("payment type %q is not supported", d.PaymentType).
			WithDetails(map[string]any{"field": "payment_type"})
	}
	if d.PaymentType == domain.PaymentCoins {
		if d.CoinsAmount == nil || *d.CoinsAmount <= 0 {
			return domain.Validation("coins amount must be a positive integer").WithDetails(map[string]any{"field": "coins_amount"})
		}
	} else if d.CoinsAmount != nil {
		return domain.Validation("coins amount is only allowed for COINS missions").WithDetails(map[string]any{"field": "coins_amount"})
	}
	if d.PaymentType == domain.PaymentBloodDebtCollection {
		if d.AssignedTo == "" {
			return domain.Validation("assigned_to is required to collect a blood debt").WithDetails(map[string]any{"field": "assigned_to"})
		}
	} else if d.AssignedTo != "" {
		return domain.Validation("assigned_to is only allowed for BLOOD_DEBT_COLLECTION missions").WithDetails(map[string]any{"field": "assigned_to"})
	}
	return nil
}

func stamp(now string) *string {
	v := now
	return &v
}

func missionEvent(op string, m domain.Mission, extra map[string]any) Event {
	payload := map[string]any{"status": m.Status, "payment_type": m.PaymentType}
	for k, v := range extra {
		payload[k] = v
	}
	return Event{Type: "mission." + op, Payload: payload}
}

// Create decides a new mission. creator is the requester's directory record;
// collectable is the debt the requester may collect from d.AssignedTo, or nil.
func Create(req Requester, d Draft, rules Rules, creator domain.Actor, collectable *domain.BloodDebt, now string) (Outcome, error) {
	if req.IsAdmin() && d.PaymentType != domain.PaymentCoins && d.PaymentType.Valid() {
		return Outcome{}, domain.Forbidden("administrators may only create COINS missions")
	}
	if err := d.validate(rules); err != nil {
		return Outcome{}, err
	}
	m := domain.Mission{
		ID:          d.ID,
		Description: d.Description,
		Details:     d.Details,
		PaymentType: d.PaymentType,
		CoinsAmount: d.CoinsAmount,
		Status:      domain.MissionCreated,
		CreatedBy:   req.ActorID,
		CreatedAt:   now,
	}
	if req.IsAdmin() {
		m.Status = domain.MissionPublished
		m.PublishedAt = stamp(now)
	}
	out := Outcome{Mission: m}
	switch d.PaymentType {
	case domain.PaymentCoins:
		amount := *d.CoinsAmount
		if creator.Coins < amount {
			return Outcome{}, domain.Errorf(domain.CodeInsufficientFund, "insufficient coins: balance %d, required %d", creator.Coins, amount).
				WithDetails(map[string]any{"balance": creator.Coins, "required": amount})
		}
		out.Ledger = []Entry{{ActorID: req.ActorID, Amount: -amount, Description: domain.TxMissionCreation}}
	case domain.PaymentBloodDebt:
		out.NewDebt = &domain.BloodDebt{
			ID:             d.DebtID,
			Status:         domain.DebtPending,
			CreatedBy:      req.ActorID,
			CreatedMission: m.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	case domain.PaymentBloodDebtCollection:
		if d.AssignedTo == req.ActorID {
			return Outcome{}, domain.Validation("cannot collect a blood debt from yourself").WithDetails(map[string]any{"field": "assigned_to"})
		}
		if collectable == nil || collectable.CreatedBy != d.AssignedTo || !eq(collectable.PaidTo, req.ActorID) ||
			collectable.Status != domain.DebtPaidInitialMission {
			return Outcome{}, domain.Errorf(domain.CodeNoPendingDebt, "no blood debt owed by %s to collect", d.AssignedTo).
				WithDetails(map[string]any{"debtor": d.AssignedTo})
		}
		m.AssignedTo = stamp(d.AssignedTo)
		out.Mission = m
		debt := *collectable
		debt.Status = domain.DebtPendingCollectionApproval
		debt.PaidMission = stamp(m.ID)
		debt.UpdatedAt = now
		out.Debt = &DebtChange{Debt: debt, Expected: domain.DebtPaidInitialMission}
		out.Notices = append(out.Notices, Notice{
			ActorID: d.AssignedTo,
			Subject: "A blood debt is being collected",
			Body:    "A collection mission naming you is awaiting guild approval: " + m.Description,
		})
	}
	extra := map[string]any{}
	if out.NewDebt != nil {
		extra["debt_id"] = out.NewDebt.ID
	}
	if out.Debt != nil {
		extra["debt_id"] = out.Debt.Debt.ID
	}
	out.Event = missionEvent("create", out.Mission, extra)
	return out, nil
}

// begin runs the checks every transition on an existing mission shares.
func begin(s Subject, from domain.MissionStatus, op string) (Payment, error) {
	p, err := s.Check()
	if err != nil {
		return nil, err
	}
	if s.Mission.Status != from {
		return nil, domain.InvalidState("cannot %s mission %s in status %s", op, s.Mission.ID, s.Mission.Status).
			WithDetails(map[string]any{"mission_id": s.Mission.ID, "status": s.Mission.Status, "expected": from})
	}
	return p, nil
}

func debtMoved(s Subject, status domain.DebtStatus, now string) *DebtChange {
	d := *s.Debt
	expected := d.Status
	d.Status = status
	d.UpdatedAt = now
	return &DebtChange{Debt: d, Expected: expected}
}

func debtExtra(c *DebtChange) map[string]any {
	if c == nil {
		return nil
	}
	return map[string]any{"debt_id": c.Debt.ID, "debt_status": c.Debt.Status}
}

func Publish(req Requester, s Subject, now string) (Outcome, error) {
	if !req.IsAdmin() {
		return Outcome{}, domain.Forbidden("only administrators may publish missions")
	}
	p, err := begin(s, domain.MissionCreated, "publish")
	if err != nil {
		return Outcome{}, err
	}
	m := s.Mission
	m.PublishedAt = stamp(now)
	out := Outcome{Expected: s.Mission.Status}
	if c, ok := p.(CollectionPayment); ok {
		m.Status = domain.MissionAssigned
		m.AssignedAt = stamp(now)
		out.Debt = debtMoved(s, domain.DebtCompleted, now)
		out.Notices = []Notice{{
			ActorID: c.Debtor,
			Subject: "Blood debt collection approved",
			Body:    "You have been assigned a mission to settle your blood debt: " + m.Description,
		}}
	} else {
		m.Status = domain.MissionPublished
	}
	out.Notices = append(out.Notices, Notice{ActorID: m.CreatedBy, Subject: "Mission approved", Body: "Your mission was approved: " + m.Description})
	out.Mission = m
	out.Event = missionEvent("publish", m, debtExtra(out.Debt))
	return out, nil
}

func Reject(req Requester, s Subject, now string) (Outcome, error) {
	if !req.IsAdmin() {
		return Outcome{}, domain.Forbidden("only administrators may reject missions")
	}
	p, err := begin(s, domain.MissionCreated, "reject")
	if err != nil {
		return Outcome{}, err
	}
	m := s.Mission
	m.Status = domain.MissionRejected
	m.RejectedAt = stamp(now)
	out := Outcome{Expected: s.Mission.Status}
	switch p := p.(type) {
	case CoinsPayment:
		out.Ledger = []Entry{{ActorID: m.CreatedBy, Amount: p.Amount, Description: domain.TxMissionRejection}}
	case BloodDebtPayment:
		out.Debt = debtMoved(s, domain.DebtRejected, now)
	case CollectionPayment:
		out.Debt = debtMoved(s, domain.DebtPaidInitialMission, now)
		out.Debt.Debt.PaidMission = nil
	}
	out.Mission = m
	out.Notices = []Notice{{ActorID: m.CreatedBy, Subject: "Mission rejected", Body: "Your mission was rejected: " + m.Description}}
	out.Event = missionEvent("reject", m, debtExtra(out.Debt))
	return out, nil
}

func Assign(req Requester, s Subject, now string) (Outcome, error) {
	if req.Role != domain.RoleAssassin {
		return Outcome{}, domain.Forbidden("only assassins may take missions")
	}
	p, err := begin(s, domain.MissionPublished, "assign")
	if err != nil {
		return Outcome{}, err
	}
	if s.Mission.CreatedBy == req.ActorID {
		return Outcome{}, domain.Errorf(domain.CodeSelfAssignment, "cannot take your own mission")
	}
	m := s.Mission
	m.Status = domain.MissionAssigned
	m.AssignedTo = stamp(req.ActorID)
	m.AssignedAt = stamp(now)
	out := Outcome{Mission: m, Expected: s.Mission.Status}
	if _, ok := p.(BloodDebtPayment); ok {
		out.Debt = debtMoved(s, domain.DebtAssigned, now)
		out.Debt.Debt.PaidTo = stamp(req.ActorID)
	}
	out.Notices = []Notice{{ActorID: m.CreatedBy, Subject: "Mission taken", Body: "An assassin has taken your mission: " + m.Description}}
	out.Event = missionEvent("assign", m, debtExtra(out.Debt))
	return out, nil
}

// Complete records evidenceRef as proof of the assignee's work.
func Complete(req Requester, s Subject, evidenceRef, now string) (Outcome, error) {
	if _, err := begin(s, domain.MissionAssigned, "complete"); err != nil {
		return Outcome{}, err
	}
	if !eq(s.Mission.AssignedTo, req.ActorID) {
		return Outcome{}, domain.Errorf(domain.CodeNotAssignee, "only the assigned assassin may complete mission %s", s.Mission.ID)
	}
	if evidenceRef == "" {
		return Outcome{}, domain.Validation("evidence is required").WithDetails(map[string]any{"field": "evidence"})
	}
	m := s.Mission
	m.Status = domain.MissionCompleted
	m.EvidenceID = stamp(evidenceRef)
	m.CompletedAt = stamp(now)
	return Outcome{
		Mission:  m,
		Expected: s.Mission.Status,
		Notices:  []Notice{{ActorID: m.CreatedBy, Subject: "Mission completed", Body: "Evidence was submitted for your mission: " + m.Description}},
		Event:    missionEvent("complete", m, map[string]any{"evidence_id": evidenceRef}),
	}, nil
}

func RejectEvidence(req Requester, s Subject, now string) (Outcome, error) {
	if _, err := begin(s, domain.MissionCompleted, "reject evidence of"); err != nil {
		return Outcome{}, err
	}
	if s.Mission.CreatedBy != req.ActorID {
		return Outcome{}, domain.Errorf(domain.CodeNotOwner, "only the creator may review mission %s", s.Mission.ID)
	}
	m := s.Mission
	var removed string
	if m.EvidenceID != nil {
		removed = *m.EvidenceID
	}
	m.Status = domain.MissionAssigned
	m.EvidenceID = nil
	m.CompletedAt = nil
	return Outcome{
		Mission:        m,
		Expected:       s.Mission.Status,
		RemoveEvidence: removed,
		Notices:        []Notice{{ActorID: *m.AssignedTo, Subject: "Evidence rejected", Body: "Your evidence was rejected, the mission is back in your hands: " + m.Description}},
		Event:          missionEvent("reject_evidence", m, map[string]any{"evidence_id": removed}),
	}, nil
}

func Pay(req Requester, s Subject, now string) (Outcome, error) {
	p, err := begin(s, domain.MissionCompleted, "pay")
	if err != nil {
		return Outcome{}, err
	}
	if s.Mission.CreatedBy != req.ActorID {
		return Outcome{}, domain.Errorf(domain.CodeNotOwner, "only the creator may pay mission %s", s.Mission.ID)
	}
	m := s.Mission
	m.Status = domain.MissionPaid
	m.PaidAt = stamp(now)
	out := Outcome{Mission: m, Expected: s.Mission.Status}
	switch p := p.(type) {
	case CoinsPayment:
		out.Ledger = []Entry{{ActorID: *m.AssignedTo, Amount: p.Amount, Description: domain.TxMissionReward}}
	case BloodDebtPayment:
		out.Debt = debtMoved(s, domain.DebtPaidInitialMission, now)
	case CollectionPayment:
		out.Debt = debtMoved(s, domain.DebtPaid, now)
	}
	out.Notices = []Notice{{ActorID: *m.AssignedTo, Subject: "Mission paid", Body: "You have been paid for: " + m.Description}}
	out.Event = missionEvent("pay", m, debtExtra(out.Debt))
	return out, nil
}
