package lifecycle

import (
	"guildline/internal/domain"
)

// Payment is the closed set of mission payment variants. Each variant knows
// which blood-debt state must accompany a mission in a given status.
type Payment interface {
	Type() domain.PaymentType
	companion(m domain.Mission, d *domain.BloodDebt) error
}

type CoinsPayment struct {
	Amount int64
}

type BloodDebtPayment struct{}

// CollectionPayment settles a debt owed by Debtor to the mission creator.
type CollectionPayment struct {
	Debtor string
}

func (CoinsPayment) Type() domain.PaymentType      { return domain.PaymentCoins }
func (BloodDebtPayment) Type() domain.PaymentType  { return domain.PaymentBloodDebt }
func (CollectionPayment) Type() domain.PaymentType { return domain.PaymentBloodDebtCollection }

// PaymentOf decodes the stored payment columns of m into its variant.
func PaymentOf(m domain.Mission) (Payment, error) {
	switch m.PaymentType {
	case domain.PaymentCoins:
		if m.CoinsAmount == nil || *m.CoinsAmount <= 0 {
			return nil, inconsistent(m, "coins mission without a positive amount")
		}
		return CoinsPayment{Amount: *m.CoinsAmount}, nil
	case domain.PaymentBloodDebt:
		if m.CoinsAmount != nil {
			return nil, inconsistent(m, "blood debt mission carries a coin amount")
		}
		return BloodDebtPayment{}, nil
	case domain.PaymentBloodDebtCollection:
		if m.CoinsAmount != nil {
			return nil, inconsistent(m, "collection mission carries a coin amount")
		}
		if m.AssignedTo == nil || *m.AssignedTo == "" {
			return nil, inconsistent(m, "collection mission without a debtor")
		}
		return CollectionPayment{Debtor: *m.AssignedTo}, nil
	}
	return nil, inconsistent(m, "unknown payment type "+string(m.PaymentType))
}

func inconsistent(m domain.Mission, reason string) *domain.Error {
	return domain.InvalidState("mission %s is inconsistent: %s", m.ID, reason).
		WithDetails(map[string]any{"mission_id": m.ID, "status": m.Status, "payment_type": m.PaymentType})
}

func eq(p *string, v string) bool { return p != nil && *p == v }

func (CoinsPayment) companion(m domain.Mission, d *domain.BloodDebt) error {
	if d != nil {
		return inconsistent(m, "coins mission linked to blood debt "+d.ID)
	}
	return nil
}

func (BloodDebtPayment) companion(m domain.Mission, d *domain.BloodDebt) error {
	if d == nil {
		return inconsistent(m, "blood debt missing")
	}
	if d.CreatedMission != m.ID || d.CreatedBy != m.CreatedBy {
		return inconsistent(m, "blood debt "+d.ID+" belongs to another mission")
	}
	var want []domain.DebtStatus
	holder := false
	switch m.Status {
	case domain.MissionCreated, domain.MissionPublished:
		want = []domain.DebtStatus{domain.DebtPending}
	case domain.MissionRejected:
		want = []domain.DebtStatus{domain.DebtRejected}
	case domain.MissionAssigned, domain.MissionCompleted:
		want, holder = []domain.DebtStatus{domain.DebtAssigned}, true
	case domain.MissionPaid:
		want, holder = []domain.DebtStatus{domain.DebtPaidInitialMission, domain.DebtPendingCollectionApproval, domain.DebtCompleted, domain.DebtPaid}, true
	}
	if !statusIn(d.Status, want) {
		return inconsistent(m, "blood debt "+d.ID+" is "+string(d.Status))
	}
	if holder && (m.AssignedTo == nil || !eq(d.PaidTo, *m.AssignedTo)) {
		return inconsistent(m, "blood debt "+d.ID+" is held by someone other than the assignee")
	}
	return nil
}

func (p CollectionPayment) companion(m domain.Mission, d *domain.BloodDebt) error {
	if m.Status == domain.MissionRejected {
		if d != nil {
			return inconsistent(m, "rejected collection still claims blood debt "+d.ID)
		}
		return nil
	}
	if d == nil {
		return inconsistent(m, "collected blood debt missing")
	}
	if !eq(d.PaidMission, m.ID) || d.CreatedBy != p.Debtor || !eq(d.PaidTo, m.CreatedBy) {
		return inconsistent(m, "blood debt "+d.ID+" is not owed by the assignee to the creator")
	}
	var want domain.DebtStatus
	switch m.Status {
	case domain.MissionCreated:
		want = domain.DebtPendingCollectionApproval
	case domain.MissionAssigned, domain.MissionCompleted:
		want = domain.DebtCompleted
	case domain.MissionPaid:
		want = domain.DebtPaid
	default:
		return inconsistent(m, "collection missions are never "+string(m.Status))
	}
	if d.Status != want {
		return inconsistent(m, "blood debt "+d.ID+" is "+string(d.Status))
	}
	return nil
}

func statusIn(s domain.DebtStatus, set []domain.DebtStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Subject is a mission together with the blood debt it is paired with, if
// any: the debt it created (BLOOD_DEBT) or the debt it settles (collection).
type Subject struct {
	Mission domain.Mission
	Debt    *domain.BloodDebt
}

// Check verifies the mission/debt pairing for the mission's current status.
func (s Subject) Check() (Payment, error) {
	m := s.Mission
	p, err := PaymentOf(m)
	if err != nil {
		return nil, err
	}
	if _, collection := p.(CollectionPayment); !collection {
		assigned := m.Status == domain.MissionAssigned || m.Status == domain.MissionCompleted || m.Status == domain.MissionPaid
		if assigned != (m.AssignedTo != nil) {
			return nil, inconsistent(m, "assignee does not match status")
		}
	}
	if err := p.companion(m, s.Debt); err != nil {
		return nil, err
	}
	return p, nil
}
