package domain

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleAssassin Role = "ASSASSIN"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleAssassin }

type ActorStatus string

const (
	ActorActive   ActorStatus = "ACTIVE"
	ActorInactive ActorStatus = "INACTIVE"
)

type PaymentType string

const (
	PaymentCoins               PaymentType = "COINS"
	PaymentBloodDebt           PaymentType = "BLOOD_DEBT"
	PaymentBloodDebtCollection PaymentType = "BLOOD_DEBT_COLLECTION"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentCoins, PaymentBloodDebt, PaymentBloodDebtCollection:
		return true
	}
	return false
}

type MissionStatus string

const (
	MissionCreated   MissionStatus = "CREATED"
	MissionPublished MissionStatus = "PUBLISHED"
	MissionRejected  MissionStatus = "REJECTED"
	MissionAssigned  MissionStatus = "ASSIGNED"
	MissionCompleted MissionStatus = "COMPLETED"
	MissionPaid      MissionStatus = "PAID"
)

// Terminal reports whether no transition leaves the status.
func (s MissionStatus) Terminal() bool { return s == MissionRejected || s == MissionPaid }

type DebtStatus string

const (
	DebtPending                   DebtStatus = "PENDING"
	DebtRejected                  DebtStatus = "REJECTED"
	DebtAssigned                  DebtStatus = "ASSIGNED"
	DebtPaidInitialMission        DebtStatus = "PAID_INITIAL_MISSION"
	DebtPendingCollectionApproval DebtStatus = "PENDING_COLLECTION_APPROVAL"
	DebtCompleted                 DebtStatus = "COMPLETED"
	DebtPaid                      DebtStatus = "PAID"
)

type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionOutcome TransactionType = "OUTCOME"
)

type TransactionDescription string

const (
	TxCoinPurchase        TransactionDescription = "COIN_PURCHASE"
	TxCoinSell            TransactionDescription = "COIN_SELL"
	TxInformationPurchase TransactionDescription = "INFORMATION_PURCHASE"
	TxMissionReward       TransactionDescription = "MISSION_REWARD"
	TxMissionRejection    TransactionDescription = "MISSION_REJECTION"
	TxMissionCreation     TransactionDescription = "MISSION_CREATION"
)

type Actor struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Alias     string      `json:"alias,omitempty"`
	Email     string      `json:"email"`
	Country   string      `json:"country,omitempty"`
	Address   string      `json:"address,omitempty"`
	Role      Role        `json:"role" enum:"ADMIN,ASSASSIN"`
	Status    ActorStatus `json:"status" enum:"ACTIVE,INACTIVE"`
	Coins     int64       `json:"coins"`
	CreatedAt string      `json:"created_at" format:"date-time"`
}

type Mission struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Details     string        `json:"details"`
	PaymentType PaymentType   `json:"payment_type" enum:"COINS,BLOOD_DEBT,BLOOD_DEBT_COLLECTION"`
	CoinsAmount *int64        `json:"coins_amount,omitempty"`
	Status      MissionStatus `json:"status" enum:"CREATED,PUBLISHED,REJECTED,ASSIGNED,COMPLETED,PAID"`
	CreatedBy   string        `json:"created_by"`
	AssignedTo  *string       `json:"assigned_to,omitempty"`
	EvidenceID  *string       `json:"evidence_id,omitempty"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	PublishedAt *string       `json:"published_at,omitempty" format:"date-time"`
	RejectedAt  *string       `json:"rejected_at,omitempty" format:"date-time"`
	AssignedAt  *string       `json:"assigned_at,omitempty" format:"date-time"`
	CompletedAt *string       `json:"completed_at,omitempty" format:"date-time"`
	PaidAt      *string       `json:"paid_at,omitempty" format:"date-time"`
}

// MissionView is a mission joined with the display names of its actors.
type MissionView struct {
	Mission
	CreatedByName  string `json:"created_by_name"`
	AssignedToName string `json:"assigned_to_name,omitempty"`
}

type BloodDebt struct {
	ID             string     `json:"id"`
	Status         DebtStatus `json:"status"`
	CreatedBy      string     `json:"created_by"`
	PaidTo         *string    `json:"paid_to,omitempty"`
	CreatedMission string     `json:"created_mission"`
	PaidMission    *string    `json:"paid_mission,omitempty"`
	CreatedAt      string     `json:"created_at" format:"date-time"`
	UpdatedAt      string     `json:"updated_at" format:"date-time"`
}

// DebtCounterparty groups open debts by the other actor involved.
type DebtCounterparty struct {
	ActorID string `json:"actor_id"`
	Alias   string `json:"alias"`
	Debts   int    `json:"debts"`
}

type Transaction struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	Amount      int64                  `json:"amount"`
	Description TransactionDescription `json:"description"`
	Type        TransactionType        `json:"type" enum:"INCOME,OUTCOME"`
	Date        string                 `json:"date" format:"date-time"`
}

// AssassinListing is a directory row as seen by a specific viewer.
type AssassinListing struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Alias       string      `json:"alias"`
	Country     string      `json:"country,omitempty"`
	Email       string      `json:"email,omitempty"`
	Address     string      `json:"address,omitempty"`
	Status      ActorStatus `json:"status,omitempty"`
	IsPurchased *bool       `json:"is_purchased,omitempty"`
}

type EvidenceFile struct {
	Ref         string `json:"ref"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	StoredAt    string `json:"stored_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
