package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID                 int64
	TelegramID         int64
	ChatID             int64
	Username           string
	Name               string
	LastName           string
	PromoCode          string
	ReferralsCount     int
	PaidReferralsCount int
	ReferralIncome     decimal.Decimal
	Balance            decimal.Decimal
	InvitedByUsername  string
	Role               Role
	UsedPromo          bool
	CreatedAt          time.Time
}

// NewUser carries the registration input. Username is stored with a leading @.
type NewUser struct {
	TelegramID        int64
	ChatID            int64
	Name              string
	LastName          string
	Username          string
	InvitedByUsername string
}

// PromoOwner identifies the user a promo code belongs to.
type PromoOwner struct {
	TelegramID int64
	Username   string
}

type RedeemOutcome int

const (
	RedeemAccepted RedeemOutcome = iota
	RedeemInvalidCode
	RedeemAlreadyUsed
	RedeemSelfReferral
)

func (o RedeemOutcome) String() string {
	switch o {
	case RedeemAccepted:
		return "accepted"
	case RedeemInvalidCode:
		return "invalid_code"
	case RedeemAlreadyUsed:
		return "already_used"
	case RedeemSelfReferral:
		return "self_referral"
	default:
		return "unknown"
	}
}

type ReferralSummary struct {
	ReferralsCount     int
	PaidReferralsCount int
	ReferralIncome     decimal.Decimal
}

// ReferralPayment is an external payment confirmation attributed to a
// referral. Income is the owner's share of Amount.
type ReferralPayment struct {
	ID                 int64
	PaymentID          string
	OwnerTelegramID    int64
	ReferralTelegramID int64
	Amount             decimal.Decimal
	Income             decimal.Decimal
	CreatedAt          time.Time
}
