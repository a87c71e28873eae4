// Package export renders user rows as an xlsx workbook.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/digkill/ReferralBot/internal/models"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	FileName    = "users.xlsx"
	sheetName   = "Users"
)

var header = []interface{}{
	"id", "telegram_id", "chat_id", "name", "last_name", "username", "promo_code",
	"referrals_count", "paid_referrals_count", "referral_income", "balance",
	"invited_by_username", "role", "used_promo", "created_at",
}

// BuildXLSX writes one header row and one row per user. An empty slice still
// yields a workbook with the header.
func BuildXLSX(users []models.User) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, u := range users {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		createdAt := ""
		if !u.CreatedAt.IsZero() {
			createdAt = u.CreatedAt.UTC().Format(time.RFC3339)
		}
		row := []interface{}{
			u.ID, u.TelegramID, u.ChatID, u.Name, u.LastName, u.Username, u.PromoCode,
			u.ReferralsCount, u.PaidReferralsCount,
			u.ReferralIncome.InexactFloat64(), u.Balance.InexactFloat64(),
			u.InvitedByUsername, string(u.Role), u.UsedPromo,
			createdAt,
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
