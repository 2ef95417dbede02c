package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Email         string          `json:"email" db:"email"`
	Document      string          `json:"document" db:"document"`
	LedgerAddress string          `json:"ledger_address" db:"ledger_address"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}
