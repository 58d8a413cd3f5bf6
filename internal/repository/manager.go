package repository

import "github.com/iliyamo/fitback/internal/database"

// Manager binds stores to a connection or a transaction.
type Manager interface {
	Users(db database.DBTX) UserStore
	Tokens(db database.DBTX) TokenLedger
}

// MySQLManager vends the MySQL stores.
type MySQLManager struct{}

func NewMySQLManager() *MySQLManager { return &MySQLManager{} }

func (MySQLManager) Users(db database.DBTX) UserStore { return NewUserRepo(db) }

func (MySQLManager) Tokens(db database.DBTX) TokenLedger { return NewVerificationTokenRepo(db) }
