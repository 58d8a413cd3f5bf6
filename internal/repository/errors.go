// Package repository holds the MySQL backed stores.  The sentinel errors below
// let the service layer tell the common failure cases apart without looking
// at driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.  The verification
// token ledger also returns it for used, expired and wrong-type tokens.
var ErrNotFound = errors.New("not found")

// ErrEmailExists and ErrUsernameExists are translated from the unique keys on
// usuarios.email and usuarios.usuario.
var (
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
)

const mysqlDuplicateEntry = 1062

// duplicateKey returns the offending key name of a duplicate-entry error, or
// "" if err is something else.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return "", false
	}
	msg := me.Message
	if i := strings.LastIndex(msg, "for key '"); i >= 0 {
		key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
		if j := strings.LastIndex(key, "."); j >= 0 {
			key = key[j+1:]
		}
		return key, true
	}
	return "", true
}
