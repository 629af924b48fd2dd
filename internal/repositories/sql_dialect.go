package repositories

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	DriverMySQL  = "mysql"
	DriverPgx    = "pgx"
	DriverMemory = "memory"
)

const (
	keyPaymentReference   = "uniq_payment_reference"
	keyPaymentClientAgent = "uniq_payment_client_agent"
)

// rebind rewrites ? placeholders into $n for Postgres.
func rebind(driver, query string) string {
	if driver != DriverPgx {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isDuplicateKeyError reports a unique-constraint violation on MySQL/MariaDB
// (1062) or Postgres (23505).
func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// duplicateKeyName returns the unique key a duplicate-key error names, or "".
// MySQL only carries it in the message: "Duplicate entry 'x' for key 'tbl.name'".
func duplicateKeyName(err error) string {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		msg := mysqlErr.Message
		i := strings.LastIndex(msg, "for key '")
		if i < 0 {
			return ""
		}
		key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
		if dot := strings.LastIndex(key, "."); dot >= 0 {
			key = key[dot+1:]
		}
		return key
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
