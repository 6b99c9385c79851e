package shared

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Fingerprint hashes the consumed action token together with the business keys
// of a request. Retried writes carrying the same inputs yield the same value,
// which the ledger stores under a unique constraint.
func Fingerprint(token string, parts ...string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(token))
	for _, p := range parts {
		_, _ = h.Write([]byte{'|'})
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsUniqueViolation reports whether err is a PostgreSQL unique violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || strings.EqualFold(pgErr.ConstraintName, constraint)
}
