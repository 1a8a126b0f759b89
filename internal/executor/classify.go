package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/roach88/procprobe/internal/ir"
)

// Classify maps a driver error to an ErrorClass and SQLSTATE.
// Structured codes win; message matching is used only when the error
// carries no code.
func Classify(err error) (ir.ErrorClass, string) {
	if err == nil {
		return "", ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyCode(pgErr.Code), pgErr.Code
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ir.ErrTimeout, ""
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return ir.ErrConnection, ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ir.ErrTimeout, ""
		}
		return ir.ErrConnection, ""
	}

	return classifyMessage(err.Error()), ""
}

// sqlstateCodes maps exact codes, checked before two-character classes.
var sqlstateCodes = map[string]ir.ErrorClass{
	"P0001": ir.ErrConstraint,      // raise_exception: business-rule validation
	"42883": ir.ErrMissingFunction, // undefined_function
	"42P01": ir.ErrMissingFunction, // undefined_table
	"42704": ir.ErrMissingFunction, // undefined_object
	"3F000": ir.ErrMissingFunction, // invalid_schema_name
	"42804": ir.ErrTypeMismatch,    // datatype_mismatch
	"42846": ir.ErrTypeMismatch,    // cannot_coerce
	"42P18": ir.ErrTypeMismatch,    // indeterminate_datatype
	"42501": ir.ErrPermission,      // insufficient_privilege
	"57014": ir.ErrTimeout,         // query_canceled
	"55P03": ir.ErrTimeout,         // lock_not_available
	"57P01": ir.ErrConnection,      // admin_shutdown
}

var sqlstateClasses = map[string]ir.ErrorClass{
	"23": ir.ErrConstraint,   // integrity_constraint_violation
	"22": ir.ErrTypeMismatch, // data_exception
	"28": ir.ErrPermission,   // invalid_authorization_specification
	"08": ir.ErrConnection,   // connection_exception
	"40": ir.ErrConflict,     // transaction_rollback: serialization_failure, deadlock_detected
}

func classifyCode(code string) ir.ErrorClass {
	if c, ok := sqlstateCodes[code]; ok {
		return c
	}
	if len(code) >= 2 {
		if c, ok := sqlstateClasses[code[:2]]; ok {
			return c
		}
	}
	return ir.ErrOther
}

// messageRules are tried in order against the lowercased message.
var messageRules = []struct {
	class ir.ErrorClass
	all   []string
}{
	{ir.ErrMissingFunction, []string{"function", "does not exist"}},
	{ir.ErrMissingFunction, []string{"procedure", "does not exist"}},
	{ir.ErrMissingFunction, []string{"relation", "does not exist"}},
	{ir.ErrConstraint, []string{"violates"}},
	{ir.ErrPermission, []string{"permission denied"}},
	{ir.ErrTypeMismatch, []string{"invalid input syntax"}},
	{ir.ErrTypeMismatch, []string{"is of type"}},
	{ir.ErrConflict, []string{"could not serialize"}},
	{ir.ErrConflict, []string{"deadlock detected"}},
	{ir.ErrTimeout, []string{"canceling statement"}},
	{ir.ErrTimeout, []string{"timeout"}},
	{ir.ErrConnection, []string{"connection reset"}},
	{ir.ErrConnection, []string{"connection refused"}},
	{ir.ErrConnection, []string{"broken pipe"}},
	{ir.ErrConnection, []string{"conn closed"}},
}

func classifyMessage(msg string) ir.ErrorClass {
	lower := strings.ToLower(msg)
	for _, rule := range messageRules {
		matched := true
		for _, s := range rule.all {
			if !strings.Contains(lower, s) {
				matched = false
				break
			}
		}
		if matched {
			return rule.class
		}
	}
	return ir.ErrOther
}

// errorMessage renders err with the server's detail and hint when present.
func errorMessage(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString(err.Error())
	if pgErr.Detail != "" {
		b.WriteString(" (detail: " + pgErr.Detail + ")")
	}
	if pgErr.Hint != "" {
		b.WriteString(" (hint: " + pgErr.Hint + ")")
	}
	if pgErr.ConstraintName != "" {
		b.WriteString(" [constraint " + pgErr.ConstraintName + "]")
	}
	return b.String()
}
