package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpCapturesTypedErrorAndPgDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "sales_sale_number_key", TableName: "sales", Message: "duplicate key value"}
	err := fmt.Errorf("commit: %w", Wrap(CodePersistenceFailed, pgErr, "insert sale"))

	d := Dump(err)
	require.Equal(t, CodePersistenceFailed, d.Code)
	assert.Equal(t, FamilyPersistence, d.Family)
	assert.True(t, d.Retryable)
	assert.Equal(t, "23505", d.PGCode)
	assert.Equal(t, "sales_sale_number_key", d.PGConstraint)
	assert.Len(t, d.Chain, 3)

	fields := d.Fields()
	assert.Equal(t, "PERSISTENCE_FAILED", fields["error_code"])
	assert.Equal(t, "23505", fields["pg_code"])
}

func TestDumpNil(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
