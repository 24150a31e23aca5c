package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0003, Down0003)
}

func Up0003(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE FUNCTION touch_updated_at()
RETURNS TRIGGER AS $$
BEGIN
NEW.updated_at = current_timestamp;
RETURN NEW;
END;
$$ language 'plpgsql';
`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON consents
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`)
	if err != nil {
		return err
	}

	return nil
}

func Down0003(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TRIGGER touch_updated_at_trigger ON consents;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DROP FUNCTION touch_updated_at();`)
	return err
}
