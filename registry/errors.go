package registry

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/saiset-co/sai-org-registry/types"
)

var (
	ErrConflict   = errors.New("entity conflicts with existing record")
	ErrReferenced = errors.New("referenced entity does not exist")
)

// translate maps driver errors onto registry sentinels.
func translate(err error, entity string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return types.Errorf(types.ErrEntityNotFound, "%s", entity)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return types.Errorf(ErrConflict, "%s: %v", entity, sqliteErr)
		case sqlite3.ErrConstraintForeignKey:
			return types.Errorf(ErrReferenced, "%s: %v", entity, sqliteErr)
		}
	}

	return types.WrapError(err, entity+" query failed")
}
