package utils

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/bradenaw/juniper/xslices"
	"github.com/sirupsen/logrus"
)

// Helpers to run SQL queries, map their rows and convert driver errors to
// db errors.

type RowScanner interface {
	Scan(args ...any) error
}

func MapQueryRowsFn[T any](ctx context.Context, qw QueryWrapper, query string, m func(RowScanner) (T, error), args ...any) ([]T, error) {
	rows, err := qw.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError(err)
	}

	return mapSQLRowsFn(rows, m)
}

func MapQueryRows[T any](ctx context.Context, qw QueryWrapper, query string, args ...any) ([]T, error) {
	return MapQueryRowsFn(ctx, qw, query, func(scanner RowScanner) (T, error) {
		var v T

		err := scanner.Scan(&v)

		return v, err
	}, args...)
}

func MapQueryRowFn[T any](ctx context.Context, qw QueryWrapper, query string, m func(RowScanner) (T, error), args ...any) (T, error) {
	row := qw.QueryRowContext(ctx, query, args...)

	return mapSQLRowFn(row, m)
}

func MapQueryRow[T any](ctx context.Context, qw QueryWrapper, query string, args ...any) (T, error) {
	return MapQueryRowFn(ctx, qw, query, func(scanner RowScanner) (T, error) {
		var v T

		err := scanner.Scan(&v)

		return v, err
	}, args...)
}

func MapStmtRowsFn[T any](ctx context.Context, st StmtWrapper, m func(RowScanner) (T, error), args ...any) ([]T, error) {
	rows, err := st.QueryContext(ctx, args...)
	if err != nil {
		return nil, mapSQLError(err)
	}

	return mapSQLRowsFn(rows, m)
}

func ExecQuery(ctx context.Context, qw QueryWrapper, query string, args ...any) (int, error) {
	r, err := qw.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapSQLError(err)
	}

	affected, err := r.RowsAffected()
	if err != nil {
		panic("affected rows is unsupported")
	}

	return int(affected), nil
}

func ExecStmt(ctx context.Context, st StmtWrapper, args ...any) (int, error) {
	r, err := st.ExecContext(ctx, args...)
	if err != nil {
		return 0, mapSQLError(err)
	}

	affected, err := r.RowsAffected()
	if err != nil {
		panic("affected rows is unsupported")
	}

	return int(affected), nil
}

func ExecQueryAndCheckUpdatedNotZero(ctx context.Context, qw QueryWrapper, query string, args ...any) error {
	updated, err := ExecQuery(ctx, qw, query, args...)
	if err != nil {
		return err
	}

	if updated == 0 {
		return db.ErrNotFound
	}

	return nil
}

func QueryExists(ctx context.Context, qw QueryWrapper, query string, args ...any) (bool, error) {
	if _, err := MapQueryRow[int](ctx, qw, query, args...); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func GenSQLIn(count int) string {
	if count <= 0 {
		panic("count can't be less or equal to 0")
	}

	if count == 1 {
		return "?"
	}

	return strings.Repeat("?,", count-1) + "?"
}

func MapSliceToAny[T any](v []T) []any {
	return xslices.Map(v, func(t T) any {
		return t
	})
}

func WrapStmtClose(st StmtWrapper) {
	if err := st.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close statement")
	}
}

func mapSQLError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return db.ErrNotFound
	}

	return err
}

func mapSQLRowFn[T any](row *sql.Row, m func(RowScanner) (T, error)) (T, error) {
	val, err := m(row)
	if err != nil {
		var failResult T

		return failResult, mapSQLError(err)
	}

	return val, nil
}

func mapSQLRowsFn[T any](rows *sql.Rows, m func(RowScanner) (T, error)) ([]T, error) {
	defer func() { _ = rows.Close() }()

	var result []T

	for rows.Next() {
		val, err := m(rows)
		if err != nil {
			return nil, mapSQLError(err)
		}

		result = append(result, val)
	}

	if err := rows.Err(); err != nil {
		return nil, mapSQLError(err)
	}

	return result, nil
}
