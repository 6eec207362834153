package db

import "context"

type Client interface {
	Init(ctx context.Context) error
	Read(ctx context.Context, op func(context.Context, ReadOnly) error) error
	Write(ctx context.Context, op func(context.Context, Transaction) error) error
	Close() error
}

func ClientReadType[T any](ctx context.Context, c Client, op func(context.Context, ReadOnly) (T, error)) (T, error) {
	var result T

	err := c.Read(ctx, func(ctx context.Context, read ReadOnly) error {
		var err error

		result, err = op(ctx, read)

		return err
	})

	return result, err
}

func ClientWriteType[T any](ctx context.Context, c Client, op func(context.Context, Transaction) (T, error)) (T, error) {
	var result T

	err := c.Write(ctx, func(ctx context.Context, t Transaction) error {
		var err error

		result, err = op(ctx, t)

		return err
	})

	return result, err
}
