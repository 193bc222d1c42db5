package cache

import (
	"context"
	"time"
)

type nullStore struct{}

func newNullStore() Store { return &nullStore{} }

func (s *nullStore) Driver() Driver { return DriverNull }

func (s *nullStore) Get(context.Context, string) (any, bool, error) {
	return nil, false, nil
}

func (s *nullStore) Set(context.Context, string, any, time.Duration) error {
	return nil
}

func (s *nullStore) Delete(context.Context, string) error { return nil }

func (s *nullStore) Flush(context.Context) error { return nil }

func (s *nullStore) Len() int { return 0 }
