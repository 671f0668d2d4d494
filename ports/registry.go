package ports

import "context"

//go:generate mockgen -source=registry.go -destination=../mocks/registry_mock.go -package=mocks Registry

// Registry reports whether an account has an on-chain profile
type Registry interface {
	IsRegistered(ctx context.Context, address string) (bool, error)
}
