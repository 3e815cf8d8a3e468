//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/nextest/portal-auth/internal/app"
	"github.com/nextest/portal-auth/internal/repository"
)

func InitializeApp() (*app.App, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		RuntimeInfraSet,
		RepositorySet,
		SecuritySet,
		ServiceSet,
		HTTPSet,
		AppSet,
	))
}

func InitializeMigrationRunner() (*MigrationRunner, error) {
	panic(wire.Build(
		ConfigSet,
		provideOpenDB,
		NewMigrationRunner,
	))
}

func InitializeJanitor() (*Janitor, error) {
	panic(wire.Build(
		ConfigSet,
		provideOpenDB,
		repository.NewVerificationCodeRepository,
		repository.NewSessionRepository,
		NewJanitor,
	))
}
