// Package mocks provides mock implementations of the engine's ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// repository and collaborator interfaces in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	services := mocks.NewMockServiceManager(ctrl)
//	services.EXPECT().Restart(gomock.Any(), "wasm-shop-example-com").Return(nil)
package mocks

// Collaborator ports driven by the deployment pipeline: configuration rendering,
// process supervision, reverse proxy, certificates, builds, health checks, source
// sync, backups and progress fan-out.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=collaborators_mock.go github.com/Perkybeet/wasm/internal/core BackupManager,BuildRunner,CertificateManager,ConfigRenderer,HealthChecker,ProgressPublisher,ProgressRelay,ProxyManager,ServiceManager,SourceSyncer

// Repository ports used by the scheduler and worker pool.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=repositories_mock.go github.com/Perkybeet/wasm/internal/core ApplicationRepository,JobRepository
