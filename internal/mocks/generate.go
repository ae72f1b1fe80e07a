// Package mocks holds gomock doubles for the portal backend and artifact storage.
//
// Regenerate after interface changes:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=portal_api_mock.go github.com/hiswaca/etl-console/internal/client PortalAPI
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=artifact_store_mock.go github.com/hiswaca/etl-console/internal/client ArtifactStore
