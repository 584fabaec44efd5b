// Package mocks provides mock implementations for testing the JobLink auth subsystem.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the auth ports.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	roles := mocks.NewMockRoleStore(ctrl)
//	roles.EXPECT().LookupRole(gomock.Any(), "U123").Return(auth.RoleCompany, nil)
package mocks

// Generate mocks for the identity provider, role store, navigator and subscription ports.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_ports_mock.go github.com/joblink/joblink-web/internal/ports IdentityProvider,Subscription,RoleStore,Navigator
