// Package domain contains the core business entities and rules.
// It has no dependencies on adapters or external services.
package domain
