// Package domain defines the core business types for the agent execution
// and enrichment pipeline.
//
// This package contains pure domain types with ZERO external dependencies
// outside the Go standard library. All types in this package are:
//
// - Independent of infrastructure (no database, HTTP, gRPC, etc.)
// - Technology-agnostic (no framework coupling)
// - Testable in isolation without mocks
//
// Other packages (pipeline, compliance, layers, etc.) implement behaviour
// over these types and depend on them. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
