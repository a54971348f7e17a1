// Package errors provides foundational, type-safe error primitives used across the
// asset pipeline.
//
// Key features:
//   - ErrorCategory: broad classification (config, resolution, transform, cycle, plugin, emit, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: retry behaviour for transient failures
//   - ClassifiedError: structured error with category, severity, and context
//   - Classifier: domain errors that can present themselves as a ClassifiedError
//   - ErrorBuilder: fluent API for creating classified errors
//   - HTTP and CLI adapters for error presentation
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryResolution, "module not found").
//		Fatal().
//		WithContext("from", "src/index.ts").
//		WithContext("reference", "./missing").
//		Build()
package errors
