// Package confloader provides configuration loading mechanism.
//
// This package implements a flexible configuration loader that supports
// multiple sources using koanf as the underlying library.
//
// Features:
//
//   - Multiple Sources: YAML files, environment variables, flag overrides
//   - Watch Support: callbacks on config file changes (fsnotify)
//   - Type Safety: Unmarshaling into typed structs
//   - Defaults: values already set in the target struct survive
//
// Priority (highest to lowest):
//
//  1. Command-line flags
//  2. Environment variables (SERVUS_SECTION_KEY)
//  3. Configuration files
//  4. Default values
package confloader
