// Package model defines the DMP entity graph shared by every other dmpsync
// package.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Identifier ownership is a tagged reference (OwnerRef), never an
//     interface resolved by reflection
//   - Entity IDs are assigned when an entity is initialized, so identifiers
//     can reference owners that are not yet persisted
//   - Persisted is runtime state only; it is never written to storage
//   - All JSON tags use snake_case
package model
