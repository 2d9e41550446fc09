// Package harvest defines the core types shared across the harvesting
// subsystems: identifiers, fetch outcomes, the structured record format
// written to the ledgers, and the interfaces wiring the per-entity
// pipeline together.
package harvest
