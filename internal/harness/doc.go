// Package harness runs DMP submission scenarios end to end.
//
// A scenario submits a sequence of documents to a fresh in-memory store and
// checks each step's outcome, then evaluates assertions against the final
// tables. Clocks and ids are deterministic, so the summary of a run can be
// compared against a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	provenance: dmptool
//	mint:
//	  prefix: "10.80030"
//	  shoulder: D1
//	organizations: organizations.yaml
//	steps:
//	  - submit: documents/plan.json
//	    expect:
//	      outcome: accepted
//	  - document: '{"title": 5}'
//	    provenance: dmphub
//	    expect:
//	      outcome: rejected
//	      code: INVALID_PAYLOAD
//	assertions:
//	  - type: row_count
//	    table: plans
//	    count: 1
//	  - type: final_state
//	    table: plans
//	    where: { title: "Brain Study" }
//	    expect: { language: "en" }
//
// File paths (submit, organizations) are resolved relative to the scenario
// file.
//
// # Assertion Types
//
//   - row_count: table has exactly count rows
//   - final_state: exactly one row matches where and has the expect values
//   - identifier_count: count identifiers with the given category and value
//   - outcome_count: count steps that ended with outcome
//   - replay_stable: replaying the audit log leaves every table unchanged
package harness
