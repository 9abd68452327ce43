// Package harness runs YAML scenarios against the study and contrast stores.
//
// Each scenario executes on a fresh in-memory SQLite database with a
// deterministic clock and sequential ids, so the final state is reproducible
// and can be compared against golden files.
//
// # Scenario Format
//
//	name: activation_switch
//	description: "Activating B deactivates A"
//	steps:
//	  - op: create_study
//	    args: { name: "A" }
//	    save_as: a
//	  - op: create_study
//	    args: { name: "B" }
//	    save_as: b
//	  - op: set_active_study
//	    args: { id: $a }
//	  - op: set_active_study
//	    args: { id: $b }
//	assertions:
//	  - type: active_study
//	    study: $b
//	  - type: exclusive_active
//
// Args whose value starts with "$" refer to the id saved by an earlier step.
// A step with expect_error must fail; the value names the error kind
// (not_found, invalid_study, invalid_contrast or any).
//
// # Step Ops
//
//   - create_study: name, book
//   - update_study: id, and any of name, book, active
//   - set_active_study: id (omit or "" to deactivate all)
//   - delete_study: id
//   - load_studies: reload the study cache from the database
//   - create_contrast: item_a, item_b, verse ("John 3:16"), notes, preset_id, annotation_id
//   - update_contrast: id, and any of the create_contrast args
//   - delete_contrast: id
//   - load_contrasts: reload the contrast cache from the database
//
// # Assertion Types
//
//   - active_study: the active study is study ("" for none)
//   - study_count: the cache holds count studies
//   - study_field: field of study equals value
//   - contrast_field: field of contrast equals value
//   - contrasts_by_verse: the verse query returns contrasts, in order
//   - contrasts_by_book: the book query returns contrasts, in order
//   - exclusive_active: at most one study is active, in the cache and on disk
package harness
