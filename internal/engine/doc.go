// Package engine provides the tabular import and reconciliation engine
// behind both bulk listing import and financial P&L import.
//
// This package is the heart of the importer, containing all domain logic
// independent of any UI or transport layer. It can be used by web
// handlers, CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Flow definitions: registered via [Register], each flow carries a
//     canonical schema ([FieldSpec] list), ordered auto-mapping heuristics
//     ([MatchRule] list) and the database operations for its records.
//   - Tokenizer: [Tokenize] scans raw delimited text into headers and rows,
//     tolerant of quoting and line-ending ambiguity.
//   - Auto-mapper: [AutoDetect] proposes a field-to-header [Mapping] the
//     user may edit before the import starts.
//   - Transformer: [Transform] turns raw rows into typed [Record] values,
//     rejecting rows that fail the flow's primary-field gate.
//   - Ledger: period-keyed accumulation with gap-fill merge semantics for
//     the financial flow.
//   - Service: the entry point owning import sessions, the sequential
//     cancellable submission loop, and progress fan-out.
//
// # Session lifecycle
//
//  1. [Service.CreateSession] stages an uploaded file and proposes a mapping.
//  2. [Service.SetMapping] / [Service.SetFallbackYear] adjust the proposal.
//  3. [Service.Start] transforms rows and submits them (direct flows) or
//     merges them into the session ledger (ledger flows).
//  4. [Service.SubscribeProgress] streams snapshots; [Service.Cancel]
//     requests a cooperative stop; [Service.Result] blocks for the outcome.
//  5. Ledger flows finish with [Service.SaveLedger], a wholesale replace.
package engine
