// Package catalog persists the asset index, the usage ledger, and chunked
// upload sessions in SQLite.
//
// An asset's usage_count always equals the number of live usage records
// referencing it. Attach and Detach maintain that count transactionally;
// it is never computed lazily by readers.
package catalog
