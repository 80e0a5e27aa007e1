// Package postgres implements the durable job backend on PostgreSQL.
//
// Records live in the generation_jobs table, created by the embedded goose
// migrations (see Migrate). Connections are opened through the pgx stdlib
// driver and used via the store.DBTX interface so the same code runs on a
// *sql.DB or inside a transaction.
package postgres
