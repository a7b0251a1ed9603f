package sql

import "embed"

// Migrations holds the schema DDL applied by db.ApplyMigrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/insert_run.sql
var InsertRun string

//go:embed queries/finish_run.sql
var FinishRun string

//go:embed queries/insert_file_outcome.sql
var InsertFileOutcome string

//go:embed queries/upsert_payer.sql
var UpsertPayer string

//go:embed queries/upsert_plans.sql
var UpsertPlans string

//go:embed queries/analyze_rate_records.sql
var AnalyzeRateRecords string
