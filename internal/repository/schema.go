package repository

// Schema definitions for the Casewatch database.
// Compatible with both SQLite and PostgreSQL.

const schemaComplaints = `
CREATE TABLE IF NOT EXISTS complaints (
    id TEXT PRIMARY KEY,
    victim_name TEXT NOT NULL,
    victim_phone TEXT NOT NULL,
    victim_email TEXT,
    victim_address TEXT,
    victim_device_token TEXT,
    fraud_type TEXT NOT NULL,
    amount REAL NOT NULL CHECK (amount > 0),
    fraud_date TIMESTAMP NOT NULL,
    description TEXT NOT NULL,
    bank_name TEXT,
    account_number TEXT,
    transaction_ref TEXT,
    status TEXT NOT NULL,
    priority TEXT NOT NULL,
    fir_number TEXT,
    fir_date TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_complaints_status ON complaints(status);
CREATE INDEX IF NOT EXISTS idx_complaints_phone ON complaints(victim_phone, created_at);
CREATE INDEX IF NOT EXISTS idx_complaints_created ON complaints(created_at);
`

const schemaComplaintSequences = `
CREATE TABLE IF NOT EXISTS complaint_sequences (
    year INTEGER PRIMARY KEY,
    last_value INTEGER NOT NULL
);
`

// schemaCaseUpdates is append-only; rows are never updated or deleted.
const schemaCaseUpdates = `
CREATE TABLE IF NOT EXISTS case_updates (
    id TEXT PRIMARY KEY,
    complaint_id TEXT NOT NULL REFERENCES complaints(id),
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    status TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_updates_complaint ON case_updates(complaint_id, created_at);
`

const schemaNotifications = `
CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    complaint_id TEXT NOT NULL,
    case_update_id TEXT,
    channel TEXT NOT NULL,
    recipient TEXT NOT NULL,
    subject TEXT NOT NULL,
    body TEXT NOT NULL,
    status TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    provider_ref TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_complaint ON notifications(complaint_id);
CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
`

const schemaOfficers = `
CREATE TABLE IF NOT EXISTS officers (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    rank TEXT,
    station TEXT,
    role TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaComplaints,
		schemaComplaintSequences,
		schemaCaseUpdates,
		schemaNotifications,
		schemaOfficers,
	}
}
