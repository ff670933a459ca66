package database

// Schema contains the SQL statements for the gateway's control plane.
// These tables live in the public schema of the shared cluster; tenant
// data lives in per-project schemas named p<id>, created by the
// provisioning service when a project is created.
//
// Every table named here is also on the SQL firewall's protected list:
// tenants cannot run DDL against them even with explicit schema
// qualification.
const Schema = `
-- users: Dashboard operators who authenticate with a pqc_session
-- cookie. Email is the durable identity key; session tokens embed it
-- so a user survives login-provider churn.
CREATE TABLE IF NOT EXISTS users (
    id            SERIAL PRIMARY KEY,
    email         VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    display_name  VARCHAR(255),
    is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- projects: Each row is one tenant. The tenant's private schema is
-- derived as p<id> and created by the provisioning flow, not here.
CREATE TABLE IF NOT EXISTS projects (
    id          SERIAL PRIMARY KEY,
    name        VARCHAR(255) NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- project_members: Which users may act on which projects. Consulted
-- by the tenant resolver for session-authenticated callers.
CREATE TABLE IF NOT EXISTS project_members (
    project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    role        VARCHAR(20) NOT NULL DEFAULT 'member',
    PRIMARY KEY (project_id, user_id)
);

-- api_keys: Bearer keys bound to exactly one project. Only the
-- SHA-256 of the key is stored; the plaintext is shown once at
-- creation and never kept.
CREATE TABLE IF NOT EXISTS api_keys (
    id           SERIAL PRIMARY KEY,
    key_hash     VARCHAR(64) UNIQUE NOT NULL,
    project_id   INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    key_type     VARCHAR(20) NOT NULL DEFAULT 'restricted',
    label        VARCHAR(255),
    last_used_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_api_keys_project ON api_keys(project_id);

-- webhooks: Registered mutation callbacks, fired by the event
-- notifier after successful non-SELECT statements. event is one of
-- INSERT, UPDATE, DELETE, or * for all three.
CREATE TABLE IF NOT EXISTS webhooks (
    id          SERIAL PRIMARY KEY,
    project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    table_name  VARCHAR(255) NOT NULL,
    event       VARCHAR(10) NOT NULL DEFAULT '*',
    url         TEXT NOT NULL,
    secret      VARCHAR(255) NOT NULL,
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_webhooks_lookup ON webhooks(project_id, table_name);

-- table_registry: Maps dynamically created table names to the owning
-- project. A table name is registered to at most one project; rows
-- are written best-effort after a successful CREATE TABLE through the
-- raw-SQL path and consulted by the CRUD read path for legacy
-- ownership filtering.
CREATE TABLE IF NOT EXISTS table_registry (
    table_name  VARCHAR(255) PRIMARY KEY,
    project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    created_by  VARCHAR(255),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_table_registry_project ON table_registry(project_id);
`
