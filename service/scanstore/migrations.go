package scanstore

const schemaV1 = `
CREATE TABLE IF NOT EXISTS scans (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    name            TEXT NOT NULL,
    cloud_provider  TEXT NOT NULL,
    status          TEXT NOT NULL,
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scans_tenant_created
    ON scans(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_scans_status ON scans(status);

CREATE TABLE IF NOT EXISTS scan_results (
    id              TEXT PRIMARY KEY,
    scan_id         TEXT NOT NULL,
    tenant_id       TEXT NOT NULL,
    service_name    TEXT NOT NULL,
    region          TEXT NOT NULL,
    data            TEXT NOT NULL,
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL,
    UNIQUE(scan_id, service_name, region),
    FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_scan_results_scan ON scan_results(scan_id);
CREATE INDEX IF NOT EXISTS idx_scan_results_tenant ON scan_results(tenant_id);

CREATE TABLE IF NOT EXISTS regions (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    cloud_provider  TEXT NOT NULL
);
`

// Region catalog rows served by the regions endpoint. INSERT OR IGNORE
// keeps restarts idempotent.
const seedRegions = `
INSERT OR IGNORE INTO regions (id, name, cloud_provider) VALUES
    ('us-east-1', 'US East (N. Virginia)', 'AWS'),
    ('us-east-2', 'US East (Ohio)', 'AWS'),
    ('us-west-1', 'US West (N. California)', 'AWS'),
    ('us-west-2', 'US West (Oregon)', 'AWS'),
    ('af-south-1', 'Africa (Cape Town)', 'AWS'),
    ('ap-east-1', 'Asia Pacific (Hong Kong)', 'AWS'),
    ('ap-south-1', 'Asia Pacific (Mumbai)', 'AWS'),
    ('ap-northeast-1', 'Asia Pacific (Tokyo)', 'AWS'),
    ('ap-northeast-2', 'Asia Pacific (Seoul)', 'AWS'),
    ('ap-northeast-3', 'Asia Pacific (Osaka)', 'AWS'),
    ('ap-southeast-1', 'Asia Pacific (Singapore)', 'AWS'),
    ('ap-southeast-2', 'Asia Pacific (Sydney)', 'AWS'),
    ('ca-central-1', 'Canada (Central)', 'AWS'),
    ('eu-central-1', 'Europe (Frankfurt)', 'AWS'),
    ('eu-west-1', 'Europe (Ireland)', 'AWS'),
    ('eu-west-2', 'Europe (London)', 'AWS'),
    ('eu-west-3', 'Europe (Paris)', 'AWS'),
    ('eu-north-1', 'Europe (Stockholm)', 'AWS'),
    ('eu-south-1', 'Europe (Milan)', 'AWS'),
    ('me-south-1', 'Middle East (Bahrain)', 'AWS'),
    ('sa-east-1', 'South America (Sao Paulo)', 'AWS');
`
