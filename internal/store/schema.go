package store

// schemaSQL bootstraps the nine substrate tables. Identifiers are 16-byte
// digests; the four S³ ordinates are plain float8 columns named so the
// fourth reads as the spatial type's "m" ordinate; the 128-bit Hilbert key
// is two bigints, most-significant word first.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS physicality (
  id          bytea PRIMARY KEY,
  centroid_x  float8 NOT NULL,
  centroid_y  float8 NOT NULL,
  centroid_z  float8 NOT NULL,
  centroid_m  float8 NOT NULL,
  hilbert_hi  bigint NOT NULL,
  hilbert_lo  bigint NOT NULL,
  trajectory  bytea
);

CREATE TABLE IF NOT EXISTS atom (
  id             bytea PRIMARY KEY,
  codepoint      bigint NOT NULL,
  physicality_id bytea NOT NULL
);

CREATE TABLE IF NOT EXISTS composition (
  id             bytea PRIMARY KEY,
  physicality_id bytea NOT NULL
);

CREATE TABLE IF NOT EXISTS composition_sequence (
  id             bytea PRIMARY KEY,
  composition_id bytea NOT NULL,
  atom_id        bytea NOT NULL,
  ordinal        bigint NOT NULL,
  occurrences    bigint NOT NULL CHECK (occurrences >= 1),
  UNIQUE (composition_id, ordinal)
);

CREATE TABLE IF NOT EXISTS relation (
  id             bytea PRIMARY KEY,
  physicality_id bytea NOT NULL
);

CREATE TABLE IF NOT EXISTS relation_sequence (
  id             bytea PRIMARY KEY,
  relation_id    bytea NOT NULL,
  composition_id bytea NOT NULL,
  ordinal        bigint NOT NULL,
  occurrences    bigint NOT NULL,
  UNIQUE (relation_id, ordinal)
);

CREATE TABLE IF NOT EXISTS relation_rating (
  relation_id  bytea PRIMARY KEY,
  observations bigint NOT NULL CHECK (observations >= 1),
  rating_value float8 NOT NULL,
  k_factor     float8 NOT NULL
);

CREATE TABLE IF NOT EXISTS relation_evidence (
  id              bytea PRIMARY KEY,
  content_id      bytea NOT NULL,
  relation_id     bytea NOT NULL,
  is_valid        boolean NOT NULL,
  source_rating   float8 NOT NULL,
  signal_strength float8 NOT NULL CHECK (signal_strength >= 0 AND signal_strength <= 1)
);

CREATE TABLE IF NOT EXISTS content (
  id           bytea PRIMARY KEY,
  content_hash bytea NOT NULL,
  content_type text NOT NULL,
  mime_type    text NOT NULL,
  size         bigint NOT NULL,
  language     text NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS atom_codepoint_idx ON atom (codepoint);
CREATE INDEX IF NOT EXISTS physicality_hilbert_idx ON physicality (hilbert_hi, hilbert_lo);
CREATE INDEX IF NOT EXISTS composition_sequence_parent_idx ON composition_sequence (composition_id);
CREATE INDEX IF NOT EXISTS relation_sequence_parent_idx ON relation_sequence (relation_id);
CREATE INDEX IF NOT EXISTS relation_sequence_member_idx ON relation_sequence (composition_id);
CREATE INDEX IF NOT EXISTS relation_evidence_relation_idx ON relation_evidence (relation_id);
CREATE INDEX IF NOT EXISTS relation_evidence_content_idx ON relation_evidence (content_id);
CREATE INDEX IF NOT EXISTS content_hash_idx ON content (content_hash);
`

// spatialIndexSQL declares the GiST index over the user-defined four-ordinate
// point type. It only works on stores with the spatial extension installed,
// so it runs behind its own flag.
const spatialIndexSQL = `
ALTER TABLE physicality ADD COLUMN IF NOT EXISTS centroid spoint4d
  GENERATED ALWAYS AS (spoint4d(centroid_x, centroid_y, centroid_z, centroid_m)) STORED;
CREATE INDEX IF NOT EXISTS physicality_centroid_gist ON physicality USING gist (centroid);
`
