package db

// SchemaSQL defines all tables, fields and indexes. Field names match the
// struct json tags so surrealcbor round-trips records directly. Statements
// are idempotent (OVERWRITE) so InitSchema can run on every startup.
const SchemaSQL = `
-- Tender bookkeeping: one record per tender, tracks the latest pipeline run.
DEFINE TABLE OVERWRITE tender SCHEMAFULL;
DEFINE FIELD OVERWRITE tenderId ON tender TYPE string;
DEFINE FIELD OVERWRITE latestRunId ON tender TYPE option<string>;
DEFINE FIELD OVERWRITE updatedAt ON tender TYPE datetime DEFAULT time::now();
DEFINE INDEX OVERWRITE tender_tender_id ON tender FIELDS tenderId UNIQUE;

-- Pipeline run documents. Task ids contain dots so the keyed tasks object
-- stays FLEXIBLE.
DEFINE TABLE OVERWRITE pipeline_run SCHEMAFULL;
DEFINE FIELD OVERWRITE runId ON pipeline_run TYPE string;
DEFINE FIELD OVERWRITE tenderId ON pipeline_run TYPE string;
DEFINE FIELD OVERWRITE ingestJobId ON pipeline_run TYPE option<string>;
DEFINE FIELD OVERWRITE trigger ON pipeline_run TYPE option<string>;
DEFINE FIELD OVERWRITE status ON pipeline_run TYPE string;
DEFINE FIELD OVERWRITE error ON pipeline_run TYPE option<string>;
DEFINE FIELD OVERWRITE currentStage ON pipeline_run TYPE int DEFAULT 0;
DEFINE FIELD OVERWRITE tasks ON pipeline_run FLEXIBLE TYPE object;
DEFINE FIELD OVERWRITE createdAt ON pipeline_run TYPE datetime DEFAULT time::now();
DEFINE FIELD OVERWRITE updatedAt ON pipeline_run TYPE datetime DEFAULT time::now();
DEFINE INDEX OVERWRITE run_run_id ON pipeline_run FIELDS runId UNIQUE;
DEFINE INDEX OVERWRITE run_tender_id ON pipeline_run FIELDS tenderId;

-- Normalized tender documents produced by the ingestion service.
DEFINE TABLE OVERWRITE parsed_document SCHEMAFULL;
DEFINE FIELD OVERWRITE tenderId ON parsed_document TYPE string;
DEFINE FIELD OVERWRITE document ON parsed_document FLEXIBLE TYPE object;
DEFINE FIELD OVERWRITE updatedAt ON parsed_document TYPE datetime DEFAULT time::now();
DEFINE INDEX OVERWRITE parsed_tender_id ON parsed_document FIELDS tenderId UNIQUE;

-- Files imported into the retrieval corpus, one record per source object.
DEFINE TABLE OVERWRITE corpus_file SCHEMAFULL;
DEFINE FIELD OVERWRITE fileId ON corpus_file TYPE string;
DEFINE FIELD OVERWRITE tenderId ON corpus_file TYPE string;
DEFINE FIELD OVERWRITE sourceUri ON corpus_file TYPE string;
DEFINE FIELD OVERWRITE displayName ON corpus_file TYPE option<string>;
DEFINE FIELD OVERWRITE chunkCount ON corpus_file TYPE int DEFAULT 0;
DEFINE FIELD OVERWRITE createdAt ON corpus_file TYPE datetime DEFAULT time::now();
DEFINE INDEX OVERWRITE corpus_file_file_id ON corpus_file FIELDS fileId UNIQUE;
DEFINE INDEX OVERWRITE corpus_file_uri ON corpus_file FIELDS tenderId, sourceUri;

-- Text chunks with embeddings for vector retrieval.
DEFINE TABLE OVERWRITE chunk SCHEMAFULL;
DEFINE FIELD OVERWRITE fileId ON chunk TYPE string;
DEFINE FIELD OVERWRITE tenderId ON chunk TYPE string;
DEFINE FIELD OVERWRITE sourceUri ON chunk TYPE string;
DEFINE FIELD OVERWRITE text ON chunk TYPE string;
DEFINE FIELD OVERWRITE pageLabel ON chunk TYPE option<string>;
DEFINE FIELD OVERWRITE position ON chunk TYPE int DEFAULT 0;
DEFINE FIELD OVERWRITE embedding ON chunk TYPE array<float>;
DEFINE INDEX OVERWRITE chunk_file_id ON chunk FIELDS fileId;
DEFINE INDEX OVERWRITE chunk_tender_id ON chunk FIELDS tenderId;
DEFINE INDEX OVERWRITE chunk_embedding ON chunk FIELDS embedding
    HNSW DIMENSION 384 DIST COSINE;
`
