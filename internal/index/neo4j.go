package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kavlartius217/meditrust/internal/artifacts"
	"github.com/kavlartius217/meditrust/pkg/lifecycle"
)

// Embedder produces vectors for chunks and queries. langchaingo's
// embeddings.Embedder satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewOpenAIEmbedder builds an Embedder over an OpenAI-compatible API.
func NewOpenAIEmbedder(cfg EmbeddingConfig) (Embedder, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	e, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return e, nil
}

// Neo4jIndex stores chunks as :Chunk nodes with an embedding property and
// ranks a scope's chunks by cosine similarity to the query.
type Neo4jIndex struct {
	driver   neo4j.DriverWithContext
	cfg      Neo4jConfig
	chunker  Chunker
	embedder Embedder
	logger   *slog.Logger
	ready    atomic.Bool
}

func NewNeo4j(cfg Neo4jConfig, chunker Chunker, embedder Embedder, logger *slog.Logger) (*Neo4jIndex, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	return &Neo4jIndex{
		driver:   driver,
		cfg:      cfg,
		chunker:  chunker,
		embedder: embedder,
		logger:   logger.With("system", "index"),
	}, nil
}

func (n *Neo4jIndex) Ready() bool {
	return n.ready.Load()
}

// Start verifies connectivity and creates the schema on startup, and
// closes the driver on shutdown.
func (n *Neo4jIndex) Start(lc *lifecycle.Coordinator) error {
	lc.Check("index", n)

	lc.OnStartup(func() {
		ctx := lc.Context()
		if err := n.driver.VerifyConnectivity(ctx); err != nil {
			n.logger.Error("neo4j connectivity failed", "error", err)
			return
		}
		if err := n.ensureSchema(ctx); err != nil {
			n.logger.Error("neo4j schema setup failed", "error", err)
			return
		}
		n.ready.Store(true)
		n.logger.Info("neo4j index ready", "index", n.cfg.IndexName)
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		n.ready.Store(false)
		if err := n.driver.Close(context.Background()); err != nil {
			n.logger.Error("neo4j close failed", "error", err)
			return
		}
		n.logger.Info("neo4j driver closed")
	})

	return nil
}

func (n *Neo4jIndex) ensureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT chunk_key IF NOT EXISTS FOR (c:Chunk) REQUIRE c.key IS UNIQUE",
		"CREATE CONSTRAINT artifact_version_key IF NOT EXISTS FOR (v:ArtifactVersion) REQUIRE v.key IS UNIQUE",
		fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (c:Chunk) ON (c.scope)", n.cfg.IndexName),
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

func (n *Neo4jIndex) session(ctx context.Context) neo4j.SessionWithContext {
	return n.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.cfg.Database})
}

func (n *Neo4jIndex) Ingest(ctx context.Context, a artifacts.Artifact) error {
	key := versionKey(a.Scope, a.Name, a.Version)

	exists, err := n.versionExists(ctx, key)
	if err != nil {
		return failure("ingest", err)
	}
	if exists {
		return nil
	}

	chunks := n.chunker.Split(a.Content)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := n.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return failure("ingest", fmt.Errorf("embed chunks: %w", err))
	}
	if len(vectors) != len(chunks) {
		return failure("ingest", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}
	for _, v := range vectors {
		if err := checkDimensions(v, n.cfg.Dimensions); err != nil {
			return failure("ingest", err)
		}
	}

	rows := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		rows[i] = map[string]any{
			"key":       fmt.Sprintf("%s#%d", key, c.Offset),
			"text":      c.Text,
			"offset":    int64(c.Offset),
			"ordinal":   int64(i),
			"embedding": widen(vectors[i]),
		}
	}

	params := map[string]any{
		"key":         key,
		"scope":       a.Scope.String(),
		"artifact_id": a.ID.String(),
		"name":        a.Name,
		"version":     int64(a.Version),
		"count":       int64(len(rows)),
		"rows":        rows,
	}

	// The version node is created in the same transaction as its chunks,
	// so a concurrent duplicate ingest fails on the key constraint.
	cypher := `
		CREATE (v:ArtifactVersion {key: $key, scope: $scope, name: $name, version: $version})
		MERGE (s:IndexScope {id: $scope})
		ON CREATE SET s.seq = 0
		SET s.seq = s.seq + $count
		WITH v, s.seq - $count AS base
		UNWIND $rows AS row
		CREATE (c:Chunk {
			key: row.key, scope: $scope, artifact_id: $artifact_id, name: $name,
			version: $version, text: row.text, offset: row.offset,
			seq: base + row.ordinal + 1, embedding: row.embedding
		})
		CREATE (v)-[:HAS_CHUNK]->(c)`

	session := n.session(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		if again, _ := n.versionExists(ctx, key); again {
			return nil
		}
		return failure("ingest", err)
	}

	n.logger.Info("artifact indexed", "scope", a.Scope, "artifact", a.Key(), "chunks", len(rows))
	return nil
}

func (n *Neo4jIndex) versionExists(ctx context.Context, key string) (bool, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	found, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (v:ArtifactVersion {key: $key}) RETURN count(v) AS n", map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		count, _, err := neo4j.GetRecordValue[int64](rec, "n")
		return count > 0, err
	})
	if err != nil {
		return false, err
	}
	return found.(bool), nil
}

// scopedSearch scores every chunk of one scope exactly. Sessions hold a
// handful of artifacts, so a scan of the scope is small, and it cannot
// be crowded out by other scopes the way a global top-n search can.
const scopedSearch = `
	MATCH (c:Chunk {scope: $scope})
	WITH c, vector.similarity.cosine(c.embedding, $embedding) AS score
	ORDER BY score DESC, c.offset ASC, c.seq ASC
	LIMIT $k
	RETURN c.artifact_id AS artifact_id, c.name AS name, c.version AS version,
		c.text AS text, c.offset AS offset, c.seq AS seq, score`

func searchParams(scope uuid.UUID, vector []float32, k int) map[string]any {
	return map[string]any{
		"scope":     scope.String(),
		"embedding": widen(vector),
		"k":         int64(max(k, 1)),
	}
}

func (n *Neo4jIndex) Query(ctx context.Context, scope uuid.UUID, text string, k int) ([]Entry, error) {
	vector, err := n.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, failure("query", fmt.Errorf("embed query: %w", err))
	}
	if err := checkDimensions(vector, n.cfg.Dimensions); err != nil {
		return nil, failure("query", err)
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, scopedSearch, searchParams(scope, vector, k))
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return recordsToEntries(records)
	})
	if err != nil {
		return nil, failure("query", err)
	}
	return rank(out.([]Entry), k), nil
}

func (n *Neo4jIndex) Drop(ctx context.Context, scope uuid.UUID) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (x)
			WHERE (x:Chunk OR x:ArtifactVersion) AND x.scope = $scope
			   OR (x:IndexScope AND x.id = $scope)
			DETACH DELETE x`,
			map[string]any{"scope": scope.String()},
		)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return failure("drop", err)
}

func recordsToEntries(records []*neo4j.Record) ([]Entry, error) {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		e, err := recordToEntry(rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func checkDimensions(v []float32, want int) error {
	if want > 0 && len(v) != want {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(v), want)
	}
	return nil
}

func recordToEntry(rec *neo4j.Record) (Entry, error) {
	id, _, err := neo4j.GetRecordValue[string](rec, "artifact_id")
	if err != nil {
		return Entry{}, err
	}
	artifactID, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("parse artifact id: %w", err)
	}
	name, _, err := neo4j.GetRecordValue[string](rec, "name")
	if err != nil {
		return Entry{}, err
	}
	version, _, err := neo4j.GetRecordValue[int64](rec, "version")
	if err != nil {
		return Entry{}, err
	}
	text, _, err := neo4j.GetRecordValue[string](rec, "text")
	if err != nil {
		return Entry{}, err
	}
	offset, _, err := neo4j.GetRecordValue[int64](rec, "offset")
	if err != nil {
		return Entry{}, err
	}
	seq, _, err := neo4j.GetRecordValue[int64](rec, "seq")
	if err != nil {
		return Entry{}, err
	}
	score, _, err := neo4j.GetRecordValue[float64](rec, "score")
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		ArtifactID: artifactID,
		Name:       name,
		Version:    int(version),
		Chunk:      text,
		Offset:     int(offset),
		Seq:        seq,
		Score:      score,
	}, nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
