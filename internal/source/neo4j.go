package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"

	"github.com/dossier/kgexplorer/internal/graph"
)

// ErrGeneNotFound is returned when the target gene is absent from the
// knowledge graph.
var ErrGeneNotFound = errors.New("target gene not found")

// Runner executes a Cypher query and returns a fully buffered result.
type Runner interface {
	Run(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error)
}

// driverRunner runs queries through neo4j.ExecuteQuery against one database.
type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) Run(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		r.driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Metapath queries
// ---------------------------------------------------------------------------

// metapathQuery is the Cypher for one metapath and the record keys holding
// its nodes and relationships.
type metapathQuery struct {
	cypher string
	nodes  []string
	edges  []string
}

var metapathQueries = map[Metapath]metapathQuery{
	MetapathDGPG: {
		cypher: "MATCH (d:`biolink:Disease`)-[r1]-(g1:`biolink:Gene`)-[r2]-(bp:`biolink:Pathway`)-[r3]-(g:`biolink:Gene`)\n" +
			"WHERE g.name = $target_gene\n" +
			"AND (d.id IN $diseases OR any(id IN d.equivalent_identifiers WHERE id IN $diseases))\n" +
			"RETURN d, r1, g1, r2, bp, r3, g",
		nodes: []string{"d", "g1", "bp", "g"},
		edges: []string{"r1", "r2", "r3"},
	},
	MetapathGGGD: {
		cypher: "MATCH (g:`biolink:Gene`)-[r1]-(g2:`biolink:Gene`)-[r2:`biolink:directly_physically_interacts_with`]-(g3)-[r3:`biolink:target_for`]-(d:`biolink:Disease`)\n" +
			"WHERE g.name = $target_gene\n" +
			"AND (d.id IN $diseases OR any(id IN d.equivalent_identifiers WHERE id IN $diseases))\n" +
			"RETURN g, r1, g2, r2, g3, r3, d",
		nodes: []string{"g", "g2", "g3", "d"},
		edges: []string{"r1", "r2", "r3"},
	},
}

// ---------------------------------------------------------------------------
// Neo4jSource
// ---------------------------------------------------------------------------

// Neo4jSource runs metapath queries against a Neo4j knowledge graph.
type Neo4jSource struct {
	runner Runner
	driver neo4j.DriverWithContext
}

// NewNeo4jSource connects to cfg.URI and verifies connectivity. An empty
// username connects without authentication.
func NewNeo4jSource(ctx context.Context, cfg Config) (*Neo4jSource, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("source/neo4j: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("source/neo4j: verify connectivity %s: %w", cfg.URI, err)
	}
	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jSource{
		runner: &driverRunner{driver: driver, database: database},
		driver: driver,
	}, nil
}

// NewNeo4jSourceWithRunner builds a source over an existing runner.
func NewNeo4jSourceWithRunner(r Runner) *Neo4jSource {
	return &Neo4jSource{runner: r}
}

// Name implements Source.
func (n *Neo4jSource) Name() string { return "neo4j" }

// Close implements Source.
func (n *Neo4jSource) Close() error {
	if n.driver == nil {
		return nil
	}
	return n.driver.Close(context.Background())
}

// Fetch implements Source. The target gene is looked up first so a typo
// reports ErrGeneNotFound rather than an empty graph.
func (n *Neo4jSource) Fetch(ctx context.Context, q Query) (*graph.Dataset, error) {
	mq, ok := metapathQueries[q.Metapath]
	if !ok {
		return nil, fmt.Errorf("source/neo4j: %w: %q", ErrUnknownMetapath, q.Metapath)
	}

	if err := n.lookupGene(ctx, q.TargetGene); err != nil {
		return nil, err
	}

	result, err := n.runner.Run(ctx, mq.cypher, map[string]interface{}{
		"target_gene": q.TargetGene,
		"diseases":    q.TargetDiseases,
	})
	if err != nil {
		return nil, fetchError(n.Name(), err)
	}

	ds := recordsToDataset(result.Records, mq.nodes, mq.edges)
	slog.Debug("neo4j metapath query",
		"query", q.String(),
		"records", len(result.Records),
		"nodes", len(ds.Nodes),
		"edges", len(ds.Edges),
	)
	return ds, nil
}

// lookupGene checks that a gene named name exists.
func (n *Neo4jSource) lookupGene(ctx context.Context, name string) error {
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("g", "`"+graph.BiolinkLabel(graph.CategoryGene)+"`").
			WithProperties(map[string]interface{}{"name": name})).
		Return("g").
		Build()
	if err != nil {
		return fmt.Errorf("source/neo4j: build gene lookup: %w", err)
	}
	result, err := n.runner.Run(ctx, query, params)
	if err != nil {
		return fetchError(n.Name(), err)
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("source/neo4j: %w: %q", ErrGeneNotFound, name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Record conversion
// ---------------------------------------------------------------------------

// recordsToDataset turns metapath rows into elements. Nodes are keyed by
// element id, labelled with their name (or id property) and typed from their
// biolink labels. Relationships become edges labelled with their type, with
// the endpoint names copied into the properties as source and target. Each
// node and relationship is emitted once however many rows repeat it.
func recordsToDataset(records []*neo4j.Record, nodeKeys, edgeKeys []string) *graph.Dataset {
	var nodes []*graph.Node
	var rels []neo4j.Relationship
	seenNodes := make(map[string]*graph.Node)
	seenRels := make(map[string]bool)

	for _, rec := range records {
		for _, key := range nodeKeys {
			v, ok := rec.Get(key)
			if !ok {
				continue
			}
			node, ok := v.(neo4j.Node)
			if !ok || seenNodes[node.ElementId] != nil {
				continue
			}
			n := &graph.Node{
				ID:         node.ElementId,
				Label:      displayName(node.Props, node.ElementId),
				Type:       graph.CategoryFromLabels(node.Labels),
				Labels:     node.Labels,
				Properties: node.Props,
			}
			seenNodes[node.ElementId] = n
			nodes = append(nodes, n)
		}
		for _, key := range edgeKeys {
			v, ok := rec.Get(key)
			if !ok {
				continue
			}
			rel, ok := v.(neo4j.Relationship)
			if !ok || seenRels[rel.ElementId] {
				continue
			}
			seenRels[rel.ElementId] = true
			rels = append(rels, rel)
		}
	}

	elements := make([]graph.Element, 0, len(nodes)+len(rels))
	for _, n := range nodes {
		elements = append(elements, n)
	}
	for i, rel := range rels {
		props := make(map[string]any, len(rel.Props)+2)
		for k, v := range rel.Props {
			props[k] = v
		}
		props["source"] = endpointName(seenNodes, rel.StartElementId)
		props["target"] = endpointName(seenNodes, rel.EndElementId)
		elements = append(elements, &graph.Edge{
			ID:         graph.EdgeID(rel.StartElementId, rel.EndElementId, rel.Type, len(nodes)+i),
			Source:     rel.StartElementId,
			Target:     rel.EndElementId,
			Label:      rel.Type,
			Properties: props,
		})
	}
	return graph.NewDataset(elements)
}

// displayName prefers the name property, then the id property, then
// fallback.
func displayName(props map[string]any, fallback string) string {
	for _, key := range []string{"name", "id"} {
		if v, ok := props[key]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return fallback
}

func endpointName(nodes map[string]*graph.Node, id string) string {
	if n, ok := nodes[id]; ok {
		return displayName(n.Properties, id)
	}
	return id
}
