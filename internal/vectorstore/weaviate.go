package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"studyforge/internal/config"
	"studyforge/internal/services"
)

// Weaviate stores chunk vectors in one Weaviate class with no vectorizer;
// vectors are always supplied by the caller.
type Weaviate struct {
	client *weaviate.Client
	class  string
}

// NewWeaviate connects to the configured Weaviate endpoint.
func NewWeaviate(cfg config.VectorStore) (*Weaviate, error) {
	parsed, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || parsed.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "vectorstore", "parse url", fmt.Sprintf("invalid vector_store.url %q", cfg.URL), err)
	}
	wcfg := weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	}
	if wcfg.Scheme == "" {
		wcfg.Scheme = "http"
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		wcfg.Headers = map[string]string{"Authorization": "Bearer " + key}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "vectorstore", "connect", "create weaviate client", err)
	}
	return &Weaviate{client: client, class: cfg.ClassName}, nil
}

// EnsureSchema creates the chunk class when it does not exist yet.
func (w *Weaviate) EnsureSchema(ctx context.Context) error {
	if _, err := w.client.Schema().ClassGetter().WithClassName(w.class).Do(ctx); err == nil {
		return nil
	}
	filterable := true
	class := &models.Class{
		Class:       w.class,
		Description: "Embedded transcript chunks of study material",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: KeyContentID, DataType: []string{"text"}, IndexFilterable: &filterable, Tokenization: "field"},
			{Name: KeyChunkIndex, DataType: []string{"int"}, IndexFilterable: &filterable},
			{Name: KeyText, DataType: []string{"text"}, Tokenization: "word"},
		},
	}
	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return services.Wrap(services.ErrExternalTool, "vectorstore", "create schema", w.class, err)
	}
	return nil
}

// Upsert writes records in one batch. Ids are stable per (content, chunk).
func (w *Weaviate) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	objects := make([]*models.Object, len(records))
	for i, rec := range records {
		id := rec.ID
		if id == "" {
			id = RecordID(rec.ContentID, rec.ChunkIndex)
		}
		objects[i] = &models.Object{
			Class:  w.class,
			ID:     strfmt.UUID(id),
			Vector: rec.Vector,
			Properties: map[string]any{
				KeyContentID:  rec.ContentID,
				KeyChunkIndex: rec.ChunkIndex,
				KeyText:       rec.Text,
			},
		}
	}
	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "vectorstore", "upsert", fmt.Sprintf("%d records", len(records)), err)
	}
	var failures []string
	for _, item := range resp {
		if item.Result == nil || item.Result.Errors == nil {
			continue
		}
		for _, e := range item.Result.Errors.Error {
			failures = append(failures, e.Message)
		}
	}
	if len(failures) > 0 {
		return services.Wrap(services.ErrExternalTool, "vectorstore", "upsert", fmt.Sprintf("%d of %d records failed: %s", len(failures), len(records), failures[0]), nil)
	}
	return nil
}

// DeleteByMetadata batch-deletes every object matching filter.
func (w *Weaviate) DeleteByMetadata(ctx context.Context, filter Filter) (int64, error) {
	where, err := whereFor(filter)
	if err != nil {
		return 0, err
	}
	resp, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(w.class).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "vectorstore", "delete by metadata", describeFilter(filter), err)
	}
	if resp == nil || resp.Results == nil {
		return 0, nil
	}
	if resp.Results.Failed > 0 {
		return resp.Results.Successful, services.Wrap(services.ErrExternalTool, "vectorstore", "delete by metadata",
			fmt.Sprintf("%d objects failed to delete (%s)", resp.Results.Failed, describeFilter(filter)), nil)
	}
	return resp.Results.Successful, nil
}

// Query runs a nearVector search restricted by filter.
func (w *Weaviate) Query(ctx context.Context, vector []float32, filter Filter, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 5
	}
	fields := []graphql.Field{
		{Name: KeyContentID},
		{Name: KeyChunkIndex},
		{Name: KeyText},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
	}
	query := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithNearVector(w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
		WithLimit(limit)
	if len(filter) > 0 {
		where, err := whereFor(filter)
		if err != nil {
			return nil, err
		}
		query = query.WithWhere(where)
	}
	result, err := query.Do(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "vectorstore", "query", describeFilter(filter), err)
	}
	if len(result.Errors) > 0 {
		return nil, services.Wrap(services.ErrExternalTool, "vectorstore", "query", result.Errors[0].Message, nil)
	}
	return parseMatches(result.Data, w.class)
}

type queryHit struct {
	ContentID  string  `json:"content_id"`
	ChunkIndex float64 `json:"chunk_index"`
	Text       string  `json:"text"`
	Additional struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

func parseMatches(data map[string]models.JSONObject, class string) ([]Match, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode graphql data: %w", err)
	}
	var decoded struct {
		Get map[string][]queryHit `json:"Get"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode graphql data: %w", err)
	}
	hits := decoded.Get[class]
	out := make([]Match, 0, len(hits))
	for _, hit := range hits {
		out = append(out, Match{
			Record: Record{
				ID:         hit.Additional.ID,
				ContentID:  hit.ContentID,
				ChunkIndex: int(hit.ChunkIndex),
				Text:       hit.Text,
			},
			Score: hit.Additional.Certainty,
		})
	}
	return out, nil
}

func whereFor(filter Filter) (*filters.WhereBuilder, error) {
	if len(filter) == 0 {
		return nil, services.Wrap(services.ErrValidation, "vectorstore", "build filter", "refusing to match every object", nil)
	}
	keys := sortedKeys(filter)
	operands := make([]*filters.WhereBuilder, 0, len(keys))
	for _, key := range keys {
		clause := filters.Where().WithPath([]string{key}).WithOperator(filters.Equal)
		if key == KeyChunkIndex {
			n, err := strconv.ParseInt(filter[key], 10, 64)
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, "vectorstore", "build filter", "chunk_index must be an integer", err)
			}
			clause = clause.WithValueInt(n)
		} else {
			clause = clause.WithValueText(filter[key])
		}
		operands = append(operands, clause)
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands), nil
}

func describeFilter(filter Filter) string {
	keys := sortedKeys(filter)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+filter[key])
	}
	return strings.Join(parts, ",")
}

func sortedKeys(filter Filter) []string {
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

var _ Store = (*Weaviate)(nil)
