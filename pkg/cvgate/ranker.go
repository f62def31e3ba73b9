package cvgate

import (
	"context"
	"fmt"
	"sort"
)

// Ranker orders a user's documents by recency and derives the
// editable/read-only partition bounded by the effective plan's document
// limit. Rank is a pure function over current storage state: it is
// recomputed on every call and never cached, so a downgrade takes
// effect on the very next check and no document is ever deleted to
// enforce the new limit.
type Ranker struct {
	store    Store
	resolver *Resolver
}

// NewRanker creates a document ranker backed by the given store and
// resolver.
func NewRanker(store Store, resolver *Resolver) *Ranker {
	return &Ranker{store: store, resolver: resolver}
}

// Rank returns the 1-based position of a document among its owner's
// documents ordered newest-first, and whether that position falls
// within the plan's editable window. Returns ErrDocumentNotFound when
// the document does not exist or is not owned by userID.
func (r *Ranker) Rank(ctx context.Context, userID, documentID string) (*DocumentRank, error) {
	ranked, limit, err := r.rankAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, doc := range ranked {
		if doc.ID == documentID {
			return &DocumentRank{
				DocumentID: documentID,
				Position:   doc.Position,
				Limit:      limit,
				Editable:   doc.Editable,
			}, nil
		}
	}
	return nil, ErrDocumentNotFound
}

// RankAll returns every document owned by the user with its position
// and editability, newest first.
func (r *Ranker) RankAll(ctx context.Context, userID string) ([]RankedDocument, error) {
	ranked, _, err := r.rankAll(ctx, userID)
	return ranked, err
}

// Summary returns the user's document-access state: how many documents
// exist, how many of them are editable under the current plan, and
// whether a new one may be created.
func (r *Ranker) Summary(ctx context.Context, userID string) (*AccessSummary, error) {
	ranked, limit, err := r.rankAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := len(ranked)
	editable := total
	if editable > limit {
		editable = limit
	}

	return &AccessSummary{
		Total:         total,
		EditableCount: editable,
		ReadOnlyCount: total - editable,
		Limit:         limit,
		OverLimit:     total > limit,
		CanCreateNew:  total < limit,
	}, nil
}

func (r *Ranker) rankAll(ctx context.Context, userID string) ([]RankedDocument, int, error) {
	plan, err := r.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	limit := plan.Plan.MaxEditableDocuments

	ranked, err := r.rankFor(ctx, userID, limit)
	return ranked, limit, err
}

// rankFor ranks against an already-resolved limit, sparing callers that
// hold an EffectivePlan a second resolution.
func (r *Ranker) rankFor(ctx context.Context, userID string, limit int) ([]RankedDocument, error) {
	docs, err := r.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	// Newest first; ties broken by ID so rank is deterministic.
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})

	ranked := make([]RankedDocument, len(docs))
	for i, doc := range docs {
		position := i + 1
		ranked[i] = RankedDocument{
			DocumentRef: doc,
			Position:    position,
			Editable:    position <= limit,
		}
	}
	return ranked, nil
}
