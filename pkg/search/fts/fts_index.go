// Package fts queries the messages_fts shadow table migration 002 creates
// and keeps in sync via triggers. No message write path lives here:
// besides Optimize, which issues FTS5's merge command, FTSIndex only
// issues SELECTs.
package fts

import (
	"context"
	"strings"

	convomemdb "github.com/convomem/convomem/pkg/db"
	cmerrors "github.com/convomem/convomem/pkg/errors"
)

// Hit is one ranked match. Hits returned by Search carry a normalized Rank
// in [0,1] where 1.0 is best, not FTS5's raw bm25 score (smaller is better).
type Hit struct {
	MessageID string
	Rank      float64
}

// FTSIndex wraps read-only access to messages_fts.
type FTSIndex struct {
	store *convomemdb.Store
}

// New binds an FTSIndex to a store.
func New(store *convomemdb.Store) *FTSIndex {
	return &FTSIndex{store: store}
}

// MatchType selects how Search interprets the query string.
type MatchType string

const (
	MatchFuzzy  MatchType = "fuzzy"
	MatchExact  MatchType = "exact"
	MatchPrefix MatchType = "prefix"
)

// Search runs query against messages_fts and returns hits best first
// (raw bm25 rank ascending), with rank already normalized to [0,1] where
// 1.0 is the best possible match in the returned set.
func (f *FTSIndex) Search(ctx context.Context, query string, matchType MatchType, conversationID string, limit int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, cmerrors.Validationf("query", "must not be empty")
	}
	if limit <= 0 {
		limit = 50
	}

	ftsQuery := buildFTSQuery(query, matchType)

	sqlQuery := `
		SELECT m.id, bm25(messages_fts) AS rank
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		WHERE messages_fts MATCH ?
	`
	args := []any{ftsQuery}
	if conversationID != "" {
		sqlQuery += ` AND m.conversation_id = ?`
		args = append(args, conversationID)
	}
	sqlQuery += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := f.store.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, cmerrors.Wrap(cmerrors.Internal, err, "fts search failed")
	}
	defer rows.Close()

	var raw []Hit
	minRank, maxRank := 0.0, 0.0
	first := true
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.MessageID, &h.Rank); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan fts hit")
		}
		if first || h.Rank < minRank {
			minRank = h.Rank
		}
		if first || h.Rank > maxRank {
			maxRank = h.Rank
		}
		first = false
		raw = append(raw, h)
	}

	return normalize(raw, minRank, maxRank), nil
}

// normalize maps bm25 scores (more negative is better in SQLite's
// convention) onto [0,1] where 1.0 is the best match in this result set.
func normalize(hits []Hit, minRank, maxRank float64) []Hit {
	spread := maxRank - minRank
	for i := range hits {
		if spread == 0 {
			hits[i].Rank = 1.0
			continue
		}
		hits[i].Rank = 1.0 - (hits[i].Rank-minRank)/spread
	}
	return hits
}

// buildFTSQuery translates the public match-type vocabulary into an FTS5
// MATCH expression: exact quotes the whole phrase, prefix appends a
// trailing '*' to the last token, fuzzy passes the token list as an
// implicit AND of terms.
func buildFTSQuery(query string, matchType MatchType) string {
	switch matchType {
	case MatchExact:
		return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	case MatchPrefix:
		tokens := strings.Fields(query)
		if len(tokens) == 0 {
			return query
		}
		tokens[len(tokens)-1] = tokens[len(tokens)-1] + "*"
		return strings.Join(tokens, " ")
	default:
		return query
	}
}

// Optimize merges FTS5 segments, reclaiming space and speeding future
// queries after a large batch of writes.
func (f *FTSIndex) Optimize(ctx context.Context) error {
	_, err := f.store.Exec(ctx, `INSERT INTO messages_fts(messages_fts) VALUES ('optimize')`)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to optimize fts index")
	}
	return nil
}
