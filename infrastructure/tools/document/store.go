// Package document stores imported CSV rows in SQLite and serves keyword
// lookups over them.
package document

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// Document is one imported row.
type Document struct {
	ID         uint   `gorm:"primaryKey"`
	Title      string `gorm:"type:varchar(512);index"`
	Body       string `gorm:"type:text"`
	Fields     string `gorm:"type:text"`
	SourceFile string `gorm:"type:varchar(512)"`
	CreatedAt  time.Time
}

// TableName keeps the table name stable.
func (Document) TableName() string { return "documents" }

// titleColumns are header names treated as the row title, in priority
// order. Without one the first column is used.
var titleColumns = []string{"title", "제목", "name", "subject"}

// Store reads and writes documents.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the documents table on db.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, errors.Wrap(err, "migrate documents")
	}
	return &Store{db: db}, nil
}

// ImportCSV inserts one document per data row of r. The first row is the
// header. Empty cells are omitted from the stored fields.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader, sourceFile string) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read csv header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	titleIdx := titleColumn(header)

	var docs []Document
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, errors.Wrapf(err, "read csv line %d", line)
		}

		fields := make(map[string]string, len(header))
		var body []string
		for i, col := range header {
			if i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
				continue
			}
			fields[col] = rec[i]
			body = append(body, col+": "+rec[i])
		}
		if len(fields) == 0 {
			continue
		}
		encoded, err := json.Marshal(fields)
		if err != nil {
			return 0, errors.Wrap(err, "encode fields")
		}
		title := ""
		if titleIdx < len(rec) {
			title = rec[titleIdx]
		}
		docs = append(docs, Document{
			Title:      title,
			Body:       strings.Join(body, "\n"),
			Fields:     string(encoded),
			SourceFile: sourceFile,
		})
	}
	if len(docs) == 0 {
		return 0, nil
	}

	if err := s.db.WithContext(ctx).CreateInBatches(&docs, 100).Error; err != nil {
		return 0, errors.Wrap(err, "insert documents")
	}
	return len(docs), nil
}

// Match is one search hit.
type Match struct {
	Title      string            `json:"title"`
	Fields     map[string]string `json:"fields"`
	SourceFile string            `json:"source_file,omitempty"`
	Score      int               `json:"score"`
}

// Search returns up to limit documents containing any whitespace-separated
// term of query, ranked by how many distinct terms they contain. Title hits
// count double.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	terms := uniqueTerms(query)
	if len(terms) == 0 {
		return nil, errors.New("query has no search terms")
	}
	if limit <= 0 {
		limit = 3
	}

	clauses := make([]string, 0, len(terms))
	args := make([]any, 0, 2*len(terms))
	for _, term := range terms {
		like := "%" + escapeLike(term) + "%"
		clauses = append(clauses, `title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\'`)
		args = append(args, like, like)
	}
	var docs []Document
	err := s.db.WithContext(ctx).
		Where(strings.Join(clauses, " OR "), args...).
		Order("id").
		Find(&docs).Error
	if err != nil {
		return nil, errors.Wrap(err, "search documents")
	}

	matches := make([]Match, 0, len(docs))
	for _, d := range docs {
		score := 0
		lowerTitle, lowerBody := strings.ToLower(d.Title), strings.ToLower(d.Body)
		for _, term := range terms {
			if strings.Contains(lowerTitle, term) {
				score += 2
			} else if strings.Contains(lowerBody, term) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		var fields map[string]string
		if err := json.Unmarshal([]byte(d.Fields), &fields); err != nil {
			return nil, errors.Wrapf(err, "decode document %d", d.ID)
		}
		matches = append(matches, Match{Title: d.Title, Fields: fields, SourceFile: d.SourceFile, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Document{}).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count documents")
	}
	return n, nil
}

func titleColumn(header []string) int {
	for _, want := range titleColumns {
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), want) {
				return i
			}
		}
	}
	return 0
}

func uniqueTerms(query string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
