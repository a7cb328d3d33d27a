package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/igorsal/pr-sentinel/internal/models"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

const (
	insertReviewSQL = `
		INSERT INTO reviews (id, title, description, status, owner, repo, pull_number, author, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertCommentSQL = `
		INSERT INTO review_comments (id, review_id, position, file_path, line, severity, category, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectReviewColumns = `id::text, title, description, status, owner, repo, pull_number, author, score, created_at`

	selectCommentsSQL = `
		SELECT review_id::text, id::text, file_path, line, severity, category, body
		FROM review_comments
		WHERE review_id = ANY($1)
		ORDER BY review_id, position`
)

// CreateReview stores the review and its comments in one transaction and
// returns the new review ID
func (s *Store) CreateReview(ctx context.Context, input models.CreateReviewInput) (id string, err error) {
	start := time.Now()
	defer func() { s.observe("create_review", start, err) }()

	reviewID := uuid.New()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertReviewSQL,
		reviewID, input.Title, input.Description, string(input.Status),
		input.Owner, input.Repo, input.PullNumber, input.Author, input.Score,
	); err != nil {
		return "", fmt.Errorf("insert review: %w", err)
	}

	if len(input.Comments) > 0 {
		batch := &pgx.Batch{}
		for i, c := range input.Comments {
			batch.Queue(insertCommentSQL,
				uuid.New(), reviewID, i, c.FilePath, c.Line, string(c.Severity), c.Category, c.Body,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return "", fmt.Errorf("insert review comments: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Debug("Review stored",
		"review_id", reviewID.String(),
		"owner", input.Owner,
		"repo", input.Repo,
		"number", input.PullNumber,
		"comments", len(input.Comments),
	)
	return reviewID.String(), nil
}

// GetReview loads a review with its comments
func (s *Store) GetReview(ctx context.Context, id string) (review *models.Review, err error) {
	start := time.Now()
	defer func() { s.observe("get_review", start, err) }()

	reviewID, parseErr := uuid.Parse(id)
	if parseErr != nil {
		return nil, pkgerrors.NewNotFoundError(fmt.Sprintf("review %s not found", id))
	}

	row := s.pool.QueryRow(ctx, `SELECT `+selectReviewColumns+` FROM reviews WHERE id = $1`, reviewID)
	r, err := scanReview(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError(fmt.Sprintf("review %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("select review: %w", err)
	}

	reviews := []models.Review{r}
	if err := s.attachComments(ctx, reviews); err != nil {
		return nil, err
	}
	return &reviews[0], nil
}

// ListReviews returns the reviews of a pull request, newest first
func (s *Store) ListReviews(ctx context.Context, owner, repo string, pullNumber int) (reviews []models.Review, err error) {
	start := time.Now()
	defer func() { s.observe("list_reviews", start, err) }()

	rows, err := s.pool.Query(ctx, `SELECT `+selectReviewColumns+` FROM reviews
		WHERE owner = $1 AND repo = $2 AND pull_number = $3
		ORDER BY created_at DESC`, owner, repo, pullNumber)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	reviews = []models.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}

	if err := s.attachComments(ctx, reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (s *Store) attachComments(ctx context.Context, reviews []models.Review) error {
	if len(reviews) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(reviews))
	index := make(map[string]int, len(reviews))
	for i := range reviews {
		id, err := uuid.Parse(reviews[i].ID)
		if err != nil {
			return fmt.Errorf("parse review id: %w", err)
		}
		ids = append(ids, id)
		index[reviews[i].ID] = i
		reviews[i].Comments = []models.ReviewComment{}
	}

	rows, err := s.pool.Query(ctx, selectCommentsSQL, ids)
	if err != nil {
		return fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reviewID, severity string
		var c models.ReviewComment
		if err := rows.Scan(&reviewID, &c.ID, &c.FilePath, &c.Line, &severity, &c.Category, &c.Body); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		c.Severity = models.CommentSeverity(severity)
		if i, ok := index[reviewID]; ok {
			reviews[i].Comments = append(reviews[i].Comments, c)
		}
	}
	return rows.Err()
}

func scanReview(row pgx.Row) (models.Review, error) {
	var r models.Review
	var status string
	err := row.Scan(&r.ID, &r.Title, &r.Description, &status, &r.Owner, &r.Repo, &r.PullNumber, &r.Author, &r.Score, &r.CreatedAt)
	r.Status = models.ReviewStatus(status)
	return r, err
}
