package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"broker_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, company_id, contact_name, email, phone, message, status, source,
	property_id, notes, follow_up_date, created_at, updated_at`

// rowScanner is satisfied by pgx.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(s rowScanner) (domain.Lead, error) {
	var lead domain.Lead
	var status, source string
	err := s.Scan(
		&lead.ID, &lead.CompanyID, &lead.ContactName, &lead.Email, &lead.Phone, &lead.Message,
		&status, &source, &lead.PropertyID, &lead.Notes, &lead.FollowUpDate,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Status = domain.Status(status)
	lead.Source = domain.Source(source)
	return lead, nil
}

func collectLeads(rows pgx.Rows) ([]domain.Lead, error) {
	defer rows.Close()
	items := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repository) Create(ctx context.Context, params domain.NewLead) (domain.Lead, error) {
	params = params.WithDefaults()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			company_id, contact_name, email, phone, message, status, source, property_id, notes, follow_up_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+leadColumns,
		params.CompanyID, params.ContactName, params.Email, params.Phone, params.Message,
		string(params.Status), string(params.Source), params.PropertyID, params.Notes, params.FollowUpDate,
	)
	return scanLead(row)
}

func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads WHERE id = $1 AND company_id = $2
	`, id, tenantID)
	return scanLead(row)
}

func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID, params domain.ListParams) ([]domain.Lead, int, error) {
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := max(params.Offset, 0)

	var status *string
	if params.Status != nil {
		s := string(*params.Status)
		status = &s
	}

	var pattern string
	if params.Search != "" {
		pattern = "%" + likeEscaper.Replace(params.Search) + "%"
	}

	const filter = `
		WHERE company_id = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3 = '' OR contact_name ILIKE $3 OR email ILIKE $3 OR phone ILIKE $3)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads`+filter, tenantID, status, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads`+filter+`
		ORDER BY created_at DESC, id
		LIMIT $4 OFFSET $5
	`, tenantID, status, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectLeads(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// patchClauses turns the present patch fields into SET clauses starting at
// placeholder argIdx. Cleared fields bind nil and are written as NULL.
func patchClauses(patch domain.Patch, argIdx int) ([]string, []any) {
	var status, source *string
	if s, ok := patch.Status.Get(); ok {
		v := string(s)
		status = &v
	}
	if s, ok := patch.Source.Get(); ok {
		v := string(s)
		source = &v
	}
	followUp := patch.FollowUpDate.Ptr()
	if followUp != nil {
		d := domain.DateOnly(*followUp)
		followUp = &d
	}

	fields := []struct {
		enabled bool
		column  string
		value   any
	}{
		{patch.ContactName.IsSet(), "contact_name", patch.ContactName.Ptr()},
		{patch.Email.IsSet(), "email", patch.Email.Ptr()},
		{patch.Phone.IsSet(), "phone", patch.Phone.Ptr()},
		{patch.Message.IsSet(), "message", patch.Message.Ptr()},
		{patch.Status.IsSet(), "status", status},
		{patch.Source.IsSet(), "source", source},
		{patch.PropertyID.IsSet(), "property_id", patch.PropertyID.Ptr()},
		{patch.Notes.IsSet(), "notes", patch.Notes.Ptr()},
		{patch.FollowUpDate.IsSet(), "follow_up_date", followUp},
	}

	setClauses := []string{}
	args := []any{}
	for _, field := range fields {
		if !field.enabled {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field.column, argIdx))
		args = append(args, field.value)
		argIdx++
	}
	return setClauses, args
}

func (r *Repository) Update(ctx context.Context, tenantID, id uuid.UUID, patch domain.Patch) (domain.Lead, error) {
	setClauses, args := patchClauses(patch, 1)
	if len(setClauses) == 0 {
		return r.Get(ctx, tenantID, id)
	}

	setClauses = append(setClauses, "updated_at = now()")
	argIdx := len(args) + 1
	args = append(args, id, tenantID)

	query := fmt.Sprintf(`
		UPDATE leads SET %s
		WHERE id = $%d AND company_id = $%d
		RETURNING %s
	`, strings.Join(setClauses, ", "), argIdx, argIdx+1, leadColumns)

	return scanLead(r.pool.QueryRow(ctx, query, args...))
}

func (r *Repository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1 AND company_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) BulkUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch domain.Patch) ([]domain.Lead, error) {
	if len(ids) == 0 {
		return []domain.Lead{}, nil
	}

	setClauses, args := patchClauses(patch, 1)
	argIdx := len(args) + 1
	args = append(args, ids, tenantID)

	if len(setClauses) == 0 {
		rows, err := r.pool.Query(ctx, fmt.Sprintf(`
			SELECT %s FROM leads WHERE id = ANY($%d) AND company_id = $%d
		`, leadColumns, argIdx, argIdx+1), args...)
		if err != nil {
			return nil, err
		}
		return collectLeads(rows)
	}

	setClauses = append(setClauses, "updated_at = now()")
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		UPDATE leads SET %s
		WHERE id = ANY($%d) AND company_id = $%d
		RETURNING %s
	`, strings.Join(setClauses, ", "), argIdx, argIdx+1, leadColumns), args...)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

func (r *Repository) BulkDelete(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		DELETE FROM leads WHERE id = ANY($1) AND company_id = $2
		RETURNING id
	`, ids, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deleted := make([]uuid.UUID, 0, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

func (r *Repository) PropertyTitle(ctx context.Context, tenantID, propertyID uuid.UUID) (string, error) {
	var title string
	err := r.pool.QueryRow(ctx, `
		SELECT title FROM properties WHERE id = $1 AND company_id = $2
	`, propertyID, tenantID).Scan(&title)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrPropertyNotFound
	}
	return title, err
}
