package cache

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jrsteele09/hourstracker-client/internal/errors"
	"github.com/jrsteele09/hourstracker-client/provider/cache/migrations"
	_ "modernc.org/sqlite"
)

const activeAccountKey = "active_account_id"

var _ Repo = (*SQLiteRepo)(nil)

// SQLiteRepo persists the provider cache in a sqlite file so that accounts,
// tokens and pending flows survive a restart. Token material is sealed.
type SQLiteRepo struct {
	db     *sql.DB
	sealer *Sealer
}

// NewSQLiteRepo opens (or creates) the cache at path and applies migrations
func NewSQLiteRepo(path string, sealer *Sealer) (*SQLiteRepo, error) {
	if sealer == nil {
		return nil, fmt.Errorf("[cache NewSQLiteRepo] sealer is required: %w", errors.ErrInvalidConfig)
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("[cache NewSQLiteRepo] open: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serialises writers
	db.SetMaxOpenConns(1)

	r := &SQLiteRepo{db: db, sealer: sealer}
	if err := r.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[cache NewSQLiteRepo] migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepo) applyMigrations() error {
	driver, err := migratesqlite.WithInstance(r.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (r *SQLiteRepo) Close() error { return r.db.Close() }

func (r *SQLiteRepo) UpsertAccount(account Account) error {
	if account.AccountID == "" {
		return fmt.Errorf("accountID is required")
	}

	idToken, err := r.sealer.Seal(account.IDToken)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(context.Background(), `
		INSERT INTO accounts (account_id, local_account_id, tenant_id, name, username, authenticated_at, id_token, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT MAX(position) FROM accounts), 0) + 1)
		ON CONFLICT(account_id) DO UPDATE SET
			local_account_id = excluded.local_account_id,
			tenant_id = excluded.tenant_id,
			name = excluded.name,
			username = excluded.username,
			authenticated_at = excluded.authenticated_at,
			id_token = excluded.id_token`,
		account.AccountID, account.LocalAccountID, account.TenantID, account.Name, account.Username,
		toUnix(account.AuthenticatedAt), idToken)
	if err != nil {
		return fmt.Errorf("[SQLiteRepo UpsertAccount] %w", err)
	}
	return nil
}

func (r *SQLiteRepo) GetAccount(accountID string) (Account, error) {
	row := r.db.QueryRowContext(context.Background(), `
		SELECT account_id, local_account_id, tenant_id, name, username, authenticated_at, id_token
		FROM accounts WHERE account_id = ?`, accountID)
	account, err := r.scanAccount(row)
	if err != nil {
		return Account{}, mapNotFound(err, "account "+accountID)
	}
	return account, nil
}

func (r *SQLiteRepo) ListAccounts() ([]Account, error) {
	rows, err := r.db.QueryContext(context.Background(), `
		SELECT account_id, local_account_id, tenant_id, name, username, authenticated_at, id_token
		FROM accounts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("[SQLiteRepo ListAccounts] %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepo) scanAccount(row rowScanner) (Account, error) {
	var (
		account         Account
		authenticatedAt int64
		idToken         []byte
	)
	if err := row.Scan(&account.AccountID, &account.LocalAccountID, &account.TenantID, &account.Name,
		&account.Username, &authenticatedAt, &idToken); err != nil {
		return Account{}, err
	}
	account.AuthenticatedAt = fromUnix(authenticatedAt)
	if len(idToken) > 0 {
		plain, err := r.sealer.Open(idToken)
		if err != nil {
			return Account{}, err
		}
		account.IDToken = plain
	}
	return account, nil
}

func (r *SQLiteRepo) DeleteAccount(accountID string) error {
	ctx := context.Background()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range []string{
		`DELETE FROM access_tokens WHERE account_id = ?`,
		`DELETE FROM refresh_tokens WHERE account_id = ?`,
		`DELETE FROM accounts WHERE account_id = ?`,
		`DELETE FROM settings WHERE key = '` + activeAccountKey + `' AND value = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, accountID); err != nil {
			return fmt.Errorf("[SQLiteRepo DeleteAccount] %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepo) SetActiveAccountID(accountID string) error {
	_, err := r.db.ExecContext(context.Background(), `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, activeAccountKey, accountID)
	return err
}

func (r *SQLiteRepo) GetActiveAccountID() (string, error) {
	var id string
	err := r.db.QueryRowContext(context.Background(), `SELECT value FROM settings WHERE key = ?`, activeAccountKey).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (r *SQLiteRepo) UpsertRefreshToken(accountID, token string) error {
	sealed, err := r.sealer.Seal(token)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(context.Background(), `
		INSERT INTO refresh_tokens (account_id, token) VALUES (?, ?)
		ON CONFLICT(account_id) DO UPDATE SET token = excluded.token`, accountID, sealed)
	if err != nil {
		return fmt.Errorf("[SQLiteRepo UpsertRefreshToken] %w", err)
	}
	return nil
}

func (r *SQLiteRepo) GetRefreshToken(accountID string) (string, error) {
	var sealed []byte
	err := r.db.QueryRowContext(context.Background(), `SELECT token FROM refresh_tokens WHERE account_id = ?`, accountID).Scan(&sealed)
	if err != nil {
		return "", mapNotFound(err, "refresh token for "+accountID)
	}
	return r.sealer.Open(sealed)
}

func (r *SQLiteRepo) UpsertAccessToken(accountID, scopeKey string, token AccessToken) error {
	sealed, err := r.sealer.Seal(token.Token)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(context.Background(), `
		INSERT INTO access_tokens (account_id, scope_key, token, token_type, scopes, expires_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, scope_key) DO UPDATE SET
			token = excluded.token,
			token_type = excluded.token_type,
			scopes = excluded.scopes,
			expires_at = excluded.expires_at`,
		accountID, scopeKey, sealed, token.TokenType, strings.Join(token.Scopes, " "), toUnix(token.ExpiresAt))
	if err != nil {
		return fmt.Errorf("[SQLiteRepo UpsertAccessToken] %w", err)
	}
	return nil
}

func (r *SQLiteRepo) GetAccessToken(accountID, scopeKey string) (AccessToken, error) {
	var (
		token     AccessToken
		sealed    []byte
		scopes    string
		expiresAt int64
	)
	err := r.db.QueryRowContext(context.Background(), `
		SELECT token, token_type, scopes, expires_at FROM access_tokens
		WHERE account_id = ? AND scope_key = ?`, accountID, scopeKey).Scan(&sealed, &token.TokenType, &scopes, &expiresAt)
	if err != nil {
		return AccessToken{}, mapNotFound(err, "access token for "+accountID)
	}
	plain, err := r.sealer.Open(sealed)
	if err != nil {
		return AccessToken{}, err
	}
	token.Token = plain
	token.Scopes = strings.Fields(scopes)
	token.ExpiresAt = fromUnix(expiresAt)
	return token, nil
}

func (r *SQLiteRepo) UpsertFlow(flow *FlowState) error {
	if flow == nil || flow.State == "" {
		return fmt.Errorf("state cannot be empty")
	}
	verifier, err := r.sealer.Seal(flow.CodeVerifier)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(context.Background(), `
		INSERT INTO flows (state, nonce, code_verifier, scopes, return_url, auth_url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(state) DO UPDATE SET
			nonce = excluded.nonce,
			code_verifier = excluded.code_verifier,
			scopes = excluded.scopes,
			return_url = excluded.return_url,
			auth_url = excluded.auth_url,
			created_at = excluded.created_at`,
		flow.State, flow.Nonce, verifier, strings.Join(flow.Scopes, " "), flow.ReturnURL, flow.AuthURL, toUnix(flow.CreatedAt))
	if err != nil {
		return fmt.Errorf("[SQLiteRepo UpsertFlow] %w", err)
	}
	return nil
}

func (r *SQLiteRepo) GetFlow(state string) (*FlowState, error) {
	row := r.db.QueryRowContext(context.Background(), `
		SELECT state, nonce, code_verifier, scopes, return_url, auth_url, created_at FROM flows WHERE state = ?`, state)
	return r.scanFlow(row)
}

func (r *SQLiteRepo) LatestFlow() (*FlowState, error) {
	row := r.db.QueryRowContext(context.Background(), `
		SELECT state, nonce, code_verifier, scopes, return_url, auth_url, created_at FROM flows
		ORDER BY created_at DESC LIMIT 1`)
	return r.scanFlow(row)
}

func (r *SQLiteRepo) scanFlow(row rowScanner) (*FlowState, error) {
	var (
		flow      FlowState
		verifier  []byte
		scopes    string
		createdAt int64
	)
	err := row.Scan(&flow.State, &flow.Nonce, &verifier, &scopes, &flow.ReturnURL, &flow.AuthURL, &createdAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrFlowNotFound
	}
	if err != nil {
		return nil, err
	}
	if flow.CodeVerifier, err = r.sealer.Open(verifier); err != nil {
		return nil, err
	}
	flow.Scopes = strings.Fields(scopes)
	flow.CreatedAt = fromUnix(createdAt)
	return &flow, nil
}

func (r *SQLiteRepo) DeleteFlow(state string) error {
	_, err := r.db.ExecContext(context.Background(), `DELETE FROM flows WHERE state = ?`, state)
	return err
}

func (r *SQLiteRepo) SetInteractionFailure(failure *InteractionFailure) error {
	if failure == nil {
		return r.ClearInteractionFailure()
	}
	_, err := r.db.ExecContext(context.Background(), `
		INSERT INTO interaction_failures (id, code, description, occurred_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			description = excluded.description,
			occurred_at = excluded.occurred_at`,
		failure.Code, failure.Description, toUnix(failure.OccurredAt))
	return err
}

func (r *SQLiteRepo) GetInteractionFailure() (*InteractionFailure, error) {
	var (
		failure    InteractionFailure
		occurredAt int64
	)
	err := r.db.QueryRowContext(context.Background(), `
		SELECT code, description, occurred_at FROM interaction_failures WHERE id = 1`).
		Scan(&failure.Code, &failure.Description, &occurredAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	failure.OccurredAt = fromUnix(occurredAt)
	return &failure, nil
}

func (r *SQLiteRepo) ClearInteractionFailure() error {
	_, err := r.db.ExecContext(context.Background(), `DELETE FROM interaction_failures`)
	return err
}

func mapNotFound(err error, what string) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, errors.ErrNotFound)
	}
	return err
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
