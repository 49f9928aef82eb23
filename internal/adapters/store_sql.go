package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"repoforge/internal/ports"
	"repoforge/internal/types"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// SQLStore persists the model in sqlite or postgres. Timestamps are stored
// as unix nanoseconds so both dialects compare them the same way.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// OpenSQLStore opens and migrates the database for the given driver name.
func OpenSQLStore(ctx context.Context, driver string, dsn string) (*SQLStore, error) {
	dialect, driverName, err := resolveDialect(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("database dsn is empty")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to open database").
			WithCause(err)
	}
	if dialect == DialectSQLite {
		// pragmas are per connection
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, errbuilder.New().
					WithCode(errbuilder.CodeInternal).
					WithMsg("failed to apply " + pragma).
					WithCause(err)
			}
		}
	}
	store := &SQLStore{db: db, dialect: dialect}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Ctx(ctx).Debug().Str("dialect", dialect).Msg("database ready")
	return store, nil
}

func resolveDialect(driver string) (string, string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, "sqlite", nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, "pgx", nil
	}
	return "", "", errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("unsupported database driver %q", driver))
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id ` + idColumn + `,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS repos (
			id ` + idColumn + `,
			project_id BIGINT NOT NULL REFERENCES projects(id),
			ref TEXT NOT NULL,
			sha1 TEXT NOT NULL,
			distro TEXT NOT NULL,
			distro_version TEXT NOT NULL,
			flavor TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			modified BIGINT NOT NULL,
			size BIGINT NOT NULL DEFAULT 0,
			signed BOOLEAN NOT NULL DEFAULT FALSE,
			extra TEXT,
			needs_update BOOLEAN NOT NULL DEFAULT FALSE,
			is_queued BOOLEAN NOT NULL DEFAULT FALSE,
			is_updating BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (project_id, ref, sha1, distro, distro_version, flavor)
		)`,
		`CREATE INDEX IF NOT EXISTS repos_dirty_idx ON repos (needs_update, is_queued)`,
		`CREATE TABLE IF NOT EXISTS binaries (
			id ` + idColumn + `,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			project_id BIGINT NOT NULL REFERENCES projects(id),
			repo_id BIGINT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
			ref TEXT NOT NULL,
			sha1 TEXT NOT NULL,
			distro TEXT NOT NULL,
			distro_version TEXT NOT NULL,
			arch TEXT NOT NULL DEFAULT '',
			flavor TEXT NOT NULL,
			size BIGINT NOT NULL DEFAULT 0,
			checksum TEXT NOT NULL DEFAULT '',
			created BIGINT NOT NULL,
			modified BIGINT NOT NULL,
			UNIQUE (repo_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS binaries_lookup_idx ON binaries (project_id, ref, distro, distro_version)`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to migrate database").
				WithCause(err)
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into the $n form postgres expects.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) GetProject(ctx context.Context, name string) (types.Project, error) {
	var project types.Project
	err := s.queryRow(ctx, `SELECT id, name FROM projects WHERE name = ?`, name).Scan(&project.ID, &project.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Project{}, projectNotFound(name)
	}
	if err != nil {
		return types.Project{}, dbError("failed to load project", err)
	}
	return project, nil
}

func (s *SQLStore) GetOrCreateProject(ctx context.Context, name string) (types.Project, error) {
	if name == "" {
		return types.Project{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("project name is empty")
	}
	if _, err := s.exec(ctx, `INSERT INTO projects (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return types.Project{}, dbError("failed to create project", err)
	}
	return s.GetProject(ctx, name)
}

func (s *SQLStore) DeleteProjectIfEmpty(ctx context.Context, projectID int64) (bool, error) {
	result, err := s.exec(ctx, `DELETE FROM projects WHERE id = ?
		AND NOT EXISTS (SELECT 1 FROM binaries WHERE project_id = ?)
		AND NOT EXISTS (SELECT 1 FROM repos WHERE project_id = ?)`, projectID, projectID, projectID)
	if err != nil {
		return false, dbError("failed to delete project", err)
	}
	return affected(result)
}

const repoColumns = `r.id, r.project_id, p.name, r.ref, r.sha1, r.distro, r.distro_version, r.flavor,
	r.path, r.type, r.modified, r.size, r.signed, r.extra, r.needs_update, r.is_queued, r.is_updating`

const repoFrom = ` FROM repos r JOIN projects p ON p.id = r.project_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepo(row rowScanner) (types.Repo, error) {
	var repo types.Repo
	var repoType string
	var modified int64
	var extra sql.NullString
	err := row.Scan(
		&repo.ID, &repo.ProjectID, &repo.Key.Project, &repo.Key.Ref, &repo.Key.SHA1,
		&repo.Key.Distro, &repo.Key.DistroVersion, &repo.Key.Flavor,
		&repo.Path, &repoType, &modified, &repo.Size, &repo.Signed, &extra,
		&repo.NeedsUpdate, &repo.IsQueued, &repo.IsUpdating,
	)
	if err != nil {
		return types.Repo{}, err
	}
	repo.Type = types.RepoType(repoType)
	repo.Modified = fromUnixNano(modified)
	if extra.Valid && extra.String != "" {
		repo.Extra = json.RawMessage(extra.String)
	}
	return repo, nil
}

func (s *SQLStore) GetRepo(ctx context.Context, id int64) (types.Repo, error) {
	repo, err := scanRepo(s.queryRow(ctx, `SELECT `+repoColumns+repoFrom+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Repo{}, repoNotFound(fmt.Sprintf("id %d", id))
	}
	if err != nil {
		return types.Repo{}, dbError("failed to load repo", err)
	}
	return repo, nil
}

func (s *SQLStore) FindRepo(ctx context.Context, key types.RepoKey) (types.Repo, error) {
	key = key.Normalize()
	repo, err := scanRepo(s.queryRow(ctx, `SELECT `+repoColumns+repoFrom+`
		WHERE p.name = ? AND r.ref = ? AND r.sha1 = ? AND r.distro = ? AND r.distro_version = ? AND r.flavor = ?`,
		key.Project, key.Ref, key.SHA1, key.Distro, key.DistroVersion, key.Flavor))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Repo{}, repoNotFound(key.String())
	}
	if err != nil {
		return types.Repo{}, dbError("failed to load repo", err)
	}
	return repo, nil
}

func (s *SQLStore) FindOrCreateRepo(ctx context.Context, key types.RepoKey, now time.Time) (types.Repo, error) {
	key = key.Normalize()
	if err := validateRepoKey(key); err != nil {
		return types.Repo{}, err
	}
	project, err := s.GetOrCreateProject(ctx, key.Project)
	if err != nil {
		return types.Repo{}, err
	}
	_, err = s.exec(ctx, `INSERT INTO repos (project_id, ref, sha1, distro, distro_version, flavor, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, ref, sha1, distro, distro_version, flavor) DO NOTHING`,
		project.ID, key.Ref, key.SHA1, key.Distro, key.DistroVersion, key.Flavor, toUnixNano(now))
	if err != nil {
		return types.Repo{}, dbError("failed to create repo", err)
	}
	return s.FindRepo(ctx, key)
}

func (s *SQLStore) SaveRepo(ctx context.Context, repo types.Repo) error {
	var extra any
	if len(repo.Extra) > 0 {
		extra = string(repo.Extra)
	}
	result, err := s.exec(ctx, `UPDATE repos SET path = ?, type = ?, modified = ?, size = ?, signed = ?, extra = ?,
		needs_update = ?, is_queued = ?, is_updating = ? WHERE id = ?`,
		repo.Path, string(repo.Type), toUnixNano(repo.Modified), repo.Size, repo.Signed, extra,
		repo.NeedsUpdate, repo.IsQueued, repo.IsUpdating, repo.ID)
	if err != nil {
		return dbError("failed to save repo", err)
	}
	if ok, err := affected(result); err != nil {
		return err
	} else if !ok {
		return repoNotFound(fmt.Sprintf("id %d", repo.ID))
	}
	return nil
}

func (s *SQLStore) DeleteRepo(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, `DELETE FROM binaries WHERE repo_id = ?`, id); err != nil {
		return dbError("failed to delete repo binaries", err)
	}
	result, err := s.exec(ctx, `DELETE FROM repos WHERE id = ?`, id)
	if err != nil {
		return dbError("failed to delete repo", err)
	}
	if ok, err := affected(result); err != nil {
		return err
	} else if !ok {
		return repoNotFound(fmt.Sprintf("id %d", id))
	}
	return nil
}

func (s *SQLStore) ListDirtyRepos(ctx context.Context) ([]types.Repo, error) {
	return s.listRepos(ctx, `SELECT `+repoColumns+repoFrom+`
		WHERE r.needs_update = ? AND r.is_queued = ? ORDER BY r.id`, true, false)
}

func (s *SQLStore) ListRepos(ctx context.Context, filter types.RepoFilter) ([]types.Repo, error) {
	query := `SELECT ` + repoColumns + repoFrom + ` WHERE 1 = 1`
	var args []any
	if filter.Project != "" {
		query += ` AND p.name = ?`
		args = append(args, filter.Project)
	}
	if filter.Ref != nil {
		query += ` AND r.ref = ?`
		args = append(args, *filter.Ref)
	}
	if filter.Flavor != nil {
		query += ` AND r.flavor = ?`
		args = append(args, *filter.Flavor)
	}
	if !filter.ModifiedBefore.IsZero() {
		query += ` AND r.modified < ?`
		args = append(args, toUnixNano(filter.ModifiedBefore))
	}
	return s.listRepos(ctx, query+` ORDER BY r.id`, args...)
}

func (s *SQLStore) listRepos(ctx context.Context, query string, args ...any) ([]types.Repo, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, dbError("failed to list repos", err)
	}
	defer rows.Close()
	var repos []types.Repo
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, dbError("failed to read repo", err)
		}
		repos = append(repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("failed to list repos", err)
	}
	return repos, nil
}

func (s *SQLStore) MarkDirty(ctx context.Context, id int64, now time.Time, inferred types.RepoType) error {
	return s.updateRepo(ctx, id, `UPDATE repos SET needs_update = ?, modified = ?,
		type = CASE WHEN type = '' THEN ? ELSE type END WHERE id = ?`,
		true, toUnixNano(now), string(inferred), id)
}

func (s *SQLStore) ClearDirty(ctx context.Context, id int64) error {
	return s.updateRepo(ctx, id, `UPDATE repos SET needs_update = ?, is_queued = ? WHERE id = ?`, false, false, id)
}

func (s *SQLStore) SetRepoType(ctx context.Context, id int64, repoType types.RepoType) error {
	return s.updateRepo(ctx, id, `UPDATE repos SET type = ? WHERE id = ?`, string(repoType), id)
}

// updateRepo runs an unconditional single-row update and reports a missing
// row as NotFound.
func (s *SQLStore) updateRepo(ctx context.Context, id int64, query string, args ...any) error {
	ok, err := s.compareAndSet(ctx, query, args...)
	if err != nil {
		return err
	}
	if !ok {
		return repoNotFound(fmt.Sprintf("id %d", id))
	}
	return nil
}

func (s *SQLStore) MarkQueued(ctx context.Context, id int64, now time.Time) (bool, error) {
	return s.compareAndSet(ctx, `UPDATE repos SET is_queued = ?, modified = ?
		WHERE id = ? AND needs_update = ? AND is_queued = ? AND is_updating = ?`,
		true, toUnixNano(now), id, true, false, false)
}

func (s *SQLStore) UnmarkQueued(ctx context.Context, id int64) error {
	_, err := s.compareAndSet(ctx, `UPDATE repos SET is_queued = ? WHERE id = ?`, false, id)
	return err
}

func (s *SQLStore) BeginBuild(ctx context.Context, id int64, path string, now time.Time) (bool, error) {
	return s.compareAndSet(ctx, `UPDATE repos SET path = ?, is_updating = ?, is_queued = ?, needs_update = ?, modified = ?
		WHERE id = ? AND is_updating = ?`,
		path, true, false, false, toUnixNano(now), id, false)
}

func (s *SQLStore) FinishBuild(ctx context.Context, id int64, now time.Time) error {
	_, err := s.compareAndSet(ctx, `UPDATE repos SET is_updating = ?, modified = ? WHERE id = ?`,
		false, toUnixNano(now), id)
	return err
}

func (s *SQLStore) ClaimForPurge(ctx context.Context, id int64) (bool, error) {
	return s.compareAndSet(ctx, `UPDATE repos SET is_updating = ?
		WHERE id = ? AND is_queued = ? AND is_updating = ?`, true, id, false, false)
}

func (s *SQLStore) ReleasePurge(ctx context.Context, id int64) error {
	_, err := s.compareAndSet(ctx, `UPDATE repos SET is_updating = ? WHERE id = ?`, false, id)
	return err
}

func (s *SQLStore) compareAndSet(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := s.exec(ctx, query, args...)
	if err != nil {
		return false, dbError("failed to update repo flags", err)
	}
	return affected(result)
}

const binaryColumns = `b.id, b.name, b.path, p.name, b.project_id, b.repo_id, b.ref, b.sha1, b.distro,
	b.distro_version, b.arch, b.flavor, b.size, b.checksum, b.created, b.modified`

const binaryFrom = ` FROM binaries b JOIN projects p ON p.id = b.project_id`

func scanBinary(row rowScanner) (types.Binary, error) {
	var binary types.Binary
	var created, modified int64
	err := row.Scan(
		&binary.ID, &binary.Name, &binary.Path, &binary.Project, &binary.ProjectID, &binary.RepoID,
		&binary.Ref, &binary.SHA1, &binary.Distro, &binary.DistroVersion, &binary.Arch, &binary.Flavor,
		&binary.Size, &binary.Checksum, &created, &modified,
	)
	if err != nil {
		return types.Binary{}, err
	}
	binary.Created = fromUnixNano(created)
	binary.Modified = fromUnixNano(modified)
	return binary, nil
}

func (s *SQLStore) AttachBinary(ctx context.Context, repo types.Repo, binary types.Binary) (types.Binary, error) {
	stored, err := s.GetRepo(ctx, repo.ID)
	if err != nil {
		return types.Binary{}, err
	}
	binary = bindBinary(stored, binary)
	var id int64
	err = s.queryRow(ctx, `INSERT INTO binaries (name, path, project_id, repo_id, ref, sha1, distro, distro_version,
			arch, flavor, size, checksum, created, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo_id, name) DO UPDATE SET path = excluded.path, arch = excluded.arch,
			size = excluded.size, checksum = excluded.checksum, modified = excluded.modified
		RETURNING id`,
		binary.Name, binary.Path, binary.ProjectID, binary.RepoID, binary.Ref, binary.SHA1, binary.Distro,
		binary.DistroVersion, binary.Arch, binary.Flavor, binary.Size, binary.Checksum,
		toUnixNano(binary.Created), toUnixNano(binary.Modified)).Scan(&id)
	if err != nil {
		return types.Binary{}, dbError("failed to store binary", err)
	}
	return s.GetBinary(ctx, id)
}

func (s *SQLStore) GetBinary(ctx context.Context, id int64) (types.Binary, error) {
	binary, err := scanBinary(s.queryRow(ctx, `SELECT `+binaryColumns+binaryFrom+` WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Binary{}, binaryNotFound(id)
	}
	if err != nil {
		return types.Binary{}, dbError("failed to load binary", err)
	}
	return binary, nil
}

func (s *SQLStore) DeleteBinary(ctx context.Context, id int64) error {
	result, err := s.exec(ctx, `DELETE FROM binaries WHERE id = ?`, id)
	if err != nil {
		return dbError("failed to delete binary", err)
	}
	if ok, err := affected(result); err != nil {
		return err
	} else if !ok {
		return binaryNotFound(id)
	}
	return nil
}

func (s *SQLStore) BinariesForRepo(ctx context.Context, repoID int64) ([]types.Binary, error) {
	return s.listBinaries(ctx, `SELECT `+binaryColumns+binaryFrom+` WHERE b.repo_id = ? ORDER BY b.id`, repoID)
}

func (s *SQLStore) FindBinaries(ctx context.Context, filter types.BinaryFilter) ([]types.Binary, error) {
	query := `SELECT ` + binaryColumns + binaryFrom + ` WHERE 1 = 1`
	var args []any
	if filter.Project != "" {
		query += ` AND p.name = ?`
		args = append(args, filter.Project)
	}
	if filter.Ref != nil {
		query += ` AND b.ref = ?`
		args = append(args, *filter.Ref)
	}
	if filter.Distro != "" {
		query += ` AND b.distro = ?`
		args = append(args, filter.Distro)
	}
	if len(filter.DistroVersions) > 0 {
		query += ` AND b.distro_version IN (?` + strings.Repeat(", ?", len(filter.DistroVersions)-1) + `)`
		for _, version := range filter.DistroVersions {
			args = append(args, version)
		}
	}
	return s.listBinaries(ctx, query+` ORDER BY b.id`, args...)
}

func (s *SQLStore) listBinaries(ctx context.Context, query string, args ...any) ([]types.Binary, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, dbError("failed to list binaries", err)
	}
	defer rows.Close()
	var binaries []types.Binary
	for rows.Next() {
		binary, err := scanBinary(rows)
		if err != nil {
			return nil, dbError("failed to read binary", err)
		}
		binaries = append(binaries, binary)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("failed to list binaries", err)
	}
	return binaries, nil
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, dbError("failed to read affected rows", err)
	}
	return rows > 0, nil
}

func dbError(msg string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg).
		WithCause(err)
}

func toUnixNano(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixNano()
}

func fromUnixNano(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(0, value).UTC()
}

var _ ports.StorePort = (*SQLStore)(nil)
