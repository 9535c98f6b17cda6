package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dracory/insightpilot/internal/resultset"
	"github.com/dracory/insightpilot/shared/types"
)

// ErrReadOnly is returned for write statements when read-only mode is on.
var ErrReadOnly = errors.New("read-only mode: only SELECT-like statements are allowed")

// ErrSafeMode is returned for destructive DDL when safe mode is on.
var ErrSafeMode = errors.New("blocked by safe mode: DROP, ALTER and TRUNCATE are not allowed")

// RowsAffectedColumn names the single column returned by write statements.
const RowsAffectedColumn = "rows_affected"

// Options configures the GORM driver.
type Options struct {
	// MaxRows caps the rows kept from a single result; 0 keeps all.
	MaxRows  int
	ReadOnly bool
	SafeMode bool
	// Dialector overrides how a profile is turned into a GORM dialector.
	Dialector func(types.ConnectionProfile) (gorm.Dialector, error)
}

// Gorm implements Driver on top of GORM and its per-backend dialectors.
type Gorm struct {
	opts Options
}

var _ Driver = (*Gorm)(nil)

// NewGorm creates a GORM backed driver.
func NewGorm(opts Options) *Gorm {
	if opts.Dialector == nil {
		opts.Dialector = Dialector
	}
	return &Gorm{opts: opts}
}

// Dialector returns the GORM dialector for the profile's backend.
func Dialector(p types.ConnectionProfile) (gorm.Dialector, error) {
	dsn, err := DSN(p)
	if err != nil {
		return nil, err
	}
	switch p.Kind {
	case types.BackendPostgreSQL:
		return postgres.Open(dsn), nil
	case types.BackendMySQL:
		return mysql.New(mysql.Config{DSN: dsn, SkipInitializeWithVersion: true}), nil
	default:
		return sqlserver.Open(dsn), nil
	}
}

// Connect opens the backend and pings it under ctx.
func (g *Gorm) Connect(ctx context.Context, profile types.ConnectionProfile) (Handle, error) {
	dialector, err := g.opts.Dialector(profile)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", profile.Kind, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", profile.Kind, err)
	}

	return &gormHandle{db: db, opts: g.opts}, nil
}

type gormHandle struct {
	db   *gorm.DB
	opts Options
}

// Execute runs query. SELECT-like statements return their rows; anything else
// returns a single rows_affected cell.
func (h *gormHandle) Execute(ctx context.Context, query string) (*resultset.ResultSet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is empty")
	}

	stmt := leadingKeyword(query)
	if h.opts.SafeMode && isDestructive(stmt) {
		return nil, ErrSafeMode
	}
	read := isRead(stmt)
	if h.opts.ReadOnly && !read {
		return nil, ErrReadOnly
	}

	db := h.db.WithContext(ctx)
	if !read {
		res := db.Exec(query)
		if res.Error != nil {
			return nil, res.Error
		}
		rs := resultset.New(RowsAffectedColumn)
		if err := rs.Append(resultset.Row{resultset.Int(res.RowsAffected)}); err != nil {
			return nil, err
		}
		return rs, nil
	}

	rows, err := db.Raw(query).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return resultset.FromRows(rows, h.opts.MaxRows)
}

// Tables lists the tables of the connected database.
func (h *gormHandle) Tables(ctx context.Context) ([]string, error) {
	tables, err := h.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, err
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

func (h *gormHandle) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func leadingKeyword(query string) string {
	q := strings.TrimLeft(query, "( \t\r\n")
	fields := strings.Fields(strings.ToLower(q))
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimRight(fields[0], ";(")
}

func isRead(stmt string) bool {
	switch stmt {
	case "select", "with", "show", "pragma", "explain", "describe", "desc", "values":
		return true
	}
	return false
}

func isDestructive(stmt string) bool {
	return stmt == "drop" || stmt == "alter" || stmt == "truncate"
}
