package querysession_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dracory/insightpilot/internal/nl2sql"
	"github.com/dracory/insightpilot/internal/querysession"
	"github.com/dracory/insightpilot/internal/resultset"
	"github.com/dracory/insightpilot/shared/driver"
	"github.com/dracory/insightpilot/shared/types"
)

type fakeRegistry map[string]types.ConnectionProfile

func (r fakeRegistry) Get(id string) (types.ConnectionProfile, error) {
	p, ok := r[id]
	if !ok {
		return types.ConnectionProfile{}, types.ErrNotFound("connection %q not found", id)
	}
	return p, nil
}

type fakeHandle struct {
	execute func(ctx context.Context, query string) (*resultset.ResultSet, error)
	tables  []string
}

func (h *fakeHandle) Execute(ctx context.Context, query string) (*resultset.ResultSet, error) {
	return h.execute(ctx, query)
}
func (h *fakeHandle) Tables(context.Context) ([]string, error) { return h.tables, nil }
func (h *fakeHandle) Close() error                             { return nil }

type fakeDriver struct {
	handle *fakeHandle
	err    error
}

func (d *fakeDriver) Connect(context.Context, types.ConnectionProfile) (driver.Handle, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.handle, nil
}

func registry() fakeRegistry {
	return fakeRegistry{
		"live": {ID: "live", Kind: types.BackendPostgreSQL, Status: types.StatusConnected},
		"idle": {ID: "idle", Kind: types.BackendPostgreSQL, Status: types.StatusDisconnected},
	}
}

func twoRows() *resultset.ResultSet {
	rs := resultset.New("id", "name")
	_ = rs.Append(resultset.Row{resultset.Int(1), resultset.Text("A")})
	_ = rs.Append(resultset.Row{resultset.Int(2), resultset.Text("B")})
	return rs
}

func TestAsk_NoActiveConnection(t *testing.T) {
	drv := &fakeDriver{handle: &fakeHandle{execute: func(context.Context, string) (*resultset.ResultSet, error) {
		t.Fatal("must not execute")
		return nil, nil
	}}}
	s := querysession.New(registry(), nl2sql.Rules{}, drv, querysession.Options{})

	for _, id := range []string{"idle", "missing", ""} {
		_, err := s.Ask(context.Background(), id, "list all", nil)
		var nac *types.NoActiveConnectionError
		assert.True(t, errors.As(err, &nac), "id %q: %v", id, err)
	}
	assert.Empty(t, s.Turns())
}

func TestAsk_Completed(t *testing.T) {
	var gotQuery string
	drv := &fakeDriver{handle: &fakeHandle{execute: func(_ context.Context, q string) (*resultset.ResultSet, error) {
		gotQuery = q
		return twoRows(), nil
	}}}
	s := querysession.New(registry(), nl2sql.Rules{}, drv, querysession.Options{})

	turn, err := s.Ask(context.Background(), "live", "cuántos pedidos hay", ptr("orders"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS total FROM orders;", gotQuery)
	assert.Equal(t, gotQuery, turn.Query)
	assert.Equal(t, querysession.StateCompleted, turn.State)
	assert.Equal(t, nl2sql.ProviderRules, turn.Provider)
	assert.Equal(t, 2, turn.Result.RowCount)
	assert.Equal(t, querysession.StateIdle, s.State())

	last, ok := s.LastTurn()
	require.True(t, ok)
	assert.Equal(t, turn.ID, last.ID)

	csv, err := s.Export("", ',')
	require.NoError(t, err)
	assert.Equal(t, "id,name\n\"1\",\"A\"\n\"2\",\"B\"\n", csv)
}

func TestAsk_BackendErrorRecordsFailedTurn(t *testing.T) {
	reg := registry()
	cause := errors.New(`relation "orders" does not exist`)
	drv := &fakeDriver{handle: &fakeHandle{execute: func(context.Context, string) (*resultset.ResultSet, error) {
		return nil, cause
	}}}
	s := querysession.New(reg, nl2sql.Rules{}, drv, querysession.Options{})

	turn, err := s.Ask(context.Background(), "live", "list", ptr("orders"))
	var bee *types.BackendExecutionError
	require.True(t, errors.As(err, &bee))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, querysession.StateFailed, turn.State)
	assert.Equal(t, "SELECT * FROM orders LIMIT 10;", turn.Query)
	assert.Nil(t, turn.Result)
	assert.Contains(t, turn.Error, "does not exist")

	require.Len(t, s.Turns(), 1)
	assert.Equal(t, types.StatusConnected, reg["live"].Status, "execution errors do not change connection status")

	_, err = s.Export(turn.ID, ',')
	var nte *types.NothingToExportError
	assert.True(t, errors.As(err, &nte))
}

func TestAsk_ConnectError(t *testing.T) {
	s := querysession.New(registry(), nl2sql.Rules{}, &fakeDriver{err: errors.New("refused")}, querysession.Options{})
	turn, err := s.Ask(context.Background(), "live", "list", nil)
	var bee *types.BackendExecutionError
	assert.True(t, errors.As(err, &bee))
	assert.Equal(t, querysession.StateFailed, turn.State)
}

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, nl2sql.Request) (nl2sql.Result, error) {
	return nl2sql.Result{}, errors.New("model offline")
}

func TestAsk_TranslatorError(t *testing.T) {
	s := querysession.New(registry(), failingTranslator{}, &fakeDriver{}, querysession.Options{})
	turn, err := s.Ask(context.Background(), "live", "anything", nil)
	require.Error(t, err)
	assert.Equal(t, querysession.StateFailed, turn.State)
	assert.Empty(t, turn.Query)
	assert.Len(t, s.Turns(), 1)
}

func TestAsk_Timeout(t *testing.T) {
	drv := &fakeDriver{handle: &fakeHandle{execute: func(ctx context.Context, _ string) (*resultset.ResultSet, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}}
	s := querysession.New(registry(), nl2sql.Rules{}, drv, querysession.Options{QueryTimeout: 20 * time.Millisecond})

	_, err := s.Ask(context.Background(), "live", "list", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsk_RejectsConcurrentAsk(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	drv := &fakeDriver{handle: &fakeHandle{execute: func(context.Context, string) (*resultset.ResultSet, error) {
		once.Do(func() { close(started) })
		<-release
		return twoRows(), nil
	}}}
	s := querysession.New(registry(), nl2sql.Rules{}, drv, querysession.Options{})

	done := make(chan error)
	go func() {
		_, err := s.Ask(context.Background(), "live", "list", nil)
		done <- err
	}()
	<-started
	assert.Equal(t, querysession.StateExecuting, s.State())

	_, err := s.Ask(context.Background(), "live", "count", nil)
	var busy *types.SessionBusyError
	assert.True(t, errors.As(err, &busy))

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, s.Turns(), 1)

	_, err = s.Ask(context.Background(), "live", "count", nil)
	assert.NoError(t, err)
	assert.Len(t, s.Turns(), 2)
}

func TestTurnLookupAndExportErrors(t *testing.T) {
	s := querysession.New(registry(), nl2sql.Rules{}, &fakeDriver{}, querysession.Options{})

	_, err := s.Turn("nope")
	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = s.Export("", ',')
	var nte *types.NothingToExportError
	assert.True(t, errors.As(err, &nte))

	_, err = s.Export("nope", ',')
	assert.True(t, errors.As(err, &nf))
}

func TestTables(t *testing.T) {
	drv := &fakeDriver{handle: &fakeHandle{tables: []string{"orders", "users"}}}
	s := querysession.New(registry(), nl2sql.Rules{}, drv, querysession.Options{})

	tables, err := s.Tables(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)

	_, err = s.Tables(context.Background(), "idle")
	var nac *types.NoActiveConnectionError
	assert.True(t, errors.As(err, &nac))
}

type recordingTranslator struct {
	nl2sql.Rules
	got []nl2sql.Request
}

func (r *recordingTranslator) Translate(ctx context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	r.got = append(r.got, req)
	return r.Rules.Translate(ctx, req)
}

func TestAsk_PassesListedTablesToTranslator(t *testing.T) {
	drv := &fakeDriver{handle: &fakeHandle{
		tables: []string{"orders", "users"},
		execute: func(context.Context, string) (*resultset.ResultSet, error) {
			return twoRows(), nil
		},
	}}
	tr := &recordingTranslator{}
	s := querysession.New(registry(), tr, drv, querysession.Options{})

	_, err := s.Ask(context.Background(), "live", "cuántos pedidos hay", ptr("orders"))
	require.NoError(t, err)
	require.Len(t, tr.got, 1)
	assert.Empty(t, tr.got[0].Tables)

	_, err = s.Tables(context.Background(), "live")
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "live", "cuántos pedidos hay", ptr("orders"))
	require.NoError(t, err)
	require.Len(t, tr.got, 2)
	assert.Equal(t, []string{"orders", "users"}, tr.got[1].Tables)
}

func TestAsk_EndToEndWithGormDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM users LIMIT 10;")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "A").AddRow(int64(2), "B"))
	mock.ExpectClose()

	drv := driver.NewGorm(driver.Options{
		MaxRows:  200,
		ReadOnly: true,
		Dialector: func(types.ConnectionProfile) (gorm.Dialector, error) {
			return postgres.New(postgres.Config{Conn: db}), nil
		},
	})
	s := querysession.New(registry(), nl2sql.Rules{}, drv, querysession.Options{})

	turn, err := s.Ask(context.Background(), "live", "muéstrame todos los usuarios", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users LIMIT 10;", turn.Query)

	csv, err := s.Export(turn.ID, ',')
	require.NoError(t, err)
	assert.Equal(t, "id,name\n\"1\",\"A\"\n\"2\",\"B\"\n", csv)

	header, rows, err := resultset.ParseDelimited(csv, ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, header)
	assert.Len(t, rows, turn.Result.RowCount)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations were not met: %v", err)
	}
}

func ptr(s string) *string { return &s }
