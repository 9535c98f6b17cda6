package driver

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/dracory/insightpilot/shared/types"
)

// DSN builds the driver specific connection string for a profile.
func DSN(p types.ConnectionProfile) (string, error) {
	switch p.Kind {
	case types.BackendPostgreSQL:
		return postgresDSN(p), nil
	case types.BackendMySQL:
		return mysqlDSN(p), nil
	case types.BackendSQLServer:
		return sqlserverDSN(p), nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", p.Kind)
	}
}

func postgresDSN(p types.ConnectionProfile) string {
	parts := []string{
		"host=" + pgQuote(p.Host),
		"port=" + strconv.Itoa(p.Port),
		"user=" + pgQuote(p.Username),
		"password=" + pgQuote(p.Secret),
		"dbname=" + pgQuote(p.Database),
		"sslmode=disable",
	}
	return strings.Join(parts, " ")
}

// pgQuote quotes a libpq keyword value when it contains spaces, quotes or
// backslashes.
func pgQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func mysqlDSN(p types.ConnectionProfile) string {
	cfg := gomysql.NewConfig()
	cfg.User = p.Username
	cfg.Passwd = p.Secret
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	cfg.DBName = p.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func sqlserverDSN(p types.ConnectionProfile) string {
	q := url.Values{}
	q.Set("database", p.Database)
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(p.Username, p.Secret),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}
