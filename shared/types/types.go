package types

import (
	"log/slog"
	"strings"
)

// BackendKind identifies the database engine behind a profile. It doubles as
// the SQL dialect used when translating questions.
type BackendKind string

const (
	BackendPostgreSQL BackendKind = "postgresql"
	BackendMySQL      BackendKind = "mysql"
	BackendSQLServer  BackendKind = "sqlserver"
)

// BackendKinds lists the supported kinds in display order.
func BackendKinds() []BackendKind {
	return []BackendKind{BackendPostgreSQL, BackendMySQL, BackendSQLServer}
}

// ParseBackendKind accepts the canonical names plus the driver aliases the
// connect form has always accepted (pg, postgres, mariadb, mssql).
func ParseBackendKind(s string) (BackendKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgresql", "postgres", "pg":
		return BackendPostgreSQL, true
	case "mysql", "mariadb":
		return BackendMySQL, true
	case "sqlserver", "mssql":
		return BackendSQLServer, true
	default:
		return "", false
	}
}

// Valid reports whether k is one of the supported kinds.
func (k BackendKind) Valid() bool {
	return k == BackendPostgreSQL || k == BackendMySQL || k == BackendSQLServer
}

// DefaultPort returns the conventional listening port of the backend.
func (k BackendKind) DefaultPort() int {
	switch k {
	case BackendMySQL:
		return 3306
	case BackendSQLServer:
		return 1433
	default:
		return 5432
	}
}

// Status is the connectivity state of a profile.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusTesting      Status = "testing"
	StatusConnected    Status = "connected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusDisconnected || s == StatusTesting || s == StatusConnected
}

// ConnectionProfile represents a saved database connection.
type ConnectionProfile struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Kind     BackendKind `json:"type"`
	Host     string      `json:"host"`
	Port     int         `json:"port"`
	Database string      `json:"database"`
	Username string      `json:"username"`
	Secret   string      `json:"password"`
	Status   Status      `json:"status"`
}

// LogValue keeps the secret out of every log line.
func (p ConnectionProfile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", p.ID),
		slog.String("name", p.Name),
		slog.String("type", string(p.Kind)),
		slog.String("host", p.Host),
		slog.Int("port", p.Port),
		slog.String("database", p.Database),
		slog.String("status", string(p.Status)),
	)
}

// Validate checks the static fields needed to attempt a connection.
func (p ConnectionProfile) Validate() error {
	return validateFields(p.Kind, p.Host, p.Port, p.Database, p.Username, p.Secret)
}

// ProfileInput carries the caller supplied fields of a new profile.
type ProfileInput struct {
	Name     string
	Kind     BackendKind
	Host     string
	Port     int
	Database string
	Username string
	Secret   string
}

// Validate checks the input the same way a stored profile is checked.
func (in ProfileInput) Validate() error {
	return validateFields(in.Kind, in.Host, in.Port, in.Database, in.Username, in.Secret)
}

// ProfilePatch is a partial update; nil fields are left untouched.
type ProfilePatch struct {
	Name     *string
	Kind     *BackendKind
	Host     *string
	Port     *int
	Database *string
	Username *string
	Secret   *string
	Status   *Status
}

// TouchesConnection reports whether the patch changes anything that affects
// reachability of the backend.
func (p ProfilePatch) TouchesConnection() bool {
	return p.Kind != nil || p.Host != nil || p.Port != nil ||
		p.Database != nil || p.Username != nil || p.Secret != nil
}

// Apply returns a copy of profile with the patch merged in.
func (p ProfilePatch) Apply(profile ConnectionProfile) ConnectionProfile {
	if p.Name != nil {
		profile.Name = *p.Name
	}
	if p.Kind != nil {
		profile.Kind = *p.Kind
	}
	if p.Host != nil {
		profile.Host = *p.Host
	}
	if p.Port != nil {
		profile.Port = *p.Port
	}
	if p.Database != nil {
		profile.Database = *p.Database
	}
	if p.Username != nil {
		profile.Username = *p.Username
	}
	if p.Secret != nil {
		profile.Secret = *p.Secret
	}
	if p.Status != nil {
		profile.Status = *p.Status
	}
	return profile
}

func validateFields(kind BackendKind, host string, port int, database, username, secret string) error {
	if !kind.Valid() {
		return ErrValidation("unsupported database type: %q", kind)
	}
	var missing []string
	if strings.TrimSpace(host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(database) == "" {
		missing = append(missing, "database")
	}
	if strings.TrimSpace(username) == "" {
		missing = append(missing, "username")
	}
	if secret == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return ErrValidation("%s required", strings.Join(missing, ", "))
	}
	if port < 1 || port > 65535 {
		return ErrValidation("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// PublicProfile is the view of a profile safe to hand to clients.
type PublicProfile struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        BackendKind `json:"type"`
	Host        string      `json:"host"`
	Port        int         `json:"port"`
	Database    string      `json:"database"`
	Username    string      `json:"username"`
	HasPassword bool        `json:"has_password"`
	Status      Status      `json:"status"`
}

// Public strips the secret.
func (p ConnectionProfile) Public() PublicProfile {
	return PublicProfile{
		ID:          p.ID,
		Name:        p.Name,
		Kind:        p.Kind,
		Host:        p.Host,
		Port:        p.Port,
		Database:    p.Database,
		Username:    p.Username,
		HasPassword: p.Secret != "",
		Status:      p.Status,
	}
}

// PublicProfiles maps Public over a list.
func PublicProfiles(list []ConnectionProfile) []PublicProfile {
	out := make([]PublicProfile, len(list))
	for i, p := range list {
		out[i] = p.Public()
	}
	return out
}
