package constants

// Action names for the single-endpoint router.
const (
	ActionHealthz = "healthz"

	ActionProfilesList      = "profiles_list"
	ActionProfileSave       = "profile_save"
	ActionProfileDelete     = "profile_delete"
	ActionProfileTest       = "profile_test"
	ActionProfileTestCancel = "profile_test_cancel"

	ActionTablesList = "tables_list"

	ActionAsk       = "ask"
	ActionTurnsList = "turns_list"
	ActionExport    = "export"

	ActionSettings = "settings"
)

// Noun_Verb alias actions kept for clients of the older profile endpoints.
const (
	ActionProfiles     = "profiles"      // alias of profiles_list
	ActionProfilesSave = "profiles_save" // alias of profile_save
	ActionListTables   = "list_tables"   // alias of tables_list
)

// Keys of the persisted key-value store.
const (
	StoreKeyConnections  = "connections"
	StoreKeyOpenAIAPIKey = "openai_api_key"
)

// SessionCookieName is the name of the browser session cookie.
const SessionCookieName = "ip_sid"

// ExportFileName is the download name of exported results.
const ExportFileName = "query_results.csv"

// FallbackTable is queried when a question carries no table hint.
const FallbackTable = "users"
