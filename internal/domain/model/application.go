package model

import "time"

// AppState is the lifecycle state of a managed application.
type AppState string

const (
	AppStateProvisioning AppState = "provisioning"
	AppStateDeploying    AppState = "deploying"
	AppStateActive       AppState = "active"
	AppStateDegraded     AppState = "degraded"
	AppStateFailed       AppState = "failed"
	AppStateDeleted      AppState = "deleted"
)

// Valid reports whether the state is known.
func (s AppState) Valid() bool {
	switch s {
	case AppStateProvisioning, AppStateDeploying, AppStateActive, AppStateDegraded,
		AppStateFailed, AppStateDeleted:
		return true
	default:
		return false
	}
}

// Replaceable reports whether a create job may take over an application record in this state.
func (s AppState) Replaceable() bool {
	return s == AppStateFailed || s == AppStateDeleted
}

// Application is a web application managed on this host. ID is its domain name.
type Application struct {
	ID             string            `json:"id"                         db:"id"`
	AppType        AppType           `json:"app_type"                   db:"app_type"`
	Root           string            `json:"root"                       db:"root"`
	Port           int               `json:"port"                       db:"port"`
	State          AppState          `json:"state"                      db:"state"`
	Stage          Stage             `json:"stage,omitempty"            db:"stage"`
	LastBackupID   string            `json:"last_backup_id,omitempty"   db:"last_backup_id"`
	Source         string            `json:"source"                     db:"source"`
	Branch         string            `json:"branch,omitempty"           db:"branch"`
	SSL            bool              `json:"ssl"                        db:"ssl"`
	Env            map[string]string `json:"env,omitempty"              db:"env"`
	CreatedAt      time.Time         `json:"created_at"                 db:"created_at"`
	LastDeployedAt *time.Time        `json:"last_deployed_at,omitempty" db:"last_deployed_at"`
	UpdatedAt      time.Time         `json:"updated_at"                 db:"updated_at"`
}

// ServiceName is the supervisor unit name for the application.
func (a *Application) ServiceName() string {
	return "wasm-" + sanitizeUnitName(a.ID)
}

func sanitizeUnitName(id string) string {
	out := make([]byte, 0, len(id))
	for i := range len(id) {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

// ApplicationFilter narrows application listings.
type ApplicationFilter struct {
	State   AppState
	AppType AppType
	Limit   int
	Offset  int
}

// AppStateUpdate is the application half of a committed stage transition.
type AppStateUpdate struct {
	State        AppState
	LastBackupID string
	AppType      AppType
	Deployed     bool
}
